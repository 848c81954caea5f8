package handler

import (
	"log/slog"
	"net/http"

	"github.com/anmolmahajan9/photo20-app/internal/auth"
	"github.com/anmolmahajan9/photo20-app/internal/domain"
	"github.com/anmolmahajan9/photo20-app/internal/service"
)

// QuotaHandler serves the caller's quota usage.
type QuotaHandler struct {
	service service.GenerationService
	logger  *slog.Logger
}

// NewQuotaHandler creates a QuotaHandler.
func NewQuotaHandler(svc service.GenerationService, logger *slog.Logger) *QuotaHandler {
	return &QuotaHandler{service: svc, logger: logger}
}

// Usage handles GET /api/quota.
func (h *QuotaHandler) Usage(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	if principal == nil {
		ErrorResponse(w, r, h.logger, domain.Unauthorized("handler.quota", "Authentication required. Please sign in."))
		return
	}

	usage, err := h.service.Usage(r.Context(), *principal)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, usage)
}
