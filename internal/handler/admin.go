package handler

import (
	"log/slog"
	"net/http"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
	"github.com/anmolmahajan9/photo20-app/internal/service"
)

// AdminHandler serves the administrative endpoints. Routes using it must be
// wrapped with the admin middleware.
type AdminHandler struct {
	service service.GenerationService
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc service.GenerationService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: svc, logger: logger}
}

// UserQuota handles GET /api/admin/users/{uid}/quota. The optional email
// query parameter lets the admin see the limit that identity resolves to.
func (h *AdminHandler) UserQuota(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if uid == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.admin_quota", "A user id is required."))
		return
	}
	email := r.URL.Query().Get("email")

	usage, err := h.service.UsageFor(r.Context(), uid, email)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"userId": uid,
		"usage":  usage,
	})
}
