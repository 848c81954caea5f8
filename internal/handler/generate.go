package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/anmolmahajan9/photo20-app/internal/auth"
	"github.com/anmolmahajan9/photo20-app/internal/domain"
	"github.com/anmolmahajan9/photo20-app/internal/service"
)

// maxRequestBody bounds request bodies. Images arrive base64 encoded, so
// this is about 21MB of raw image.
const maxRequestBody = 28 << 20

// GenerationHandler serves the generation API endpoints.
type GenerationHandler struct {
	service service.GenerationService
	logger  *slog.Logger
}

// NewGenerationHandler creates a GenerationHandler.
func NewGenerationHandler(svc service.GenerationService, logger *slog.Logger) *GenerationHandler {
	return &GenerationHandler{service: svc, logger: logger}
}

// ideasRequest is the body of POST /api/generations/ideas.
type ideasRequest struct {
	PhotoDataURI string `json:"photoDataUri"`
	Template     string `json:"template"`
}

// SuggestIdeas handles POST /api/generations/ideas.
func (h *GenerationHandler) SuggestIdeas(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	if principal == nil {
		ErrorResponse(w, r, h.logger, domain.Unauthorized("handler.ideas", "Authentication required. Please sign in."))
		return
	}

	var req ideasRequest
	if err := h.decode(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	image, err := domain.ParseImageDataURI(req.PhotoDataURI)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	ideas, err := h.service.SuggestIdeas(r.Context(), *principal, service.SuggestIdeasParams{
		Image:    image,
		Template: req.Template,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"ideas": ideas})
}

// themeRequest is the body of POST /api/generations/theme. Prompt carries
// the detailed prompt of a previously suggested idea and wins over Template.
type themeRequest struct {
	PhotoDataURI string `json:"photoDataUri"`
	Template     string `json:"template"`
	Prompt       string `json:"prompt"`
}

// GenerateTheme handles POST /api/generations/theme.
func (h *GenerationHandler) GenerateTheme(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	if principal == nil {
		ErrorResponse(w, r, h.logger, domain.Unauthorized("handler.theme", "Authentication required. Please sign in."))
		return
	}

	var req themeRequest
	if err := h.decode(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	image, err := domain.ParseImageDataURI(req.PhotoDataURI)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.service.GenerateTheme(r.Context(), *principal, service.GenerateThemeParams{
		Image:    image,
		Template: req.Template,
		Prompt:   req.Prompt,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.writeSingleImage(w, result)
}

// refineRequest is the body of POST /api/generations/refine.
type refineRequest struct {
	PhotoDataURI string `json:"photoDataUri"`
	Description  string `json:"description"`
}

// Refine handles POST /api/generations/refine.
func (h *GenerationHandler) Refine(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	if principal == nil {
		ErrorResponse(w, r, h.logger, domain.Unauthorized("handler.refine", "Authentication required. Please sign in."))
		return
	}

	var req refineRequest
	if err := h.decode(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	image, err := domain.ParseImageDataURI(req.PhotoDataURI)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.service.Refine(r.Context(), *principal, service.RefineParams{
		Image:       image,
		Description: req.Description,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.writeSingleImage(w, result)
}

// variationsRequest is the body of POST /api/generations/variations.
type variationsRequest struct {
	PhotoDataURI string   `json:"photoDataUri"`
	Angles       []string `json:"angles"`
}

// Variations handles POST /api/generations/variations.
func (h *GenerationHandler) Variations(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	if principal == nil {
		ErrorResponse(w, r, h.logger, domain.Unauthorized("handler.variations", "Authentication required. Please sign in."))
		return
	}

	var req variationsRequest
	if err := h.decode(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	image, err := domain.ParseImageDataURI(req.PhotoDataURI)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.service.Variations(r.Context(), *principal, service.VariationsParams{
		Image:  image,
		Angles: req.Angles,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	variations := make([]string, 0, len(result.Images))
	for _, img := range result.Images {
		variations = append(variations, img.DataURI())
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"variations": variations,
		"generation": result.Generation,
	})
}

// History handles GET /api/generations.
func (h *GenerationHandler) History(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	if principal == nil {
		ErrorResponse(w, r, h.logger, domain.Unauthorized("handler.history", "Authentication required. Please sign in."))
		return
	}

	generations, err := h.service.History(r.Context(), *principal, 50)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"generations": generations})
}

// decode parses a JSON body, mapping size and syntax problems to domain
// errors.
func (h *GenerationHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	const op = "handler.decode"

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return domain.Errorf(domain.ETOOLARGE, op, "The uploaded image is too large.")
		}
		return domain.Invalid(op, "Invalid request body.")
	}
	return nil
}

func (h *GenerationHandler) writeSingleImage(w http.ResponseWriter, result *service.GenerationResult) {
	var dataURI string
	if len(result.Images) > 0 {
		dataURI = result.Images[0].DataURI()
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"generatedPhotoDataUri": dataURI,
		"generation":            result.Generation,
	})
}
