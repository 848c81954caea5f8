// Package mock provides a canned ai.Provider for development and tests.
package mock

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/anmolmahajan9/photo20-app/internal/ai"
	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

// pngPixel is a valid 1x1 transparent PNG, used as the canned output image.
const pngPixel = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="

// Provider is a mock model provider for testing and development.
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	GenerateImageResponse *ai.GeneratedImage
	GenerateImageError    error
	SuggestIdeasResponse  []domain.Idea
	SuggestIdeasError     error

	// Call tracking for testing
	GenerateImageCalls int
	SuggestIdeasCalls  int
}

// New creates a new mock provider.
func New(logger *slog.Logger) *Provider {
	return &Provider{logger: logger}
}

// GenerateImage returns a canned 1x1 PNG.
func (p *Provider) GenerateImage(ctx context.Context, params ai.GenerateImageParams) (*ai.GeneratedImage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateImageCalls++

	if p.GenerateImageError != nil {
		return nil, p.GenerateImageError
	}
	if p.GenerateImageResponse != nil {
		return p.GenerateImageResponse, nil
	}

	if err := ai.ValidateImage(params.Image); err != nil {
		return nil, err
	}

	data, _ := base64.StdEncoding.DecodeString(pngPixel)
	p.logger.Debug("mock image generated", "user_id", params.UserID, "instruction", params.Instruction)

	return &ai.GeneratedImage{
		Image:    domain.ImagePayload{Data: data, ContentType: "image/png"},
		Model:    "mock",
		Duration: time.Millisecond,
	}, nil
}

// SuggestThemeIdeas returns three canned ideas.
func (p *Provider) SuggestThemeIdeas(ctx context.Context, params ai.IdeaParams) ([]domain.Idea, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SuggestIdeasCalls++

	if p.SuggestIdeasError != nil {
		return nil, p.SuggestIdeasError
	}
	if p.SuggestIdeasResponse != nil {
		return p.SuggestIdeasResponse, nil
	}

	return []domain.Idea{
		{
			ShortPhrase:    "Sleek & Modern",
			DetailedPrompt: "A minimalist shot of the product on a white marble slab with soft, diffused morning light and a shallow depth of field.",
		},
		{
			ShortPhrase:    "Golden Hour Glow",
			DetailedPrompt: "The product on weathered driftwood at a beach during golden hour, warm backlight flaring gently across the frame.",
		},
		{
			ShortPhrase:    "Floating in Space",
			DetailedPrompt: "The product suspended mid-air against a deep indigo gradient, lit by two rim lights that trace its silhouette.",
		},
	}, nil
}
