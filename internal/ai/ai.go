// Package ai defines the interface to the external generative image model.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

// Provider is the boundary to the generative model. Implementations:
// - gemini.Provider: Google's Gemini image model over REST
// - mock.Provider: canned responses for development and tests
type Provider interface {
	// GenerateImage re-renders the product photo per the instruction.
	GenerateImage(ctx context.Context, params GenerateImageParams) (*GeneratedImage, error)

	// SuggestThemeIdeas proposes three photoshoot ideas for the photo,
	// aligned with the chosen style template.
	SuggestThemeIdeas(ctx context.Context, params IdeaParams) ([]domain.Idea, error)
}

// GenerateImageParams is the payload for one image generation call.
type GenerateImageParams struct {
	Image       domain.ImagePayload // Source product photo
	Instruction string              // Scene/style instruction for the model
	UserID      string              // For logging and usage tracking only
}

// IdeaParams is the payload for a theme idea suggestion call.
type IdeaParams struct {
	Image    domain.ImagePayload
	Template string // Style template guiding the ideas
	UserID   string
}

// GeneratedImage is one output image from the model.
type GeneratedImage struct {
	Image    domain.ImagePayload
	Model    string        // Model that produced the image
	Duration time.Duration // Request duration
}

// ProviderConfig contains common configuration for providers.
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// MaxImageSize is the largest source image accepted, in bytes.
const MaxImageSize = 20 * 1024 * 1024

// Error sentinels for provider operations.
var (
	// ErrRateLimited indicates the API rate limit has been exceeded.
	ErrRateLimited = errors.New("ai provider rate limit exceeded")

	// ErrInvalidImage indicates the image format or content is invalid.
	ErrInvalidImage = errors.New("invalid image format or content")

	// ErrTimeout indicates the request timed out.
	ErrTimeout = errors.New("ai request timed out")

	// ErrUnavailable indicates the model service is temporarily unavailable.
	ErrUnavailable = errors.New("ai service temporarily unavailable")

	// ErrNoImage indicates the model responded without a usable image.
	ErrNoImage = errors.New("model returned no usable image")

	// ErrUnauthorized indicates invalid API credentials.
	ErrUnauthorized = errors.New("ai provider authentication failed")

	// ErrInvalidAngle indicates an unsupported variation camera angle.
	ErrInvalidAngle = errors.New("unsupported camera angle")
)

// IsRetryable returns true for transient errors worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUnavailable)
}

// WrapError adds operation context to a provider error.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}

// ValidateImage checks a source image payload before it is sent out.
func ValidateImage(image domain.ImagePayload) error {
	if len(image.Data) == 0 {
		return ErrInvalidImage
	}
	if len(image.Data) > MaxImageSize {
		return fmt.Errorf("%w: image size %d exceeds maximum %d", ErrInvalidImage, len(image.Data), MaxImageSize)
	}
	switch image.ContentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return nil
	}
	return fmt.Errorf("%w: unsupported content type %q", ErrInvalidImage, image.ContentType)
}
