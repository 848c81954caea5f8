// Package domain contains core business types shared across the application.
//
// This file defines generation records and the data-URI image payload used
// by the API surface.
package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerationKind identifies which operation produced a generation.
type GenerationKind string

const (
	GenerationKindTheme      GenerationKind = "theme"      // Template or idea based re-render
	GenerationKindRefine     GenerationKind = "refine"     // Free-text prompt refinement
	GenerationKindVariations GenerationKind = "variations" // Camera-angle variants
)

// GenerationStatus tracks the lifecycle of a persisted generation record.
const (
	GenerationStatusSuccess = "success"
	GenerationStatusFailed  = "failed"
)

// Generation is the persisted record of one generation request's results.
type Generation struct {
	ID             uuid.UUID      `json:"id"`
	UserID         string         `json:"userId"`
	Kind           GenerationKind `json:"kind"`
	Instruction    string         `json:"instruction"` // Prompt sent to the model
	URLs           []string       `json:"urls"`        // Public URLs of stored outputs
	StoragePaths   []string       `json:"-"`           // Object-storage keys of outputs
	ThumbnailPaths []string       `json:"-"`           // Object-storage keys of thumbnails
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Idea is one suggested photoshoot theme for an uploaded product photo.
type Idea struct {
	ShortPhrase    string `json:"shortPhrase"`    // 3-5 word summary shown to the user
	DetailedPrompt string `json:"detailedPrompt"` // Full prompt for the image model
}

// ImagePayload is a decoded image from the API surface. Images travel as
// data URIs ("data:image/png;base64,....") between the browser and server.
type ImagePayload struct {
	Data        []byte
	ContentType string
}

// ParseImageDataURI decodes a data URI into an ImagePayload. Only image
// media types are accepted.
func ParseImageDataURI(uri string) (ImagePayload, error) {
	const op = "generation.parse_image"

	if !strings.HasPrefix(uri, "data:image/") {
		return ImagePayload{}, Invalid(op, "Invalid image format. Please provide a data URI.")
	}

	meta, encoded, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return ImagePayload{}, Invalid(op, "Invalid image format. Please provide a data URI.")
	}

	contentType, params, _ := strings.Cut(meta, ";")
	if params != "base64" {
		return ImagePayload{}, Invalid(op, "Image data must be base64 encoded.")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ImagePayload{}, Invalid(op, "Image data is not valid base64.")
	}
	if len(data) == 0 {
		return ImagePayload{}, Invalid(op, "Image data is empty.")
	}

	return ImagePayload{Data: data, ContentType: contentType}, nil
}

// DataURI re-encodes the payload as a data URI for the API response.
func (p ImagePayload) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", p.ContentType, base64.StdEncoding.EncodeToString(p.Data))
}
