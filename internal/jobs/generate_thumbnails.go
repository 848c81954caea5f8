// Package jobs implements the background job handlers.
package jobs

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/anmolmahajan9/photo20-app/internal/repository"
	"github.com/anmolmahajan9/photo20-app/internal/storage"
	"github.com/anmolmahajan9/photo20-app/internal/worker"
)

const (
	// thumbnailMaxDim bounds both thumbnail dimensions, preserving aspect
	// ratio.
	thumbnailMaxDim = 320

	// thumbnailQuality is the JPEG quality for thumbnails.
	thumbnailQuality = 80
)

// GenerateThumbnailsHandler produces thumbnails for a generation's output
// images and records their storage paths.
type GenerateThumbnailsHandler struct {
	queries *repository.Queries
	store   storage.Storage
	logger  *slog.Logger
}

// NewGenerateThumbnailsHandler creates a handler for thumbnail jobs.
func NewGenerateThumbnailsHandler(queries *repository.Queries, store storage.Storage, logger *slog.Logger) *GenerateThumbnailsHandler {
	return &GenerateThumbnailsHandler{
		queries: queries,
		store:   store,
		logger:  logger,
	}
}

// Type returns the job type identifier.
func (h *GenerateThumbnailsHandler) Type() string {
	return worker.JobTypeGenerateThumbnails
}

// Handle loads the generation's output images from storage, scales each one
// down, stores the thumbnails, and updates the generation record.
func (h *GenerateThumbnailsHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.GenerateThumbnailsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	logger := h.logger.With("generation_id", p.GenerationID, "user_id", p.UserID)
	logger.Info("generating thumbnails")

	generation, err := h.queries.GetGeneration(ctx, p.GenerationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.NewPermanentError(fmt.Errorf("generation not found: %w", err))
		}
		return fmt.Errorf("fetch generation: %w", err)
	}
	if generation.UserID != p.UserID {
		return worker.NewPermanentError(fmt.Errorf("generation does not belong to user"))
	}
	if len(generation.StoragePaths) == 0 {
		logger.Info("generation has no stored outputs, nothing to do")
		return nil
	}

	thumbnailPaths := make([]string, 0, len(generation.StoragePaths))
	for i, path := range generation.StoragePaths {
		thumbKey := storage.ThumbnailKey(generation.UserID, generation.ID, i)
		if err := h.makeThumbnail(ctx, path, thumbKey); err != nil {
			return fmt.Errorf("thumbnail output %d: %w", i, err)
		}
		thumbnailPaths = append(thumbnailPaths, thumbKey)
	}

	if err := h.queries.UpdateGenerationThumbnails(ctx, generation.ID, thumbnailPaths); err != nil {
		return fmt.Errorf("record thumbnail paths: %w", err)
	}

	logger.Info("thumbnails generated", "count", len(thumbnailPaths))
	return nil
}

// makeThumbnail downloads one output image, scales it, and stores the JPEG
// thumbnail.
func (h *GenerateThumbnailsHandler) makeThumbnail(ctx context.Context, sourceKey, thumbKey string) error {
	reader, _, err := h.store.Get(ctx, sourceKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return worker.NewPermanentError(fmt.Errorf("source image missing: %w", err))
		}
		return fmt.Errorf("fetch source image: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read source image: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		// Undecodable bytes won't improve on retry.
		return worker.NewPermanentError(fmt.Errorf("decode image: %w", err))
	}

	thumb := imaging.Fit(img, thumbnailMaxDim, thumbnailMaxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}

	err = h.store.Put(ctx, thumbKey, &buf, storage.PutOptions{
		ContentType: "image/jpeg",
		Overwrite:   true,
	})
	if err != nil {
		return fmt.Errorf("store thumbnail: %w", err)
	}
	return nil
}
