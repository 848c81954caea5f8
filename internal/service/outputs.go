package service

import (
	"bytes"
	"context"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
	"github.com/anmolmahajan9/photo20-app/internal/storage"
)

// storageOutputs adapts storage.Storage to the OutputStore the generation
// service needs.
type storageOutputs struct {
	store storage.Storage
}

// NewOutputStore wraps a storage backend as an OutputStore.
func NewOutputStore(store storage.Storage) OutputStore {
	return &storageOutputs{store: store}
}

func (s *storageOutputs) PutImage(ctx context.Context, key string, image domain.ImagePayload) error {
	return s.store.Put(ctx, key, bytes.NewReader(image.Data), storage.PutOptions{
		ContentType: image.ContentType,
		Overwrite:   true,
	})
}

func (s *storageOutputs) PublicURL(ctx context.Context, key string) (string, error) {
	return s.store.URL(ctx, key, 0)
}
