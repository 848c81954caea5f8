package jobs

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"log/slog"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anmolmahajan9/photo20-app/internal/storage"
	"github.com/anmolmahajan9/photo20-app/internal/worker"
)

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.NewLocalStorage(storage.LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://localhost/files",
	}, logger)
	require.NoError(t, err)
	return store
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := imaging.New(width, height, color.White)
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestMakeThumbnail_ScalesDown(t *testing.T) {
	store := newTestStorage(t)
	handler := NewGenerateThumbnailsHandler(nil, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	source := encodePNG(t, 1600, 800)
	require.NoError(t, store.Put(ctx, "src.png", bytes.NewReader(source), storage.PutOptions{ContentType: "image/png"}))

	require.NoError(t, handler.makeThumbnail(ctx, "src.png", "thumb.jpg"))

	reader, info, err := store.Get(ctx, "thumb.jpg")
	require.NoError(t, err)
	defer reader.Close()
	assert.Equal(t, "image/jpeg", info.ContentType)

	thumb, err := imaging.Decode(reader)
	require.NoError(t, err)
	bounds := thumb.Bounds()
	assert.Equal(t, thumbnailMaxDim, bounds.Dx())
	assert.Equal(t, thumbnailMaxDim/2, bounds.Dy())
}

func TestMakeThumbnail_MissingSourceIsPermanent(t *testing.T) {
	store := newTestStorage(t)
	handler := NewGenerateThumbnailsHandler(nil, store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := handler.makeThumbnail(context.Background(), "does-not-exist.png", "thumb.jpg")
	require.Error(t, err)
	assert.True(t, worker.IsPermanent(err))
}

func TestMakeThumbnail_UndecodableIsPermanent(t *testing.T) {
	store := newTestStorage(t)
	handler := NewGenerateThumbnailsHandler(nil, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "garbage.png", bytes.NewReader([]byte("not an image")), storage.PutOptions{}))

	err := handler.makeThumbnail(ctx, "garbage.png", "thumb.jpg")
	require.Error(t, err)
	assert.True(t, worker.IsPermanent(err))
}

func TestHandle_InvalidPayloadIsPermanent(t *testing.T) {
	handler := NewGenerateThumbnailsHandler(nil, newTestStorage(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := handler.Handle(context.Background(), []byte("{invalid"))
	require.Error(t, err)
	assert.True(t, worker.IsPermanent(err))
}
