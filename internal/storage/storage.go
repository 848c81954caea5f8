// Package storage provides object storage for uploaded and generated
// product photos.
//
// Two implementations are provided:
// - LocalStorage: filesystem storage for development
// - R2Storage: Cloudflare R2 (S3-compatible) storage for production
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage defines the interface for object storage operations.
// All methods are context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at the specified key. Unless opts.Overwrite is set,
	// ErrKeyExists is returned when the key is already occupied.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get retrieves the data at the specified key. The caller must close
	// the returned reader. Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at the specified key. Idempotent.
	Delete(ctx context.Context, key string) error

	// URL returns a URL for accessing the object: a permanent URL for
	// public objects, otherwise a presigned URL valid for expires.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists reports whether an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// Data Types
// =============================================================================

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is the MIME type of the object. If empty, it is detected
	// from the key's extension or the content itself.
	ContentType string

	// MaxSize caps the object size in bytes; ErrTooLarge is returned when
	// exceeded. Zero means no limit.
	MaxSize int64

	// Overwrite allows replacing an existing object at the same key.
	Overwrite bool

	// Public marks the object publicly readable where the provider
	// supports it.
	Public bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// =============================================================================
// Configuration Types
// =============================================================================

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory where files are stored.
	BasePath string

	// BaseURL is the public URL prefix for accessing files,
	// e.g. "http://localhost:8080/files".
	BaseURL string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// PublicURL is the public URL for the bucket (custom domain). If
	// empty, presigned URLs are used for all access.
	PublicURL string

	// Region can be any valid region string; R2 is globally distributed.
	// Default: "auto".
	Region string
}

// Provider names accepted in configuration.
const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// =============================================================================
// Key Generation Helpers
// =============================================================================

// GenerationKey builds the storage key for the Nth output image of a
// generation run.
// Format: generations/{userID}/{generationID}/output_{n}{ext}
func GenerationKey(userID string, generationID uuid.UUID, index int, contentType string) string {
	return fmt.Sprintf("generations/%s/%s/output_%d%s", userID, generationID, index, ExtensionForContentType(contentType))
}

// SourceKey builds the storage key for the uploaded source photo of a
// generation run.
func SourceKey(userID string, generationID uuid.UUID, contentType string) string {
	return fmt.Sprintf("generations/%s/%s/source%s", userID, generationID, ExtensionForContentType(contentType))
}

// ThumbnailKey builds the storage key for the thumbnail of the Nth output
// image of a generation run. Thumbnails are always JPEG.
func ThumbnailKey(userID string, generationID uuid.UUID, index int) string {
	return fmt.Sprintf("generations/%s/%s/thumb_%d.jpg", userID, generationID, index)
}
