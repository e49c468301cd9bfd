// Package attachment publishes files as chunked, content-addressed records
// and reconstructs them from a manifest handle.
//
// The store behind both directions is an external collaborator. Its handle
// type H is opaque here: handles are only collected, stored in manifests and
// passed back.
package attachment

import (
	"context"

	"github.com/maneesh/mailattach/internal/models"
)

// Writer persists chunk and manifest records and returns their handles.
type Writer[H any] interface {
	WriteChunk(ctx context.Context, chunk *models.FileChunk) (H, error)
	WriteManifest(ctx context.Context, manifest *models.Manifest[H]) (H, error)
}

// Reader fetches records by handle. Implementations return an error
// wrapping ErrNotFound when a handle has no record.
type Reader[H any] interface {
	GetManifest(ctx context.Context, handle H) (*models.Manifest[H], error)
	GetChunk(ctx context.Context, handle H) (*models.FileChunk, error)
}

// Store is a content-addressable record store
type Store[H any] interface {
	Writer[H]
	Reader[H]
}
