package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/maneesh/mailattach/internal/attachment"
	"github.com/maneesh/mailattach/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrAddressMismatch is returned when a blob does not hash to its key.
var ErrAddressMismatch = errors.New("record does not match its content address")

// ObjectStore is a content-addressed attachment store over a Blobs backend.
// Handles are the hex content addresses of the stored records.
type ObjectStore struct {
	blobs Blobs
}

var _ attachment.Store[string] = (*ObjectStore)(nil)

// NewObjectStore creates a store writing records into blobs
func NewObjectStore(blobs Blobs) *ObjectStore {
	return &ObjectStore{blobs: blobs}
}

// WriteChunk stores a chunk record and returns its address
func (s *ObjectStore) WriteChunk(ctx context.Context, chunk *models.FileChunk) (string, error) {
	ctx, span := tracer.Start(ctx, "store.write_chunk",
		trace.WithAttributes(attribute.Int("chunk_index", chunk.ChunkIndex)),
	)
	defer span.End()

	return s.put(ctx, span, KindChunk, chunk)
}

// WriteManifest stores a manifest record and returns its address
func (s *ObjectStore) WriteManifest(ctx context.Context, manifest *models.Manifest[string]) (string, error) {
	ctx, span := tracer.Start(ctx, "store.write_manifest",
		trace.WithAttributes(
			attribute.String("file_name", manifest.Filename),
			attribute.Int("chunk_count", len(manifest.Chunks)),
		),
	)
	defer span.End()

	return s.put(ctx, span, KindManifest, manifest)
}

// GetManifest fetches and decodes the manifest at handle
func (s *ObjectStore) GetManifest(ctx context.Context, handle string) (*models.Manifest[string], error) {
	ctx, span := tracer.Start(ctx, "store.get_manifest",
		trace.WithAttributes(attribute.String("handle", handle)),
	)
	defer span.End()

	var manifest models.Manifest[string]
	if err := s.get(ctx, span, KindManifest, handle, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// GetChunk fetches and decodes the chunk record at handle
func (s *ObjectStore) GetChunk(ctx context.Context, handle string) (*models.FileChunk, error) {
	ctx, span := tracer.Start(ctx, "store.get_chunk",
		trace.WithAttributes(attribute.String("handle", handle)),
	)
	defer span.End()

	var chunk models.FileChunk
	if err := s.get(ctx, span, KindChunk, handle, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

func (s *ObjectStore) put(ctx context.Context, span trace.Span, kind string, record any) (string, error) {
	body, address, err := Encode(kind, record)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	if err := s.blobs.PutBlob(ctx, ObjectKey(kind, address), body); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to store %s record: %w", kind, err)
	}

	span.SetAttributes(
		attribute.String("handle", address),
		attribute.Int("size_bytes", len(body)),
	)
	return address, nil
}

func (s *ObjectStore) get(ctx context.Context, span trace.Span, kind, handle string, out any) error {
	body, err := s.blobs.GetBlob(ctx, ObjectKey(kind, handle))
	if err != nil {
		span.RecordError(err)
		return err
	}

	if Address(kind, body) != handle {
		err := fmt.Errorf("%s %s: %w", kind, handle, ErrAddressMismatch)
		span.RecordError(err)
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to decode %s %s: %w", kind, handle, err)
	}
	return nil
}
