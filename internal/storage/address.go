package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/maneesh/mailattach/internal/chunker"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("mailattach-storage")

// Record kinds, also used as object key prefixes.
const (
	KindChunk    = "chunks"
	KindManifest = "manifests"
)

// Encode returns the canonical JSON body of a record and its content address:
// the BLAKE2b-256 hex digest of kind, a NUL byte and the body.
func Encode(kind string, record any) ([]byte, string, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode %s record: %w", kind, err)
	}
	return body, Address(kind, body), nil
}

// Address computes the content address of an encoded record
func Address(kind string, body []byte) string {
	buf := make([]byte, 0, len(kind)+1+len(body))
	buf = append(buf, kind...)
	buf = append(buf, 0)
	buf = append(buf, body...)
	return chunker.ComputeHash(buf)
}

// ObjectKey maps a record address to its blob key
func ObjectKey(kind, address string) string {
	return kind + "/" + address
}

// Blobs is a flat key/value blob store. GetBlob returns an error wrapping
// attachment.ErrNotFound for unknown keys.
type Blobs interface {
	PutBlob(ctx context.Context, key string, data []byte) error
	GetBlob(ctx context.Context, key string) ([]byte, error)
}
