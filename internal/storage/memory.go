package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/maneesh/mailattach/internal/attachment"
)

// MemoryBlobs keeps blobs in process memory
type MemoryBlobs struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBlobs creates an empty in-memory blob store
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: make(map[string][]byte)}
}

// PutBlob stores a copy of data under key
func (mb *MemoryBlobs) PutBlob(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.blobs[key] = append([]byte(nil), data...)
	return nil
}

// GetBlob returns a copy of the blob under key
func (mb *MemoryBlobs) GetBlob(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	data, ok := mb.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", key, attachment.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Delete removes key if present
func (mb *MemoryBlobs) Delete(key string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	delete(mb.blobs, key)
}

// Len returns the number of stored blobs
func (mb *MemoryBlobs) Len() int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return len(mb.blobs)
}
