package attachment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/maneesh/mailattach/internal/models"
)

var errInjected = errors.New("injected store failure")

// mockStore hands out sequential integer handles and records every call.
type mockStore struct {
	mu        sync.Mutex
	next      int
	chunks    map[int]*models.FileChunk
	manifests map[int]*models.Manifest[int]

	chunkWrites    int
	manifestWrites int
	chunkReads     []int

	failChunkWrite int // 1-based write number to fail, 0 disables
	failManifest   bool
	failRead       map[int]error
}

func newMockStore() *mockStore {
	return &mockStore{
		chunks:    make(map[int]*models.FileChunk),
		manifests: make(map[int]*models.Manifest[int]),
		failRead:  make(map[int]error),
	}
}

func (m *mockStore) WriteChunk(_ context.Context, chunk *models.FileChunk) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkWrites++
	if m.failChunkWrite != 0 && m.chunkWrites == m.failChunkWrite {
		return 0, errInjected
	}
	m.next++
	copied := *chunk
	m.chunks[m.next] = &copied
	return m.next, nil
}

func (m *mockStore) WriteManifest(_ context.Context, manifest *models.Manifest[int]) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifestWrites++
	if m.failManifest {
		return 0, errInjected
	}
	m.next++
	copied := *manifest
	copied.Chunks = append([]int(nil), manifest.Chunks...)
	m.manifests[m.next] = &copied
	return m.next, nil
}

func (m *mockStore) GetManifest(_ context.Context, handle int) (*models.Manifest[int], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	manifest, ok := m.manifests[handle]
	if !ok {
		return nil, fmt.Errorf("manifest %d: %w", handle, ErrNotFound)
	}
	return manifest, nil
}

func (m *mockStore) GetChunk(_ context.Context, handle int) (*models.FileChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkReads = append(m.chunkReads, handle)
	if err, ok := m.failRead[handle]; ok {
		return nil, err
	}
	chunk, ok := m.chunks[handle]
	if !ok {
		return nil, fmt.Errorf("chunk %d: %w", handle, ErrNotFound)
	}
	copied := *chunk
	return &copied, nil
}

func (m *mockStore) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunkWrites + m.manifestWrites
}
