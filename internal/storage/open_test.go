package storage

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/maneesh/mailattach/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory(t *testing.T) {
	store, closeFn, err := Open(context.Background(), &config.Config{StoreBackend: config.BackendMemory})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &ObjectStore{}, store)
}

func TestOpenMemoryWithCache(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	store, closeFn, err := Open(context.Background(), &config.Config{
		StoreBackend: config.BackendMemory,
		CacheEnabled: true,
		RedisHost:    host,
		RedisPort:    port,
		CacheTTL:     time.Minute,
	})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &CachedStore{}, store)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, _, err := Open(context.Background(), &config.Config{StoreBackend: "tape"})
	assert.Error(t, err)
}
