package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/maneesh/mailattach/internal/attachment"
	"github.com/maneesh/mailattach/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, *RedisClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := NewRedisClient(context.Background(), mr.Addr(), "", 0, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })
	return mr, rc
}

func sampleManifest() *models.Manifest[string] {
	return &models.Manifest[string]{
		DataHash:     "abc",
		Filename:     "letter.txt",
		FileType:     "txt",
		OrigFileSize: 12,
		Chunks:       []string{"h1", "h2"},
	}
}

func TestRedisClientMiss(t *testing.T) {
	_, rc := newTestCache(t)

	manifest, err := rc.GetManifest(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, manifest)
}

func TestRedisClientSetGet(t *testing.T) {
	mr, rc := newTestCache(t)

	require.NoError(t, rc.SetManifest(context.Background(), "h", sampleManifest()))
	assert.True(t, mr.Exists("manifest:h"))
	assert.Equal(t, time.Hour, mr.TTL("manifest:h"))

	got, err := rc.GetManifest(context.Background(), "h")
	require.NoError(t, err)
	assert.Equal(t, sampleManifest(), got)
}

func TestRedisClientCorruptEntry(t *testing.T) {
	mr, rc := newTestCache(t)
	require.NoError(t, mr.Set("manifest:h", "{not json"))

	_, err := rc.GetManifest(context.Background(), "h")
	assert.Error(t, err)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), addr, "", 0, 0)
	assert.Error(t, err)
}

func TestCachedStorePrimesOnWrite(t *testing.T) {
	mr, rc := newTestCache(t)
	blobs := NewMemoryBlobs()
	store := NewCachedStore(NewObjectStore(blobs), rc)

	handle, _, err := attachment.NewPublisher[string](store, testOptions()).
		PublishBytes(context.Background(), attachment.FileMetadata{Filename: "a.txt", FileType: "txt"}, []byte("cached body"))
	require.NoError(t, err)
	assert.True(t, mr.Exists("manifest:"+handle))

	// The manifest keeps resolving from the cache once the backing blob is gone.
	blobs.Delete(ObjectKey(KindManifest, handle))

	manifest, err := store.GetManifest(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", manifest.Filename)
}

func TestCachedStoreFillsOnMiss(t *testing.T) {
	mr, rc := newTestCache(t)
	backing := NewObjectStore(NewMemoryBlobs())

	handle, err := backing.WriteManifest(context.Background(), sampleManifest())
	require.NoError(t, err)
	assert.False(t, mr.Exists("manifest:"+handle))

	store := NewCachedStore(backing, rc)
	manifest, err := store.GetManifest(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, sampleManifest(), manifest)
	assert.True(t, mr.Exists("manifest:"+handle))
}

func TestCachedStoreSurvivesCacheOutage(t *testing.T) {
	mr, rc := newTestCache(t)
	store := NewCachedStore(NewObjectStore(NewMemoryBlobs()), rc)
	opts := testOptions()

	mr.Close()

	data := []byte("still works without redis")
	handle, _, err := attachment.NewPublisher[string](store, opts).
		PublishBytes(context.Background(), attachment.FileMetadata{Filename: "b.txt"}, data)
	require.NoError(t, err)

	_, got, err := attachment.NewReconstructor[string](store, opts).Fetch(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCachedStoreNotFound(t *testing.T) {
	_, rc := newTestCache(t)
	store := NewCachedStore(NewObjectStore(NewMemoryBlobs()), rc)

	_, err := store.GetManifest(context.Background(), "missing")
	assert.ErrorIs(t, err, attachment.ErrNotFound)
}

func TestCachedStoreRejectsTamperedEntry(t *testing.T) {
	mr, rc := newTestCache(t)
	backing := NewObjectStore(NewMemoryBlobs())

	handle, err := backing.WriteManifest(context.Background(), sampleManifest())
	require.NoError(t, err)

	forged := sampleManifest()
	forged.Filename = "forged.exe"
	require.NoError(t, rc.SetManifest(context.Background(), handle, forged))

	store := NewCachedStore(backing, rc)
	manifest, err := store.GetManifest(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, sampleManifest(), manifest)

	// The backing store's copy replaces the bad entry.
	cached, err := rc.GetManifest(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, "letter.txt", cached.Filename)
	assert.True(t, mr.Exists("manifest:"+handle))
}
