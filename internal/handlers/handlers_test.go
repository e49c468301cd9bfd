package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/maneesh/mailattach/internal/attachment"
	"github.com/maneesh/mailattach/internal/chunker"
	"github.com/maneesh/mailattach/internal/models"
	"github.com/maneesh/mailattach/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	mu      sync.Mutex
	entries []*models.Attachment
	err     error
}

func (f *fakeIndex) CreateAttachment(_ context.Context, a *models.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, a)
	return nil
}

func (f *fakeIndex) GetAttachment(_ context.Context, handle string) (*models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, a := range f.entries {
		if a.ManifestHandle == handle {
			return a, nil
		}
	}
	return nil, fmt.Errorf("attachment %s: %w", handle, attachment.ErrNotFound)
}

func (f *fakeIndex) ListAttachments(_ context.Context, limit int) ([]*models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if limit > len(f.entries) {
		limit = len(f.entries)
	}
	return f.entries[:limit], nil
}

type testServer struct {
	router *mux.Router
	blobs  *storage.MemoryBlobs
	index  *fakeIndex
}

func newTestServer(t *testing.T, withIndex bool) *testServer {
	t.Helper()
	opts := attachment.DefaultOptions()
	opts.MaxFileSize = 1000
	opts.MaxChunkSize = 64

	blobs := storage.NewMemoryBlobs()
	store := storage.NewObjectStore(blobs)

	ts := &testServer{router: mux.NewRouter(), blobs: blobs}
	var index AttachmentIndex
	if withIndex {
		ts.index = &fakeIndex{}
		index = ts.index
	}

	reconstructor := attachment.NewReconstructor[string](store, opts)
	Routes(ts.router,
		NewWriteHandler(attachment.NewPublisher[string](store, opts), index, opts.MaxFileSize),
		NewReadHandler(reconstructor),
		NewManifestHandler(reconstructor),
		NewListHandler(index),
		nil,
	)
	return ts
}

func (ts *testServer) do(method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, name string, body []byte) WriteResponse {
	t.Helper()
	rec := ts.do(http.MethodPut, "/attachments?name="+name, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp WriteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestUploadAndDownload(t *testing.T) {
	ts := newTestServer(t, true)
	body := bytes.Repeat([]byte("attachment-"), 30)

	resp := ts.upload(t, "invoice.pdf", body)
	assert.Equal(t, "invoice.pdf", resp.Filename)
	assert.Equal(t, "pdf", resp.FileType)
	assert.Equal(t, int64(len(body)), resp.Size)
	assert.Equal(t, 6, resp.ChunkCount)
	assert.Equal(t, chunker.ComputeHash(body), resp.DataHash)

	require.Len(t, ts.index.entries, 1)
	assert.Equal(t, resp.Handle, ts.index.entries[0].ManifestHandle)
	assert.NotEmpty(t, ts.index.entries[0].ID)

	rec := ts.do(http.MethodGet, "/attachments/"+resp.Handle, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, rec.Body.Bytes())
	assert.Equal(t, `attachment; filename=invoice.pdf`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "330", rec.Header().Get("Content-Length"))
}

func TestUploadMissingName(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.do(http.MethodPut, "/attachments", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadEmpty(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.do(http.MethodPut, "/attachments?name=a.txt", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, ts.blobs.Len())
}

func TestUploadTooLarge(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(http.MethodPut, "/attachments?name=exact.bin", make([]byte, 1000))
	assert.Equal(t, http.StatusCreated, rec.Code)

	before := ts.blobs.Len()
	rec = ts.do(http.MethodPut, "/attachments?name=big.bin", make([]byte, 1001))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, before, ts.blobs.Len())
}

func TestUploadIndexFailureStillSucceeds(t *testing.T) {
	ts := newTestServer(t, true)
	ts.index.err = errors.New("index down")

	rec := ts.do(http.MethodPut, "/attachments?name=a.txt", []byte("hello"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestDownloadUnknownHandle(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.do(http.MethodGet, "/attachments/"+chunker.ComputeHash([]byte("nothing")), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadMissingChunk(t *testing.T) {
	ts := newTestServer(t, false)
	resp := ts.upload(t, "notes.txt", bytes.Repeat([]byte("n"), 200))

	rec := ts.do(http.MethodGet, "/attachments/"+resp.Handle+"/manifest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var manifest models.Manifest[string]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &manifest))
	require.Len(t, manifest.Chunks, 4)

	// Chunks 0-2 share content and therefore one address; the last chunk is distinct.
	ts.blobs.Delete(storage.ObjectKey(storage.KindChunk, manifest.Chunks[3]))

	rec = ts.do(http.MethodGet, "/attachments/"+resp.Handle, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManifestEndpoint(t *testing.T) {
	ts := newTestServer(t, false)
	resp := ts.upload(t, "pic.jpeg", []byte("jpeg bytes"))

	rec := ts.do(http.MethodGet, "/attachments/"+resp.Handle+"/manifest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var manifest models.Manifest[string]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &manifest))
	assert.Equal(t, "pic.jpeg", manifest.Filename)
	assert.Equal(t, "jpeg", manifest.FileType)
	assert.Equal(t, int64(10), manifest.OrigFileSize)
	assert.Equal(t, resp.DataHash, manifest.DataHash)
}

func TestListAttachments(t *testing.T) {
	ts := newTestServer(t, true)
	ts.upload(t, "one.txt", []byte("1"))
	ts.upload(t, "two.txt", []byte("22"))

	rec := ts.do(http.MethodGet, "/attachments?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []*models.Attachment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "one.txt", list[0].Filename)

	rec = ts.do(http.MethodGet, "/attachments?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListWithoutIndex(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.do(http.MethodGet, "/attachments", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = ts.do(http.MethodGet, "/attachments/abc/index", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestIndexEntry(t *testing.T) {
	ts := newTestServer(t, true)
	resp := ts.upload(t, "minutes.md", []byte("# minutes"))

	rec := ts.do(http.MethodGet, "/attachments/"+resp.Handle+"/index", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var entry models.Attachment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, resp.Handle, entry.ManifestHandle)
	assert.Equal(t, "minutes.md", entry.Filename)
	assert.Equal(t, "md", entry.FileType)
	assert.Equal(t, int64(9), entry.Size)
	assert.NotEmpty(t, entry.ID)

	rec = ts.do(http.MethodGet, "/attachments/unknown/index", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadUnboundedLimit(t *testing.T) {
	opts := attachment.DefaultOptions()
	opts.MaxFileSize = math.MaxInt64
	opts.MaxChunkSize = 4

	store := storage.NewObjectStore(storage.NewMemoryBlobs())
	router := mux.NewRouter()
	reconstructor := attachment.NewReconstructor[string](store, opts)
	Routes(router,
		NewWriteHandler(attachment.NewPublisher[string](store, opts), nil, opts.MaxFileSize),
		NewReadHandler(reconstructor),
		NewManifestHandler(reconstructor),
		NewListHandler(nil),
		nil,
	)

	req := httptest.NewRequest(http.MethodPut, "/attachments?name=a.txt", bytes.NewReader([]byte("hello")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp WriteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(5), resp.Size)
	assert.Equal(t, 2, resp.ChunkCount)
}

func TestStatusFor(t *testing.T) {
	wrap := func(kind error) error { return &attachment.Error{Op: "op", Kind: kind} }

	assert.Equal(t, http.StatusRequestEntityTooLarge, statusFor(wrap(attachment.ErrFileTooLarge)))
	assert.Equal(t, http.StatusBadRequest, statusFor(wrap(attachment.ErrEmptyFile)))
	assert.Equal(t, http.StatusNotFound, statusFor(wrap(attachment.ErrNotFound)))
	assert.Equal(t, http.StatusBadGateway, statusFor(wrap(attachment.ErrIntegrity)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(wrap(attachment.ErrStoreWrite)))
}
