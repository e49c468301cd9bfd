package handlers

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/maneesh/mailattach/internal/attachment"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReadHandler serves reconstructed attachments and their manifests
type ReadHandler struct {
	reconstructor *attachment.Reconstructor[string]
}

// NewReadHandler creates a new read handler
func NewReadHandler(reconstructor *attachment.Reconstructor[string]) *ReadHandler {
	return &ReadHandler{reconstructor: reconstructor}
}

// ServeHTTP handles GET /attachments/{handle}
func (rh *ReadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "read_attachment",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	handle := mux.Vars(r)["handle"]
	if handle == "" {
		http.Error(w, "missing handle in path", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("manifest_handle", handle))

	manifest, data, err := rh.reconstructor.Fetch(ctx, handle)
	if err != nil {
		span.RecordError(err)
		writeError(w, "failed to read attachment", err)
		return
	}

	name := attachment.OutputName(manifest.Filename)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logrus.WithField("handle", handle).WithError(err).Warn("Failed to write response")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "ReadHandler.ServeHTTP",
		"handle":   handle,
		"filename": name,
		"size":     len(data),
	}).Info("Attachment served")
}

// ManifestHandler serves manifests without fetching chunks
type ManifestHandler struct {
	reconstructor *attachment.Reconstructor[string]
}

// NewManifestHandler creates a new manifest handler
func NewManifestHandler(reconstructor *attachment.Reconstructor[string]) *ManifestHandler {
	return &ManifestHandler{reconstructor: reconstructor}
}

// ServeHTTP handles GET /attachments/{handle}/manifest
func (mh *ManifestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "read_manifest",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	handle := mux.Vars(r)["handle"]
	if handle == "" {
		http.Error(w, "missing handle in path", http.StatusBadRequest)
		return
	}

	manifest, err := mh.reconstructor.Manifest(ctx, handle)
	if err != nil {
		span.RecordError(err)
		writeError(w, "failed to read manifest", err)
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

// ListHandler lists indexed attachments
type ListHandler struct {
	index AttachmentIndex
}

// NewListHandler creates a new list handler. index may be nil.
func NewListHandler(index AttachmentIndex) *ListHandler {
	return &ListHandler{index: index}
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ServeHTTP handles GET /attachments?limit=N
func (lh *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if lh.index == nil {
		http.Error(w, "attachment index is not enabled", http.StatusNotImplemented)
		return
	}

	ctx, span := tracer.Start(r.Context(), "list_attachments",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			http.Error(w, fmt.Sprintf("invalid limit %q", s), http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := lh.index.ListAttachments(ctx, limit)
	if err != nil {
		span.RecordError(err)
		writeError(w, "failed to list attachments", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ServeIndexEntry handles GET /attachments/{handle}/index
func (lh *ListHandler) ServeIndexEntry(w http.ResponseWriter, r *http.Request) {
	if lh.index == nil {
		http.Error(w, "attachment index is not enabled", http.StatusNotImplemented)
		return
	}

	ctx, span := tracer.Start(r.Context(), "get_index_entry",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	handle := mux.Vars(r)["handle"]
	span.SetAttributes(attribute.String("manifest_handle", handle))

	entry, err := lh.index.GetAttachment(ctx, handle)
	if err != nil {
		span.RecordError(err)
		writeError(w, "failed to look up attachment", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Routes registers the attachment endpoints on router, wrapping each
// handler with wrap (for instrumentation) when it is non-nil.
func Routes(router *mux.Router, write *WriteHandler, read *ReadHandler, manifest *ManifestHandler, list *ListHandler, wrap func(http.Handler, string) http.Handler) {
	if wrap == nil {
		wrap = func(h http.Handler, _ string) http.Handler { return h }
	}
	router.Handle("/attachments", wrap(write, "PUT /attachments")).Methods(http.MethodPut)
	router.Handle("/attachments", wrap(list, "GET /attachments")).Methods(http.MethodGet)
	router.Handle("/attachments/{handle}", wrap(read, "GET /attachments/{handle}")).Methods(http.MethodGet)
	router.Handle("/attachments/{handle}/manifest", wrap(manifest, "GET /attachments/{handle}/manifest")).Methods(http.MethodGet)
	router.Handle("/attachments/{handle}/index", wrap(http.HandlerFunc(list.ServeIndexEntry), "GET /attachments/{handle}/index")).Methods(http.MethodGet)
}
