package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/maneesh/mailattach/internal/attachment"
	"github.com/maneesh/mailattach/internal/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("mailattach-handlers")

// AttachmentIndex records and lists published attachments. GetAttachment
// returns an error wrapping attachment.ErrNotFound for unindexed handles.
type AttachmentIndex interface {
	CreateAttachment(ctx context.Context, a *models.Attachment) error
	GetAttachment(ctx context.Context, handle string) (*models.Attachment, error)
	ListAttachments(ctx context.Context, limit int) ([]*models.Attachment, error)
}

// WriteHandler handles attachment upload requests
type WriteHandler struct {
	publisher   *attachment.Publisher[string]
	index       AttachmentIndex
	maxFileSize int64
}

// NewWriteHandler creates a new write handler. index may be nil.
func NewWriteHandler(publisher *attachment.Publisher[string], index AttachmentIndex, maxFileSize int64) *WriteHandler {
	return &WriteHandler{
		publisher:   publisher,
		index:       index,
		maxFileSize: maxFileSize,
	}
}

// WriteResponse represents the response for a write operation
type WriteResponse struct {
	Handle     string `json:"handle"`
	Filename   string `json:"filename"`
	FileType   string `json:"filetype"`
	Size       int64  `json:"size"`
	ChunkCount int    `json:"chunk_count"`
	DataHash   string `json:"data_hash"`
}

// ServeHTTP handles PUT /attachments?name=filename
func (wh *WriteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "write_attachment",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	filename := r.URL.Query().Get("name")
	if filename == "" {
		http.Error(w, "missing 'name' query parameter", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("file_name", filename))

	// Read one byte past the limit so oversize bodies are rejected by the publisher.
	data, err := io.ReadAll(io.LimitReader(r.Body, attachment.ReadLimit(wh.maxFileSize)))
	r.Body.Close()
	if err != nil {
		span.RecordError(err)
		http.Error(w, fmt.Sprintf("failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	handle, manifest, err := wh.publisher.PublishBytes(ctx, attachment.MetadataFromPath(filename), data)
	if err != nil {
		span.RecordError(err)
		writeError(w, "failed to publish attachment", err)
		return
	}

	span.SetAttributes(
		attribute.String("manifest_handle", handle),
		attribute.Int("chunk_count", len(manifest.Chunks)),
	)

	if wh.index != nil {
		entry := &models.Attachment{
			ID:             uuid.New().String(),
			ManifestHandle: handle,
			Filename:       manifest.Filename,
			FileType:       manifest.FileType,
			Size:           manifest.OrigFileSize,
			DataHash:       manifest.DataHash,
			ChunkCount:     len(manifest.Chunks),
			CreatedAt:      time.Now().UTC(),
		}
		// The manifest is already durable; a missing index row only hides it from listings.
		if err := wh.index.CreateAttachment(ctx, entry); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "WriteHandler.ServeHTTP",
				"handle":   handle,
				"error":    err.Error(),
			}).Warn("Failed to index attachment")
		}
	}

	writeJSON(w, http.StatusCreated, WriteResponse{
		Handle:     handle,
		Filename:   manifest.Filename,
		FileType:   manifest.FileType,
		Size:       manifest.OrigFileSize,
		ChunkCount: len(manifest.Chunks),
		DataHash:   manifest.DataHash,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Failed to encode response")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, attachment.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, attachment.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, attachment.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attachment.ErrIntegrity), errors.Is(err, attachment.ErrCorrupt):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	entry := logrus.WithFields(logrus.Fields{
		"status": status,
		"error":  err.Error(),
	})
	if status >= http.StatusInternalServerError {
		entry.Error(msg)
	} else {
		entry.Info(msg)
	}
	http.Error(w, fmt.Sprintf("%s: %v", msg, err), status)
}
