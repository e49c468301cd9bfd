package attachment

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/maneesh/mailattach/internal/chunker"
	"github.com/maneesh/mailattach/internal/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("mailattach-attachment")

// NoFilename is recorded when a path has no final segment.
const NoFilename = "__no_filename_found_"

// FileMetadata is the descriptive part of a manifest
type FileMetadata struct {
	Filename string
	FileType string
}

// MetadataFromPath derives the filename from the final path segment and the
// file type from its extension, without the leading dot.
func MetadataFromPath(path string) FileMetadata {
	name := filepath.Base(path)
	if name == "." || name == ".." || name == string(filepath.Separator) || name == "" {
		name = NoFilename
	}
	return FileMetadata{
		Filename: name,
		FileType: strings.TrimPrefix(filepath.Ext(name), "."),
	}
}

// Publisher writes chunk records followed by a manifest
type Publisher[H any] struct {
	store   Writer[H]
	chunker *chunker.Chunker
	opts    Options
	invalid error
}

// NewPublisher creates a publisher writing through store. If opts fail
// Validate every publish returns ErrInvalidOptions.
func NewPublisher[H any](store Writer[H], opts Options) *Publisher[H] {
	p := &Publisher[H]{
		store:   store,
		chunker: chunker.NewChunker(opts.MaxChunkSize, opts.MaxFileSize),
		opts:    opts,
	}
	if err := opts.Validate(); err != nil {
		p.invalid = err
	}
	return p
}

func (p *Publisher[H]) checkOptions(path string) error {
	if p.invalid != nil {
		return pathError("publish", path, ErrInvalidOptions, p.invalid)
	}
	return nil
}

// PublishFile publishes the regular file at path. Size and type checks run
// before the file is read and before any store call.
func (p *Publisher[H]) PublishFile(ctx context.Context, path string) (H, *models.Manifest[H], error) {
	var zero H
	ctx, span := tracer.Start(ctx, "publish_file",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	if err := p.checkOptions(path); err != nil {
		return zero, nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		span.RecordError(err)
		return zero, nil, pathError("stat", path, ErrIO, err)
	}
	if !info.Mode().IsRegular() {
		return zero, nil, pathError("publish", path, ErrNotRegularFile, nil)
	}
	if info.Size() > p.opts.MaxFileSize {
		return zero, nil, pathError("publish", path, ErrFileTooLarge,
			fmt.Errorf("%d bytes exceeds limit of %d", info.Size(), p.opts.MaxFileSize))
	}
	if info.Size() == 0 {
		return zero, nil, pathError("publish", path, ErrEmptyFile, nil)
	}

	file, err := os.Open(path)
	if err != nil {
		span.RecordError(err)
		return zero, nil, pathError("open", path, ErrIO, err)
	}
	defer file.Close()

	// One byte past the limit so a file that grew after Stat still trips the check.
	data, err := io.ReadAll(io.LimitReader(file, ReadLimit(p.opts.MaxFileSize)))
	if err != nil {
		span.RecordError(err)
		return zero, nil, pathError("read", path, ErrIO, err)
	}

	return p.publishBytes(ctx, path, MetadataFromPath(path), data)
}

// PublishBytes publishes an in-memory attachment
func (p *Publisher[H]) PublishBytes(ctx context.Context, meta FileMetadata, data []byte) (H, *models.Manifest[H], error) {
	if err := p.checkOptions(meta.Filename); err != nil {
		var zero H
		return zero, nil, err
	}
	return p.publishBytes(ctx, meta.Filename, meta, data)
}

func (p *Publisher[H]) publishBytes(ctx context.Context, path string, meta FileMetadata, data []byte) (H, *models.Manifest[H], error) {
	var zero H
	if meta.Filename == "" {
		meta.Filename = NoFilename
	}

	wholeHash, chunks, err := p.chunker.Split(data)
	if err != nil {
		return zero, nil, pathError("chunk", path, err, nil)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Publish",
		"filename":    meta.Filename,
		"size":        len(data),
		"chunk_count": len(chunks),
	}).Debug("Attachment chunked")

	return p.publish(ctx, meta, wholeHash, chunks)
}

// Publish writes every chunk in index order, then the manifest. Chunk handles
// are assembled by index regardless of write completion order. If any chunk
// write fails no manifest is written.
func (p *Publisher[H]) Publish(ctx context.Context, meta FileMetadata, wholeHash string, chunks []*models.ChunkData) (H, *models.Manifest[H], error) {
	if err := p.checkOptions(meta.Filename); err != nil {
		var zero H
		return zero, nil, err
	}
	return p.publish(ctx, meta, wholeHash, chunks)
}

func (p *Publisher[H]) publish(ctx context.Context, meta FileMetadata, wholeHash string, chunks []*models.ChunkData) (H, *models.Manifest[H], error) {
	var zero H
	ctx, span := tracer.Start(ctx, "publish_attachment",
		trace.WithAttributes(
			attribute.String("file_name", meta.Filename),
			attribute.Int("chunk_count", len(chunks)),
		),
	)
	defer span.End()

	if len(chunks) == 0 {
		return zero, nil, pathError("publish", meta.Filename, ErrEmptyFile, nil)
	}

	var size int64
	for i, ch := range chunks {
		if ch.OrderIndex != i {
			return zero, nil, &Error{Op: "publish", Path: meta.Filename, Kind: ErrChunkOrder,
				Err: fmt.Errorf("chunk at position %d has index %d", i, ch.OrderIndex)}
		}
		size += ch.Size
	}

	handles, err := p.writeChunks(ctx, meta.Filename, chunks)
	if err != nil {
		span.RecordError(err)
		return zero, nil, err
	}

	manifest := &models.Manifest[H]{
		DataHash:     wholeHash,
		Filename:     meta.Filename,
		FileType:     meta.FileType,
		OrigFileSize: size,
		Chunks:       handles,
	}

	handle, err := p.store.WriteManifest(ctx, manifest)
	if err != nil {
		span.RecordError(err)
		return zero, nil, &Error{Op: "write manifest", Path: meta.Filename, Kind: ErrStoreWrite, Err: err}
	}

	span.SetAttributes(attribute.String("manifest_handle", fmt.Sprint(handle)))
	logrus.WithFields(logrus.Fields{
		"function":    "Publish",
		"filename":    meta.Filename,
		"size":        size,
		"chunk_count": len(handles),
		"handle":      fmt.Sprint(handle),
	}).Info("Attachment published")

	return handle, manifest, nil
}

func (p *Publisher[H]) writeChunks(ctx context.Context, filename string, chunks []*models.ChunkData) ([]H, error) {
	ctx, span := tracer.Start(ctx, "write_chunks",
		trace.WithAttributes(attribute.Int("chunk_count", len(chunks))),
	)
	defer span.End()

	handles := make([]H, len(chunks))

	if p.opts.workers() == 1 {
		for i, ch := range chunks {
			h, err := p.writeChunk(ctx, filename, ch)
			if err != nil {
				return nil, err
			}
			handles[i] = h
		}
		return handles, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.workers())
	for i, ch := range chunks {
		i, ch := i, ch
		g.Go(func() error {
			h, err := p.writeChunk(gctx, filename, ch)
			if err != nil {
				return err
			}
			handles[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return handles, nil
}

func (p *Publisher[H]) writeChunk(ctx context.Context, filename string, ch *models.ChunkData) (H, error) {
	var zero H
	op := fmt.Sprintf("write chunk %d", ch.OrderIndex)

	if err := ctx.Err(); err != nil {
		return zero, &Error{Op: op, Path: filename, Kind: ErrStoreWrite, Err: err}
	}

	record := &models.FileChunk{
		DataHash:   ch.Hash,
		ChunkIndex: ch.OrderIndex,
		Chunk:      chunker.EncodeChunk(ch.Data),
	}
	h, err := p.store.WriteChunk(ctx, record)
	if err != nil {
		return zero, &Error{Op: op, Path: filename, Kind: ErrStoreWrite, Err: err}
	}
	return h, nil
}
