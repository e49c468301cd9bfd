package attachment

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/maneesh/mailattach/internal/chunker"
	"github.com/maneesh/mailattach/internal/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Reconstructor reassembles attachments from their manifest handle
type Reconstructor[H any] struct {
	store   Reader[H]
	opts    Options
	invalid error
}

// NewReconstructor creates a reconstructor reading from store. Only the
// concurrency and verify settings of opts apply.
func NewReconstructor[H any](store Reader[H], opts Options) *Reconstructor[H] {
	r := &Reconstructor[H]{store: store, opts: opts}
	if err := opts.validateRead(); err != nil {
		r.invalid = err
	}
	return r
}

// Manifest fetches the manifest for handle without its chunks
func (r *Reconstructor[H]) Manifest(ctx context.Context, handle H) (*models.Manifest[H], error) {
	ctx, span := tracer.Start(ctx, "get_manifest",
		trace.WithAttributes(attribute.String("manifest_handle", fmt.Sprint(handle))),
	)
	defer span.End()

	if r.invalid != nil {
		return nil, &Error{Op: "get manifest", Handle: fmt.Sprint(handle), Kind: ErrInvalidOptions, Err: r.invalid}
	}

	manifest, err := r.store.GetManifest(ctx, handle)
	if err != nil {
		span.RecordError(err)
		return nil, storeError("get manifest", handle, ErrStoreRead, err)
	}
	if manifest == nil {
		return nil, storeError("get manifest", handle, ErrNotFound, ErrNotFound)
	}
	return manifest, nil
}

// Fetch returns the manifest and the reassembled file contents. Chunks are
// appended strictly in manifest order.
func (r *Reconstructor[H]) Fetch(ctx context.Context, handle H) (*models.Manifest[H], []byte, error) {
	ctx, span := tracer.Start(ctx, "fetch_attachment",
		trace.WithAttributes(attribute.String("manifest_handle", fmt.Sprint(handle))),
	)
	defer span.End()

	manifest, err := r.Manifest(ctx, handle)
	if err != nil {
		return nil, nil, err
	}

	span.SetAttributes(
		attribute.String("file_name", manifest.Filename),
		attribute.Int64("file_size", manifest.OrigFileSize),
		attribute.Int("chunk_count", len(manifest.Chunks)),
	)

	parts, err := r.fetchChunks(ctx, manifest.Chunks)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	data := chunker.ReassembleChunks(parts)

	if r.opts.Verify == VerifyContent {
		if err := verify(manifest, data); err != nil {
			span.RecordError(err)
			return nil, nil, &Error{Op: "verify", Handle: fmt.Sprint(handle), Kind: ErrIntegrity, Err: err}
		}
	}

	return manifest, data, nil
}

// Reconstruct fetches the attachment and writes it to destDir under the
// manifest's filename, replacing any existing file. The output appears in one
// rename; on failure nothing is left at the destination.
func (r *Reconstructor[H]) Reconstruct(ctx context.Context, handle H, destDir string) (string, error) {
	manifest, data, err := r.Fetch(ctx, handle)
	if err != nil {
		return "", err
	}

	outPath := filepath.Join(destDir, OutputName(manifest.Filename))
	if err := writeFileAtomic(outPath, data); err != nil {
		return "", pathError("write", outPath, ErrIO, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Reconstruct",
		"handle":   fmt.Sprint(handle),
		"path":     outPath,
		"size":     len(data),
	}).Info("Attachment reconstructed")

	return outPath, nil
}

func (r *Reconstructor[H]) fetchChunks(ctx context.Context, handles []H) ([][]byte, error) {
	ctx, span := tracer.Start(ctx, "fetch_chunks",
		trace.WithAttributes(attribute.Int("chunk_count", len(handles))),
	)
	defer span.End()

	parts := make([][]byte, len(handles))

	if r.opts.workers() == 1 {
		for i, h := range handles {
			data, err := r.fetchChunk(ctx, i, h)
			if err != nil {
				return nil, err
			}
			parts[i] = data
		}
		return parts, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.workers())
	for i, h := range handles {
		i, h := i, h
		g.Go(func() error {
			data, err := r.fetchChunk(gctx, i, h)
			if err != nil {
				return err
			}
			parts[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

func (r *Reconstructor[H]) fetchChunk(ctx context.Context, index int, handle H) ([]byte, error) {
	op := fmt.Sprintf("get chunk %d", index)
	if err := ctx.Err(); err != nil {
		return nil, storeError(op, handle, ErrStoreRead, err)
	}

	record, err := r.store.GetChunk(ctx, handle)
	if err != nil {
		return nil, storeError(op, handle, ErrStoreRead, err)
	}
	if record == nil {
		return nil, storeError(op, handle, ErrNotFound, ErrNotFound)
	}

	data, err := chunker.DecodeChunk(record.Chunk)
	if err != nil {
		return nil, storeError(op, handle, ErrCorrupt, err)
	}
	if r.opts.Verify == VerifyContent && !chunker.VerifyChunkHash(data, record.DataHash) {
		return nil, &Error{Op: op, Handle: fmt.Sprint(handle), Kind: ErrIntegrity,
			Err: fmt.Errorf("chunk does not match its recorded hash %s", record.DataHash)}
	}
	return data, nil
}

func verify[H any](manifest *models.Manifest[H], data []byte) error {
	if int64(len(data)) != manifest.OrigFileSize {
		return fmt.Errorf("got %d bytes, manifest records %d", len(data), manifest.OrigFileSize)
	}
	if got := chunker.ComputeHash(data); got != manifest.DataHash {
		return fmt.Errorf("hash %s, manifest records %s", got, manifest.DataHash)
	}
	return nil
}

// OutputName reduces a manifest filename to a single path segment so a
// reconstruction cannot escape its destination directory.
func OutputName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	switch name {
	case "", ".", "..", "/":
		return NoFilename
	}
	return name
}

func writeFileAtomic(outPath string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(outPath), "."+filepath.Base(outPath)+".*.part")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), outPath)
}
