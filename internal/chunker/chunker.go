package chunker

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/maneesh/mailattach/internal/models"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrEmpty is returned for a zero-length input; no chunk can describe it.
	ErrEmpty = errors.New("attachment is empty")
	// ErrTooLarge is returned when the input exceeds the maximum file size.
	ErrTooLarge = errors.New("attachment too big")
	// ErrInvalidChunkSize is returned when the chunk size is below one byte.
	ErrInvalidChunkSize = errors.New("chunk size must be at least one byte")
)

// Chunker splits file contents into content-addressed chunks
type Chunker struct {
	chunkSize   int64
	maxFileSize int64
}

// NewChunker creates a new chunker with the specified chunk size and file size limit
func NewChunker(chunkSize, maxFileSize int64) *Chunker {
	return &Chunker{
		chunkSize:   chunkSize,
		maxFileSize: maxFileSize,
	}
}

// ChunkCount returns ceil(size / chunkSize)
func (c *Chunker) ChunkCount(size int64) int {
	if size <= 0 || c.chunkSize < 1 {
		return 0
	}
	count := size / c.chunkSize
	if size%c.chunkSize != 0 {
		count++
	}
	return int(count)
}

// Split hashes the whole buffer and partitions it into ordered chunks.
// Chunks alias data; callers must not mutate it while the chunks are in use.
func (c *Chunker) Split(data []byte) (string, []*models.ChunkData, error) {
	if c.chunkSize < 1 {
		return "", nil, ErrInvalidChunkSize
	}
	size := int64(len(data))
	if size > c.maxFileSize {
		return "", nil, ErrTooLarge
	}
	if size == 0 {
		return "", nil, ErrEmpty
	}

	wholeHash := ComputeHash(data)

	count := c.ChunkCount(size)
	chunks := make([]*models.ChunkData, 0, count)
	for i := 0; i < count; i++ {
		start := int64(i) * c.chunkSize
		end := start + min(c.chunkSize, size-start)
		chunkData := data[start:end]

		chunks = append(chunks, &models.ChunkData{
			Data:       chunkData,
			OrderIndex: i,
			Hash:       ComputeHash(chunkData),
			Size:       end - start,
		})
	}

	return wholeHash, chunks, nil
}

// ComputeHash computes the BLAKE2b-256 digest of data as lowercase hex
func ComputeHash(data []byte) string {
	hash := blake2b.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// EncodeChunk encodes raw chunk bytes for the text-oriented store transport
func EncodeChunk(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeChunk reverses EncodeChunk
func DecodeChunk(encoded string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(encoded)
}

// ReassembleChunks combines chunks in order
func ReassembleChunks(chunks [][]byte) []byte {
	return bytes.Join(chunks, nil)
}

// VerifyChunkHash verifies that chunk data matches the expected hash
func VerifyChunkHash(data []byte, expectedHash string) bool {
	return ComputeHash(data) == expectedHash
}
