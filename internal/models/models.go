package models

import "time"

// ChunkData holds one chunk of a file while it is being published
type ChunkData struct {
	Data       []byte
	OrderIndex int
	Hash       string
	Size       int64
}

// FileChunk is the chunk record written to the store. Chunk carries the raw
// bytes as URL-safe unpadded base64.
type FileChunk struct {
	DataHash   string `json:"data_hash"`
	ChunkIndex int    `json:"chunk_index"`
	Chunk      string `json:"chunk"`
}

// Manifest describes how to reassemble a file from its chunks. Chunks is
// ordered by chunk index; list position is the only ordering information.
type Manifest[H any] struct {
	DataHash     string `json:"data_hash"`
	Filename     string `json:"filename"`
	FileType     string `json:"filetype"`
	OrigFileSize int64  `json:"orig_filesize"`
	Chunks       []H    `json:"chunks"`
}

// Attachment is the index row for a published manifest
type Attachment struct {
	ID             string    `json:"id"`
	ManifestHandle string    `json:"manifest_handle"`
	Filename       string    `json:"filename"`
	FileType       string    `json:"filetype"`
	Size           int64     `json:"size"`
	DataHash       string    `json:"data_hash"`
	ChunkCount     int       `json:"chunk_count"`
	CreatedAt      time.Time `json:"created_at"`
}
