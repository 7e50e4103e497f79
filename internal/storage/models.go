package storage

import "time"

// Document records an uploaded file and how many chunks it produced.
type Document struct {
	ID         string
	Filename   string
	SizeBytes  int64
	ChunkCount int
	UploadedAt time.Time
}
