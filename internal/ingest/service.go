// Package ingest turns uploaded documents into embedded chunks in the
// knowledge base.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artaGhs/Akadion-chatbot-backend/internal/chunker"
	"github.com/artaGhs/Akadion-chatbot-backend/internal/extract"
	"github.com/artaGhs/Akadion-chatbot-backend/internal/retrieval"
	"github.com/artaGhs/Akadion-chatbot-backend/internal/storage"
)

// Validation failure kinds, used by the API layer to pick a status code.
const (
	KindTooLarge        = "too_large"
	KindUnsupportedType = "unsupported_type"
)

// ValidationError rejects an upload before any processing happens.
type ValidationError struct {
	Filename string
	Kind     string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Filename, e.Reason)
}

// DocumentEmbedder generates embeddings for document chunks.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentStore records uploaded documents.
type DocumentStore interface {
	SaveDocument(d storage.Document) error
	ListDocuments() ([]storage.Document, error)
	DeleteAllDocuments() (int, error)
}

// Service validates, extracts, chunks, embeds and indexes uploads.
type Service struct {
	embedder     DocumentEmbedder
	index        retrieval.Index
	docs         DocumentStore
	splitter     *chunker.Splitter
	maxFileSize  int64
	allowedTypes []string
	logger       *slog.Logger
}

// NewService creates an ingestion Service.
func NewService(embedder DocumentEmbedder, index retrieval.Index, docs DocumentStore,
	splitter *chunker.Splitter, maxFileSize int64, allowedTypes []string) *Service {
	return &Service{
		embedder:     embedder,
		index:        index,
		docs:         docs,
		splitter:     splitter,
		maxFileSize:  maxFileSize,
		allowedTypes: allowedTypes,
		logger:       slog.Default(),
	}
}

// Result summarizes one successfully ingested file.
type Result struct {
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunks_created"`
	SizeBytes  int64  `json:"size_bytes"`
}

// FileResult pairs a filename with its outcome in a multi-file upload.
type FileResult struct {
	Filename string  `json:"filename"`
	Status   string  `json:"status"` // "success" or "error"
	Chunks   int     `json:"chunks_created,omitempty"`
	Error    string  `json:"error,omitempty"`
	Result   *Result `json:"-"`
}

// ProcessFile ingests a single upload. The reader is spooled to a temp file
// which is always removed before return, success or not.
func (s *Service) ProcessFile(ctx context.Context, filename string, r io.Reader, size int64) (Result, error) {
	if err := s.validate(filename, size); err != nil {
		return Result{}, err
	}

	tmpPath, written, err := s.spool(filename, r)
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(tmpPath)

	if s.maxFileSize > 0 && written > s.maxFileSize {
		return Result{}, &ValidationError{
			Filename: filename,
			Kind:     KindTooLarge,
			Reason:   fmt.Sprintf("file exceeds maximum size of %d bytes", s.maxFileSize),
		}
	}

	text, err := extract.Text(tmpPath)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			return Result{}, &ValidationError{Filename: filename, Kind: KindUnsupportedType, Reason: err.Error()}
		}
		return Result{}, fmt.Errorf("extracting text from %s: %w", filename, err)
	}

	// A document with no extractable text is a successful ingest of zero
	// chunks, not an error.
	chunks := s.splitter.Split(filename, text)
	if len(chunks) == 0 {
		if err := s.recordDocument(filename, written, 0); err != nil {
			return Result{}, err
		}
		s.logger.Info("document ingested", "filename", filename, "chunks", 0, "bytes", written)
		return Result{Filename: filename, ChunkCount: 0, SizeBytes: written}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embedding %s: %w", filename, err)
	}

	records := make([]retrieval.Chunk, len(chunks))
	now := time.Now().UTC()
	for i, c := range chunks {
		records[i] = retrieval.Chunk{
			ID:        c.ID,
			Text:      c.Text,
			Embedding: vectors[i],
			Metadata:  retrieval.Metadata{Source: filename, TextLength: len(c.Text)},
			CreatedAt: now,
		}
	}
	if err := s.index.Upsert(ctx, records); err != nil {
		return Result{}, fmt.Errorf("indexing %s: %w", filename, err)
	}

	if err := s.recordDocument(filename, written, len(chunks)); err != nil {
		return Result{}, err
	}

	s.logger.Info("document ingested", "filename", filename, "chunks", len(chunks), "bytes", written)
	return Result{Filename: filename, ChunkCount: len(chunks), SizeBytes: written}, nil
}

func (s *Service) recordDocument(filename string, sizeBytes int64, chunkCount int) error {
	err := s.docs.SaveDocument(storage.Document{
		ID:         uuid.New().String(),
		Filename:   filename,
		SizeBytes:  sizeBytes,
		ChunkCount: chunkCount,
		UploadedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("recording document %s: %w", filename, err)
	}
	return nil
}

// NamedReader is one file in a multi-file upload.
type NamedReader struct {
	Filename string
	Reader   io.Reader
	Size     int64
}

// ProcessFiles ingests several uploads, continuing past per-file failures.
func (s *Service) ProcessFiles(ctx context.Context, files []NamedReader) []FileResult {
	results := make([]FileResult, 0, len(files))
	for _, f := range files {
		res, err := s.ProcessFile(ctx, f.Filename, f.Reader, f.Size)
		if err != nil {
			results = append(results, FileResult{Filename: f.Filename, Status: "error", Error: err.Error()})
			continue
		}
		results = append(results, FileResult{Filename: f.Filename, Status: "success", Chunks: res.ChunkCount, Result: &res})
	}
	return results
}

// ClearKnowledgeBase removes all indexed chunks and document records.
// Returns the number of chunks removed.
func (s *Service) ClearKnowledgeBase(ctx context.Context) (int, error) {
	removed, err := s.index.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("clearing index: %w", err)
	}
	if _, err := s.docs.DeleteAllDocuments(); err != nil {
		return removed, fmt.Errorf("clearing document registry: %w", err)
	}
	s.logger.Info("knowledge base cleared", "chunks_removed", removed)
	return removed, nil
}

// Stats describes the current knowledge base contents.
type Stats struct {
	ChunkCount    int `json:"total_chunks"`
	DocumentCount int `json:"total_documents"`
}

// Stats reports chunk and document counts.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	chunks, err := s.index.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("counting chunks: %w", err)
	}
	docs, err := s.docs.ListDocuments()
	if err != nil {
		return Stats{}, fmt.Errorf("listing documents: %w", err)
	}
	return Stats{ChunkCount: chunks, DocumentCount: len(docs)}, nil
}

// Documents lists the uploaded-document registry, newest first.
func (s *Service) Documents() ([]storage.Document, error) {
	return s.docs.ListDocuments()
}

func (s *Service) validate(filename string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	allowed := false
	for _, t := range s.allowedTypes {
		if ext == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return &ValidationError{
			Filename: filename,
			Kind:     KindUnsupportedType,
			Reason:   fmt.Sprintf("unsupported file type %q, allowed: %s", ext, strings.Join(s.allowedTypes, ", ")),
		}
	}
	if s.maxFileSize > 0 && size > s.maxFileSize {
		return &ValidationError{
			Filename: filename,
			Kind:     KindTooLarge,
			Reason:   fmt.Sprintf("file exceeds maximum size of %d bytes", s.maxFileSize),
		}
	}
	return nil
}

// spool copies the upload to a temp file so extractors can seek. The caller
// removes the file. The copy is capped one byte past the size limit so
// undeclared oversize uploads are still caught.
func (s *Service) spool(filename string, r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp("", "akadion-upload-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}

	src := r
	if s.maxFileSize > 0 {
		src = io.LimitReader(r, s.maxFileSize+1)
	}
	written, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("spooling upload: %w", err)
	}
	return tmp.Name(), written, nil
}
