package api

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/artaGhs/Akadion-chatbot-backend/internal/ingest"
	"github.com/artaGhs/Akadion-chatbot-backend/internal/storage"
)

// Ingestor abstracts the ingestion pipeline for the upload endpoints.
type Ingestor interface {
	ProcessFile(ctx context.Context, filename string, r io.Reader, size int64) (ingest.Result, error)
	ProcessFiles(ctx context.Context, files []ingest.NamedReader) []ingest.FileResult
	ClearKnowledgeBase(ctx context.Context) (int, error)
	Stats(ctx context.Context) (ingest.Stats, error)
	Documents() ([]storage.Document, error)
}

// validationStatus maps an upload validation failure to its HTTP status.
func validationStatus(verr *ingest.ValidationError) int {
	switch verr.Kind {
	case ingest.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case ingest.KindUnsupportedType:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}

func handleUpload(ing Ingestor, maxUploadSize int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// One extra megabyte covers multipart framing around the payload.
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+(1<<20))

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing file field: %v", err)
			return
		}
		defer file.Close()

		res, err := ing.ProcessFile(r.Context(), header.Filename, file, header.Size)
		if err != nil {
			var verr *ingest.ValidationError
			if errors.As(err, &verr) {
				httpError(w, validationStatus(verr), "invalid_request_error", "%s", verr.Error())
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "processing upload: %v", err)
			return
		}

		writeJSON(w, map[string]any{
			"message":        "Document processed successfully",
			"filename":       res.Filename,
			"chunks_created": res.ChunkCount,
		})
	}
}

func handleUploadMultiple(ing Ingestor, maxUploadSize int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "parsing multipart form: %v", err)
			return
		}

		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no files provided")
			return
		}

		files := make([]ingest.NamedReader, 0, len(headers))
		var opened []multipart.File
		defer func() {
			for _, f := range opened {
				f.Close()
			}
		}()
		for _, h := range headers {
			f, err := h.Open()
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "opening %s: %v", h.Filename, err)
				return
			}
			opened = append(opened, f)
			files = append(files, ingest.NamedReader{Filename: h.Filename, Reader: f, Size: h.Size})
		}

		results := ing.ProcessFiles(r.Context(), files)
		writeJSON(w, map[string]any{"results": results})
	}
}

func handleClear(ing Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed, err := ing.ClearKnowledgeBase(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "clearing knowledge base: %v", err)
			return
		}
		writeJSON(w, map[string]any{
			"status":         "cleared",
			"chunks_removed": removed,
		})
	}
}

func handleIngestStats(ing Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := ing.Stats(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading stats: %v", err)
			return
		}
		writeJSON(w, stats)
	}
}

func handleListDocuments(ing Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := ing.Documents()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing documents: %v", err)
			return
		}

		type docInfo struct {
			ID         string `json:"id"`
			Filename   string `json:"filename"`
			SizeBytes  int64  `json:"size_bytes"`
			ChunkCount int    `json:"chunk_count"`
			UploadedAt string `json:"uploaded_at"`
		}
		out := make([]docInfo, len(docs))
		for i, d := range docs {
			out[i] = docInfo{
				ID:         d.ID,
				Filename:   d.Filename,
				SizeBytes:  d.SizeBytes,
				ChunkCount: d.ChunkCount,
				UploadedAt: d.UploadedAt.UTC().Format(time.RFC3339),
			}
		}
		writeJSON(w, map[string]any{"documents": out})
	}
}
