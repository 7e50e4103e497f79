package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/artaGhs/Akadion-chatbot-backend/internal/ingest"
	"github.com/artaGhs/Akadion-chatbot-backend/internal/storage"
)

type mockIngestor struct {
	result     ingest.Result
	processErr error
	cleared    int
	stats      ingest.Stats
	docs       []storage.Document
	gotNames   []string
}

func (m *mockIngestor) ProcessFile(_ context.Context, filename string, r io.Reader, size int64) (ingest.Result, error) {
	m.gotNames = append(m.gotNames, filename)
	if m.processErr != nil {
		return ingest.Result{}, m.processErr
	}
	res := m.result
	if res.Filename == "" {
		res.Filename = filename
	}
	return res, nil
}

func (m *mockIngestor) ProcessFiles(ctx context.Context, files []ingest.NamedReader) []ingest.FileResult {
	out := make([]ingest.FileResult, 0, len(files))
	for _, f := range files {
		res, err := m.ProcessFile(ctx, f.Filename, f.Reader, f.Size)
		if err != nil {
			out = append(out, ingest.FileResult{Filename: f.Filename, Status: "error", Error: err.Error()})
			continue
		}
		out = append(out, ingest.FileResult{Filename: f.Filename, Status: "success", Chunks: res.ChunkCount})
	}
	return out
}

func (m *mockIngestor) ClearKnowledgeBase(_ context.Context) (int, error) {
	return m.cleared, nil
}

func (m *mockIngestor) Stats(_ context.Context) (ingest.Stats, error) {
	return m.stats, nil
}

func (m *mockIngestor) Documents() ([]storage.Document, error) {
	return m.docs, nil
}

func newIngestHandler(ing Ingestor) http.Handler {
	return NewHandler(Deps{
		Chat:           newMockChatter(),
		Ingest:         ing,
		AllowedOrigins: []string{"*"},
		MaxUploadSize:  1 << 20,
	})
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("creating form file: %v", err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHandleUpload(t *testing.T) {
	ing := &mockIngestor{result: ingest.Result{ChunkCount: 3}}
	handler := newIngestHandler(ing)

	body, contentType := multipartBody(t, "file", map[string]string{"notes.txt": "hello world"})
	req := httptest.NewRequest(http.MethodPost, "/ingest/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(ing.gotNames) != 1 || ing.gotNames[0] != "notes.txt" {
		t.Errorf("ingestor got %v", ing.gotNames)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["chunks_created"] != float64(3) {
		t.Errorf("response = %v", resp)
	}
}

func TestHandleUpload_MissingFile(t *testing.T) {
	handler := newIngestHandler(&mockIngestor{})

	body, contentType := multipartBody(t, "wrong_field", map[string]string{"a.txt": "x"})
	req := httptest.NewRequest(http.MethodPost, "/ingest/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleUpload_ValidationStatusCodes(t *testing.T) {
	tests := []struct {
		kind string
		want int
	}{
		{ingest.KindTooLarge, http.StatusRequestEntityTooLarge},
		{ingest.KindUnsupportedType, http.StatusUnsupportedMediaType},
		{"malformed", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.kind, func(t *testing.T) {
			ing := &mockIngestor{processErr: &ingest.ValidationError{
				Filename: "a.bin", Kind: tc.kind, Reason: "rejected",
			}}
			handler := newIngestHandler(ing)

			body, contentType := multipartBody(t, "file", map[string]string{"a.bin": "x"})
			req := httptest.NewRequest(http.MethodPost, "/ingest/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestHandleUpload_InternalError(t *testing.T) {
	ing := &mockIngestor{processErr: errors.New("db on fire")}
	handler := newIngestHandler(ing)

	body, contentType := multipartBody(t, "file", map[string]string{"a.txt": "x"})
	req := httptest.NewRequest(http.MethodPost, "/ingest/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHandleUploadMultiple(t *testing.T) {
	ing := &mockIngestor{result: ingest.Result{ChunkCount: 2}}
	handler := newIngestHandler(ing)

	body, contentType := multipartBody(t, "files", map[string]string{
		"a.txt": "first file",
		"b.txt": "second file",
	})
	req := httptest.NewRequest(http.MethodPost, "/ingest/upload-multiple", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Results []ingest.FileResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %+v, want 2", resp.Results)
	}
	for _, r := range resp.Results {
		if r.Status != "success" {
			t.Errorf("result %+v, want success", r)
		}
	}
}

func TestHandleUploadMultiple_NoFiles(t *testing.T) {
	handler := newIngestHandler(&mockIngestor{})

	body, contentType := multipartBody(t, "other", map[string]string{"a.txt": "x"})
	req := httptest.NewRequest(http.MethodPost, "/ingest/upload-multiple", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleClear(t *testing.T) {
	ing := &mockIngestor{cleared: 42}
	handler := newIngestHandler(ing)

	req := httptest.NewRequest(http.MethodDelete, "/ingest/clear", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["chunks_removed"] != float64(42) {
		t.Errorf("response = %v", resp)
	}
}

func TestHandleIngestStats(t *testing.T) {
	ing := &mockIngestor{stats: ingest.Stats{ChunkCount: 7, DocumentCount: 2}}
	handler := newIngestHandler(ing)

	req := httptest.NewRequest(http.MethodGet, "/ingest/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats ingest.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.ChunkCount != 7 || stats.DocumentCount != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHandleListDocuments(t *testing.T) {
	ing := &mockIngestor{docs: []storage.Document{
		{ID: "d1", Filename: "guide.pdf", SizeBytes: 2048, ChunkCount: 4,
			UploadedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)},
	}}
	handler := newIngestHandler(ing)

	req := httptest.NewRequest(http.MethodGet, "/ingest/documents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Documents []struct {
			Filename   string `json:"filename"`
			ChunkCount int    `json:"chunk_count"`
			UploadedAt string `json:"uploaded_at"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Documents) != 1 || resp.Documents[0].Filename != "guide.pdf" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Documents[0].UploadedAt != "2026-08-01T10:00:00Z" {
		t.Errorf("uploaded_at = %q", resp.Documents[0].UploadedAt)
	}
}
