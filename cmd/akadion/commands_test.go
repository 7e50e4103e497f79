package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAskRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /chat/": `{"session_id":"sess-1","response":"Check the Groups tab.","sources":[{"source":"guide.pdf","relevance_score":0.91}]}`,
	})

	client := ts.client()

	req := map[string]any{"message": "How do I join a group?", "session_id": "sess-1"}
	resp, err := client.post(ctx, "/chat/", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var answer struct {
		SessionID string `json:"session_id"`
		Response  string `json:"response"`
	}
	if err := decodeJSON(resp, &answer); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if answer.Response != "Check the Groups tab." {
		t.Errorf("response = %q", answer.Response)
	}
	if answer.SessionID != "sess-1" {
		t.Errorf("session_id = %q", answer.SessionID)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/chat/" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
	if r.ContentType != "application/json" {
		t.Errorf("content type = %q", r.ContentType)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["message"] != "How do I join a group?" {
		t.Errorf("body.message = %v", body["message"])
	}
}

func TestPostFiles(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /ingest/upload": `{"message":"Document processed successfully","filename":"notes.txt","chunks_created":3}`,
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := ts.client()
	resp, err := client.postFiles(ctx, "/ingest/upload", "file", []string{path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Filename      string `json:"filename"`
		ChunksCreated int    `json:"chunks_created"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.ChunksCreated != 3 {
		t.Errorf("chunks_created = %d", result.ChunksCreated)
	}

	r := ts.requests[0]
	if !strings.HasPrefix(r.ContentType, "multipart/form-data") {
		t.Errorf("content type = %q", r.ContentType)
	}
	if !strings.Contains(r.Body, `filename="notes.txt"`) {
		t.Errorf("multipart body missing filename, got %q", r.Body)
	}
	if !strings.Contains(r.Body, "hello world") {
		t.Errorf("multipart body missing file content")
	}
}

func TestPostFiles_MissingFile(t *testing.T) {
	ts := newTestServer(t, nil)

	client := ts.client()
	_, err := client.postFiles(ctx, "/ingest/upload", "file", []string{"/nonexistent/nope.txt"})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no requests, got %d", len(ts.requests))
	}
}

func TestClearRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /ingest/clear": `{"status":"cleared","chunks_removed":17}`,
	})

	client := ts.client()
	resp, err := client.delete(ctx, "/ingest/clear")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		ChunksRemoved int `json:"chunks_removed"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.ChunksRemoved != 17 {
		t.Errorf("chunks_removed = %d", result.ChunksRemoved)
	}
}

func TestDecodeJSON_ServerError(t *testing.T) {
	ts := newTestServer(t, nil)

	client := ts.client()
	resp, err := client.get(ctx, "/does-not-exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var v any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "server returned 404") {
		t.Errorf("error = %v", err)
	}
}
