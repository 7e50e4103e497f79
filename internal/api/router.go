// Package api exposes the chatbot over HTTP and MCP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Chat           Chatter
	Ingest         Ingestor
	AllowedOrigins []string
	MaxUploadSize  int64
	Version        string
}

// NewHandler returns the complete HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", handleWelcome)
	r.Get("/health", handleHealth(deps.Version))

	r.Route("/chat", func(r chi.Router) {
		r.Post("/", handleChat(deps.Chat))
		r.Post("/stream", handleChatStream(deps.Chat))
		r.Get("/stats", handleChatStats(deps.Chat))
		r.Post("/cleanup-sessions", handleCleanupSessions(deps.Chat))
		r.Get("/conversation/{sessionID}", handleGetConversation(deps.Chat))
		r.Delete("/conversation/{sessionID}", handleClearConversation(deps.Chat))
	})

	r.Route("/ingest", func(r chi.Router) {
		r.Post("/upload", handleUpload(deps.Ingest, deps.MaxUploadSize))
		r.Post("/upload-multiple", handleUploadMultiple(deps.Ingest, deps.MaxUploadSize))
		r.Delete("/clear", handleClear(deps.Ingest))
		r.Get("/stats", handleIngestStats(deps.Ingest))
		r.Get("/documents", handleListDocuments(deps.Ingest))
	})

	return r
}

func handleWelcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"message": "Akadion chatbot backend. See /health, /chat and /ingest.",
	})
}

func handleHealth(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"status":    "ok",
			"version":   version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
