package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/artaGhs/Akadion-chatbot-backend/internal/conversation"
	"github.com/artaGhs/Akadion-chatbot-backend/internal/rag"
)

// Chatter abstracts the RAG pipeline for the chat endpoints.
type Chatter interface {
	Answer(ctx context.Context, sessionID, question string) rag.Answer
	AnswerStream(ctx context.Context, sessionID, question string, fn func(fragment string) error) rag.Answer
	Conversations() *conversation.Store
}

// maxMessageLength bounds a single chat message.
const maxMessageLength = 1000

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return chatRequest{}, false
	}
	if req.Message == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
		return chatRequest{}, false
	}
	if len(req.Message) > maxMessageLength {
		httpError(w, http.StatusBadRequest, "invalid_request_error",
			"message exceeds maximum length of %d characters", maxMessageLength)
		return chatRequest{}, false
	}
	return req, true
}

func handleChat(chat Chatter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChatRequest(w, r)
		if !ok {
			return
		}

		answer := chat.Answer(r.Context(), req.SessionID, req.Message)
		writeJSON(w, answer)
	}
}

// handleChatStream answers over SSE: one data event per fragment, then a
// [DONE] sentinel. The session commit happens inside AnswerStream, so a
// client that drops mid-stream still gets its partial response recorded.
func handleChatStream(chat Chatter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeChatRequest(w, r)
		if !ok {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		chat.AnswerStream(r.Context(), req.SessionID, req.Message, func(fragment string) error {
			if err := r.Context().Err(); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", fragment); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		})

		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

func handleChatStats(chat Chatter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, chat.Conversations().Stats())
	}
}

func handleCleanupSessions(chat Chatter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed := chat.Conversations().CleanupExpired()
		writeJSON(w, map[string]int{"sessions_removed": removed})
	}
}

func handleGetConversation(chat Chatter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		messages := chat.Conversations().Messages(sessionID)
		if messages == nil {
			messages = []conversation.Message{}
		}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", raw)
				return
			}
			if limit < len(messages) {
				messages = messages[len(messages)-limit:]
			}
		}
		writeJSON(w, map[string]any{
			"session_id": sessionID,
			"messages":   messages,
		})
	}
}

func handleClearConversation(chat Chatter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		if !chat.Conversations().Clear(sessionID) {
			httpError(w, http.StatusNotFound, "not_found", "session %s not found", sessionID)
			return
		}
		writeJSON(w, map[string]string{
			"status":     "cleared",
			"session_id": sessionID,
		})
	}
}
