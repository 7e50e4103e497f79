// Package rag answers questions by retrieving relevant knowledge chunks and
// feeding them to a generation model alongside conversation history.
package rag

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/artaGhs/Akadion-chatbot-backend/internal/conversation"
	"github.com/artaGhs/Akadion-chatbot-backend/internal/retrieval"
)

// defaultSessionID is used when the client does not name a session.
const defaultSessionID = "default"

// QueryEmbedder turns a user question into a query vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces model responses, complete or streamed.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string, fn func(fragment string) error) error
}

// Source identifies a document that contributed to an answer.
type Source struct {
	Source string  `json:"source"`
	Score  float32 `json:"relevance_score"`
}

// Answer is the outcome of one conversational turn.
type Answer struct {
	SessionID string    `json:"session_id"`
	Response  string    `json:"response"`
	Sources   []Source  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
}

// Service orchestrates one RAG turn: embed, retrieve, prompt, generate,
// and record both sides of the exchange.
type Service struct {
	embedder      QueryEmbedder
	generator     Generator
	index         retrieval.Index
	conversations *conversation.Store
	systemPrompt  string
	topK          int
	logger        *slog.Logger
}

// NewService creates a RAG Service.
func NewService(embedder QueryEmbedder, generator Generator, index retrieval.Index,
	conversations *conversation.Store, systemPrompt string, topK int) *Service {
	return &Service{
		embedder:      embedder,
		generator:     generator,
		index:         index,
		conversations: conversations,
		systemPrompt:  systemPrompt,
		topK:          topK,
		logger:        slog.Default(),
	}
}

// Conversations exposes the underlying session store for the API layer.
func (s *Service) Conversations() *conversation.Store {
	return s.conversations
}

// Answer runs a complete turn and returns the full response. Pipeline
// failures never propagate as errors: the turn is answered with an apology
// so the session history stays balanced, one user and one assistant record.
func (s *Service) Answer(ctx context.Context, sessionID, question string) Answer {
	sessionID = s.beginTurn(sessionID, question)

	chunks, err := s.retrieve(ctx, question)
	if err != nil {
		return s.finishTurn(sessionID, apologyPrefix+err.Error(), nil)
	}
	if len(chunks) == 0 {
		return s.finishTurn(sessionID, fallbackResponse, nil)
	}

	prompt := s.buildPrompt(sessionID, question, chunks)
	response, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("generation failed", "session_id", sessionID, "error", err)
		return s.finishTurn(sessionID, apologyPrefix+err.Error(), nil)
	}

	return s.finishTurn(sessionID, response, sources(chunks))
}

// AnswerStream runs a complete turn, delivering the response incrementally
// through fn. If fn returns an error (a dropped client) the stream stops and
// whatever was generated so far is committed to the session; a generator
// failure becomes a single apology fragment. The history invariant holds on
// every path.
func (s *Service) AnswerStream(ctx context.Context, sessionID, question string, fn func(fragment string) error) Answer {
	sessionID = s.beginTurn(sessionID, question)

	chunks, err := s.retrieve(ctx, question)
	if err != nil {
		apology := apologyPrefix + err.Error()
		if sendErr := fn(apology); sendErr != nil {
			s.logger.Debug("stream client went away", "session_id", sessionID, "error", sendErr)
		}
		return s.finishTurn(sessionID, apology, nil)
	}
	if len(chunks) == 0 {
		if err := fn(fallbackResponse); err != nil {
			s.logger.Debug("stream client went away", "session_id", sessionID, "error", err)
		}
		return s.finishTurn(sessionID, fallbackResponse, nil)
	}

	prompt := s.buildPrompt(sessionID, question, chunks)

	var sb strings.Builder
	var clientErr error
	err = s.generator.GenerateStream(ctx, prompt, func(fragment string) error {
		sb.WriteString(fragment)
		if err := fn(fragment); err != nil {
			clientErr = err
			return err
		}
		return nil
	})
	if err != nil {
		if clientErr != nil {
			// Client went away: commit what it already received.
			s.logger.Debug("stream client went away", "session_id", sessionID, "error", clientErr)
			return s.finishTurn(sessionID, sb.String(), sources(chunks))
		}

		// Generator failure: the apology is emitted as one fragment and
		// recorded after whatever the client had already received.
		s.logger.Error("streaming generation failed", "session_id", sessionID, "error", err)
		apology := apologyPrefix + err.Error()
		if sendErr := fn(apology); sendErr != nil {
			s.logger.Debug("stream client went away", "session_id", sessionID, "error", sendErr)
		}
		if sb.Len() == 0 {
			return s.finishTurn(sessionID, apology, nil)
		}
		sb.WriteString(apology)
		return s.finishTurn(sessionID, sb.String(), sources(chunks))
	}

	return s.finishTurn(sessionID, sb.String(), sources(chunks))
}

// beginTurn falls back to the shared default session if the client did not
// name one and records the user's question.
func (s *Service) beginTurn(sessionID, question string) string {
	if sessionID == "" {
		sessionID = defaultSessionID
	}
	s.conversations.AddMessage(sessionID, conversation.RoleHuman, question)
	return sessionID
}

// finishTurn records the assistant's response and assembles the Answer.
func (s *Service) finishTurn(sessionID, response string, srcs []Source) Answer {
	s.conversations.AddMessage(sessionID, conversation.RoleAssistant, response)
	if srcs == nil {
		srcs = []Source{}
	}
	return Answer{
		SessionID: sessionID,
		Response:  response,
		Sources:   srcs,
		Timestamp: time.Now().UTC(),
	}
}

// retrieve embeds the question and queries the index. An embedding failure
// is the gateway's fault and propagates so the turn is answered with an
// apology; an index failure degrades to empty retrieval (logged) so the
// turn falls back instead.
func (s *Service) retrieve(ctx context.Context, question string) ([]retrieval.ScoredChunk, error) {
	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		s.logger.Error("query embedding failed", "error", err)
		return nil, err
	}

	chunks, err := s.index.Query(ctx, vector, s.topK)
	if err != nil {
		s.logger.Error("index query failed", "error", err)
		return nil, nil
	}
	return chunks, nil
}

func (s *Service) buildPrompt(sessionID, question string, chunks []retrieval.ScoredChunk) string {
	history := s.conversations.Context(sessionID, true)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	docContext := strings.Join(texts, "\n\n")

	return renderPrompt(s.systemPrompt, history, docContext, question)
}

// sources reduces retrieved chunks to unique documents, keeping each
// document's best score and the provider's score order.
func sources(chunks []retrieval.ScoredChunk) []Source {
	seen := make(map[string]bool, len(chunks))
	out := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		if seen[c.Metadata.Source] {
			continue
		}
		seen[c.Metadata.Source] = true
		out = append(out, Source{Source: c.Metadata.Source, Score: c.Score})
	}
	return out
}
