package conversation

import (
	"strings"
	"sync"
	"time"
)

// Roles recorded in conversation history.
const (
	RoleHuman     = "human"
	RoleAssistant = "assistant"
)

// noHistoryPlaceholder is rendered into the prompt when a session has no
// prior exchanges.
const noHistoryPlaceholder = "No previous conversation."

// Message is a single utterance within a session.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type session struct {
	messages     []Message
	lastActivity time.Time
}

// Store keeps per-session conversation history in memory. All methods are
// safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*session
	maxMessages int
	timeout     time.Duration
	now         func() time.Time
}

// NewStore creates a Store that retains at most maxMessages per session and
// considers sessions idle for longer than timeout expired.
func NewStore(maxMessages int, timeout time.Duration) *Store {
	return &Store{
		sessions:    make(map[string]*session),
		maxMessages: maxMessages,
		timeout:     timeout,
		now:         time.Now,
	}
}

// AddMessage appends a message to the session, creating the session if it
// does not exist. History beyond the retention limit is dropped oldest-first.
func (s *Store) AddMessage(sessionID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	if sess == nil {
		sess = &session{}
		s.sessions[sessionID] = sess
	}

	now := s.now()
	sess.messages = append(sess.messages, Message{Role: role, Content: content, Timestamp: now})
	sess.lastActivity = now

	if over := len(sess.messages) - s.maxMessages; over > 0 {
		sess.messages = append([]Message(nil), sess.messages[over:]...)
	}
}

// Messages returns a copy of the session's history, oldest first.
// A missing session yields an empty slice. Reading a session counts as
// activity and resets its idle timer.
func (s *Store) Messages(sessionID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	if sess == nil {
		return nil
	}
	sess.lastActivity = s.now()
	out := make([]Message, len(sess.messages))
	copy(out, sess.messages)
	return out
}

// Context renders the session history as alternating "Human:"/"Assistant:"
// lines for prompt assembly. When excludeLast is true the most recent
// message is omitted, so the current question does not appear twice in
// the prompt. Returns a placeholder when there is nothing to render.
func (s *Store) Context(sessionID string, excludeLast bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	if sess == nil {
		return noHistoryPlaceholder
	}
	sess.lastActivity = s.now()

	msgs := sess.messages
	if excludeLast && len(msgs) > 0 {
		msgs = msgs[:len(msgs)-1]
	}
	if len(msgs) == 0 {
		return noHistoryPlaceholder
	}

	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleHuman:
			lines = append(lines, "Human: "+m.Content)
		case RoleAssistant:
			lines = append(lines, "Assistant: "+m.Content)
		}
	}
	return strings.Join(lines, "\n\n")
}

// Clear removes a session and reports whether it existed.
func (s *Store) Clear(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return ok
}

// CleanupExpired removes sessions idle for longer than the store timeout
// and returns how many were removed.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.timeout)
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastActivity.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Stats summarizes the store for the stats endpoints.
type Stats struct {
	ActiveSessions int `json:"active_sessions"`
	TotalMessages  int `json:"total_messages"`
	MaxHistory     int `json:"max_history_messages"`
	TimeoutHours   int `json:"session_timeout_hours"`
}

// Stats returns a snapshot of session counts.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, sess := range s.sessions {
		total += len(sess.messages)
	}
	return Stats{
		ActiveSessions: len(s.sessions),
		TotalMessages:  total,
		MaxHistory:     s.maxMessages,
		TimeoutHours:   int(s.timeout / time.Hour),
	}
}
