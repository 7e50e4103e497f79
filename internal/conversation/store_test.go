package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestAddMessage_TrimsOldest(t *testing.T) {
	s := NewStore(4, time.Hour)

	for i := 0; i < 6; i++ {
		s.AddMessage("sess", RoleHuman, fmt.Sprintf("q%d", i))
	}

	msgs := s.Messages("sess")
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if msgs[0].Content != "q2" || msgs[3].Content != "q5" {
		t.Errorf("messages = %+v, want q2..q5", msgs)
	}
}

func TestContext_Rendering(t *testing.T) {
	s := NewStore(10, time.Hour)
	s.AddMessage("sess", RoleHuman, "How do I join a group?")
	s.AddMessage("sess", RoleAssistant, "Open the Groups tab.")
	s.AddMessage("sess", RoleHuman, "And then?")

	got := s.Context("sess", true)
	want := "Human: How do I join a group?\n\nAssistant: Open the Groups tab."
	if got != want {
		t.Errorf("Context = %q, want %q", got, want)
	}

	got = s.Context("sess", false)
	want = want + "\n\nHuman: And then?"
	if got != want {
		t.Errorf("Context(includeLast) = %q, want %q", got, want)
	}
}

func TestContext_EmptySession(t *testing.T) {
	s := NewStore(10, time.Hour)

	if got := s.Context("nope", false); got != noHistoryPlaceholder {
		t.Errorf("Context = %q, want placeholder", got)
	}

	// A single message excluded as current also leaves nothing to render.
	s.AddMessage("sess", RoleHuman, "hello")
	if got := s.Context("sess", true); got != noHistoryPlaceholder {
		t.Errorf("Context = %q, want placeholder", got)
	}
}

func TestClear(t *testing.T) {
	s := NewStore(10, time.Hour)
	s.AddMessage("sess", RoleHuman, "hi")

	if !s.Clear("sess") {
		t.Error("Clear existing session = false, want true")
	}
	if s.Clear("sess") {
		t.Error("Clear missing session = true, want false")
	}
	if msgs := s.Messages("sess"); len(msgs) != 0 {
		t.Errorf("messages after clear = %v", msgs)
	}
}

func TestCleanupExpired(t *testing.T) {
	s := NewStore(10, time.Hour)
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.AddMessage("old", RoleHuman, "hi")
	clock = clock.Add(30 * time.Minute)
	s.AddMessage("fresh", RoleHuman, "hi")

	clock = clock.Add(45 * time.Minute) // "old" is now 75m idle, "fresh" 45m
	if removed := s.CleanupExpired(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if len(s.Messages("old")) != 0 {
		t.Error("expired session still present")
	}
	if len(s.Messages("fresh")) != 1 {
		t.Error("fresh session was removed")
	}
}

func TestReadRefreshesActivity(t *testing.T) {
	s := NewStore(10, time.Hour)
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.AddMessage("sess", RoleHuman, "hi")

	// Reads keep the session alive past the idle timeout.
	clock = clock.Add(50 * time.Minute)
	s.Messages("sess")
	clock = clock.Add(50 * time.Minute)
	s.Context("sess", false)

	clock = clock.Add(50 * time.Minute)
	if removed := s.CleanupExpired(); removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
	if len(s.Messages("sess")) != 1 {
		t.Error("actively read session was removed")
	}
}

func TestStats(t *testing.T) {
	s := NewStore(10, 24*time.Hour)
	s.AddMessage("a", RoleHuman, "q")
	s.AddMessage("a", RoleAssistant, "r")
	s.AddMessage("b", RoleHuman, "q")

	st := s.Stats()
	if st.ActiveSessions != 2 {
		t.Errorf("ActiveSessions = %d, want 2", st.ActiveSessions)
	}
	if st.TotalMessages != 3 {
		t.Errorf("TotalMessages = %d, want 3", st.TotalMessages)
	}
	if st.MaxHistory != 10 || st.TimeoutHours != 24 {
		t.Errorf("stats = %+v", st)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore(50, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("sess-%d", n%2)
			for j := 0; j < 100; j++ {
				s.AddMessage(id, RoleHuman, "q")
				s.Context(id, true)
				s.Messages(id)
				s.Stats()
			}
		}(i)
	}
	wg.Wait()

	if st := s.Stats(); st.ActiveSessions != 2 {
		t.Errorf("ActiveSessions = %d, want 2", st.ActiveSessions)
	}
}
