package chunker

import (
	"strings"
	"testing"
)

func texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(1000, 200)
	chunks := s.Split("doc.txt", "Welcome to the community.")

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "Welcome to the community." {
		t.Errorf("text = %q", chunks[0].Text)
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	s := NewSplitter(1000, 200)
	for _, input := range []string{"", "   ", "\n\n\n"} {
		if chunks := s.Split("doc.txt", input); len(chunks) != 0 {
			t.Errorf("Split(%q) = %v, want none", input, texts(chunks))
		}
	}
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	para1 := strings.Repeat("a", 60)
	para2 := strings.Repeat("b", 60)
	s := NewSplitter(80, 0)

	chunks := s.Split("doc.txt", para1+"\n\n"+para2)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %v, want 2", texts(chunks))
	}
	if chunks[0].Text != para1 || chunks[1].Text != para2 {
		t.Errorf("chunks = %v", texts(chunks))
	}
}

func TestSplit_RespectsChunkSize(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString("word ")
	}
	s := NewSplitter(100, 20)

	for _, c := range s.Split("doc.txt", sb.String()) {
		if len(c.Text) > 100 {
			t.Errorf("chunk of length %d exceeds size 100", len(c.Text))
		}
	}
}

func TestSplit_OverlapCarriesContext(t *testing.T) {
	// Word-separated text where consecutive chunks should share a tail.
	words := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel"}
	s := NewSplitter(20, 8)

	chunks := s.Split("doc.txt", strings.Join(words, " "))
	if len(chunks) < 2 {
		t.Fatalf("chunks = %v, want at least 2", texts(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1].Text)
		carried := prevWords[len(prevWords)-1]
		if !strings.HasPrefix(chunks[i].Text, carried) {
			t.Errorf("chunk %d %q does not start with carried word %q", i, chunks[i].Text, carried)
		}
	}
}

func TestSplit_UnbrokenTextFallsBackToCharacters(t *testing.T) {
	s := NewSplitter(50, 0)
	chunks := s.Split("doc.txt", strings.Repeat("x", 120))

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Text) > 50 {
			t.Errorf("chunk of length %d exceeds size 50", len(c.Text))
		}
	}
}

func TestSplit_ChunkIDs(t *testing.T) {
	s := NewSplitter(30, 0)
	chunks := s.Split("guide.pdf", strings.Repeat("a", 25)+"\n\n"+strings.Repeat("b", 25))

	seen := map[string]bool{}
	for i, c := range chunks {
		parts := strings.Split(c.ID, "_")
		if len(parts) != 3 {
			t.Fatalf("ID %q not of form source_index_suffix", c.ID)
		}
		if parts[0] != "guide.pdf" {
			t.Errorf("ID source = %q", parts[0])
		}
		if parts[1] != string(rune('0'+i)) {
			t.Errorf("ID index = %q, want %d", parts[1], i)
		}
		if len(parts[2]) != 8 {
			t.Errorf("ID suffix %q not 8 chars", parts[2])
		}
		if seen[c.ID] {
			t.Errorf("duplicate ID %q", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestNewSplitter_ClampsOverlap(t *testing.T) {
	s := NewSplitter(10, 50)
	if s.overlap >= s.chunkSize {
		t.Errorf("overlap %d not clamped below chunk size %d", s.overlap, s.chunkSize)
	}
}
