package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// separators are tried in order: paragraph breaks first, then lines, then
// words, then raw characters as the last resort.
var separators = []string{"\n\n", "\n", " ", ""}

// Chunk is one piece of a split document, ready for embedding.
type Chunk struct {
	ID   string
	Text string
}

// Splitter divides text into overlapping chunks along natural boundaries.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a Splitter with the given target chunk size and
// overlap, both in characters. Overlap is clamped below chunk size.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize < 1 {
		chunkSize = 1
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split breaks text into chunks tagged with IDs derived from source.
// Whitespace-only input produces no chunks.
func (s *Splitter) Split(source, text string) []Chunk {
	pieces := s.split(text, separators)

	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, Chunk{
			ID:   chunkID(source, i),
			Text: p,
		})
	}
	return chunks
}

func chunkID(source string, i int) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", source, i, suffix)
}

// split recursively divides text using the first separator that appears in
// it, merging the resulting pieces back together up to the chunk size.
func (s *Splitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	rest := seps
	for i, candidate := range seps {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var splits []string
	if sep == "" {
		splits = splitEvery(text, s.chunkSize)
	} else {
		splits = strings.Split(text, sep)
	}

	var out []string
	var pending []string // pieces small enough to merge
	for _, piece := range splits {
		if len(piece) <= s.chunkSize {
			pending = append(pending, piece)
			continue
		}
		// Oversized piece: flush what we have, then recurse with the
		// remaining finer separators.
		out = append(out, s.merge(pending, sep)...)
		pending = nil
		out = append(out, s.split(piece, rest)...)
	}
	out = append(out, s.merge(pending, sep)...)
	return out
}

// merge greedily packs pieces into chunks up to the chunk size, carrying
// overlap characters from the tail of each chunk into the next. total is
// the joined length of cur, separators included.
func (s *Splitter) merge(pieces []string, sep string) []string {
	var out []string
	var cur []string
	total := 0

	joined := func(extra int) int {
		if len(cur) == 0 {
			return total + extra
		}
		return total + len(sep) + extra
	}
	dropHead := func() {
		total -= len(cur[0])
		if len(cur) > 1 {
			total -= len(sep)
		}
		cur = cur[1:]
	}

	for _, p := range pieces {
		if joined(len(p)) > s.chunkSize && len(cur) > 0 {
			chunk := strings.TrimSpace(strings.Join(cur, sep))
			if chunk != "" {
				out = append(out, chunk)
			}
			// Shrink to the overlap window, and further if the incoming
			// piece still would not fit.
			for len(cur) > 0 && (total > s.overlap || joined(len(p)) > s.chunkSize) {
				dropHead()
			}
		}
		if len(cur) > 0 {
			total += len(sep)
		}
		cur = append(cur, p)
		total += len(p)
	}

	if len(cur) > 0 {
		chunk := strings.TrimSpace(strings.Join(cur, sep))
		if chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}

func splitEvery(text string, n int) []string {
	var out []string
	for len(text) > n {
		out = append(out, text[:n])
		text = text[n:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
