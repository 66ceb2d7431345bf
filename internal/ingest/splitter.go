package ingest

import (
	"strings"
	"unicode"
)

const (
	// DefaultChunkSize is the target chunk length in runes.
	DefaultChunkSize = 1000
	// DefaultOverlap is how many runes consecutive chunks share.
	DefaultOverlap = 200
)

// Splitter cuts document text into overlapping character-window chunks.
// Windows prefer to break at whitespace so words stay intact, falling back
// to a hard cut when a single token exceeds the window.
type Splitter struct {
	size    int
	overlap int
}

func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	return &Splitter{size: size, overlap: overlap}
}

// Split returns the chunk texts for one document. Empty and all-whitespace
// input yields no chunks.
func (s *Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var out []string
	start := 0
	for start < len(runes) {
		end := start + s.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakBefore(runes, start, end)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}
		next := end - s.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

// breakBefore moves the cut point back to the last whitespace run inside
// the window, keeping the hard limit when the window holds a single token.
func breakBefore(runes []rune, start, end int) int {
	for i := end; i > start; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
