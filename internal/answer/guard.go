package answer

import (
	"log/slog"
	"strings"
)

// enforceWordCount post-processes an answer to contain exactly n words.
// Longer answers are truncated; shorter ones are returned unchanged, a soft
// failure by contract: a formatting guard may trim content but must never
// invent it. n <= 0 disables the guard. Runs uniformly after every
// composition path, provider-generated or not.
func enforceWordCount(text string, n int) string {
	if n <= 0 {
		return text
	}
	words := strings.Fields(text)
	switch {
	case len(words) > n:
		return strings.Join(words[:n], " ")
	case len(words) < n:
		slog.Debug("answer shorter than requested word count", "have", len(words), "want", n)
		return strings.Join(words, " ")
	default:
		return strings.Join(words, " ")
	}
}
