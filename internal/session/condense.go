package session

import (
	"regexp"
	"strings"
)

// Answers folded into the summary keep at most this many words.
const condenseMaxWords = 25

var sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// condense reduces an answer to its leading sentence, word-capped. A single
// deterministic text-reduction pass: no model call, same input always yields
// the same summary line.
func condense(answer string) string {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return answer
	}
	if first := sentencePattern.FindString(answer); first != "" {
		answer = strings.TrimSpace(first)
	}
	words := strings.Fields(answer)
	if len(words) > condenseMaxWords {
		answer = strings.Join(words[:condenseMaxWords], " ") + "…"
	}
	return answer
}
