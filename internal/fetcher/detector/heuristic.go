// Package detector decides whether fetched text is real page content or an
// interstitial (bot challenge, empty shell) that should push the chain to
// the next strategy.
package detector

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinRunes is the shortest text accepted as meaningful content.
const DefaultMinRunes = 50

// Heuristic implements rule-based rejection of interstitial pages.
type Heuristic struct {
	MinRunes int
	Markers  []string
}

// challengeMarkers are lowercase phrases found on common bot-check pages.
var challengeMarkers = []string{
	"checking your browser before accessing",
	"enable javascript and cookies to continue",
	"please enable javascript to continue",
	"attention required! | cloudflare",
	"verify you are human",
	"are you a robot",
	"access denied | ",
	"you don't have permission to access",
	"just a moment...",
	"ddos protection by",
}

// NewHeuristic creates a new detector. A zero threshold uses DefaultMinRunes.
func NewHeuristic(minRunes int) *Heuristic {
	if minRunes <= 0 {
		minRunes = DefaultMinRunes
	}
	return &Heuristic{MinRunes: minRunes, Markers: challengeMarkers}
}

// Accept reports whether text looks like the page's real content.
func (h *Heuristic) Accept(text string) bool {
	return h.Reason(text) == ""
}

// Reason explains why text was rejected, or returns "" when it is accepted.
func (h *Heuristic) Reason(text string) string {
	if n := utf8.RuneCountInString(text); n <= h.MinRunes {
		return "content too short"
	}
	// Challenge copy is short; only the head of a long page is inspected.
	head := text
	if len(head) > 2048 {
		head = head[:2048]
	}
	head = strings.ToLower(head)
	for _, marker := range h.Markers {
		if strings.Contains(head, marker) {
			return "challenge page detected: " + marker
		}
	}
	return ""
}
