// Package diff produces human-readable word and window deltas between two
// versions of page text.
package diff

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/pagewatch/internal/extract"
)

// Summaries reported when no word delta is produced.
const (
	MissingContentSummary = "Unable to generate diff - missing content data"
	FormattingOnlySummary = "No text content changes detected (may be formatting or whitespace changes)"
)

// Window sizes for the character fallback.
const (
	windowThreshold = 1000
	windowEdge      = 200
)

// Result is the outcome of a word diff.
type Result struct {
	Summary    string   `json:"summary"`
	Rendered   string   `json:"rendered"`
	HasChanges bool     `json:"has_changes"`
	Added      []string `json:"added"`
	Removed    []string `json:"removed"`
}

// Words compares old and new as whitespace-separated tokens. The unchanged
// prefix and suffix are trimmed and the differing middle is reported as a
// single removed block and a single added block.
func Words(oldText, newText string) Result {
	cleanOld := extract.Normalize(oldText)
	cleanNew := extract.Normalize(newText)
	if cleanOld == "" || cleanNew == "" {
		return Result{Summary: MissingContentSummary}
	}
	if cleanOld == cleanNew {
		return Result{Summary: FormattingOnlySummary}
	}

	oldWords := strings.Split(cleanOld, " ")
	newWords := strings.Split(cleanNew, " ")

	prefix := 0
	for prefix < len(oldWords) && prefix < len(newWords) && oldWords[prefix] == newWords[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(oldWords)-prefix && suffix < len(newWords)-prefix &&
		oldWords[len(oldWords)-1-suffix] == newWords[len(newWords)-1-suffix] {
		suffix++
	}

	res := Result{
		HasChanges: true,
		Removed:    append([]string(nil), oldWords[prefix:len(oldWords)-suffix]...),
		Added:      append([]string(nil), newWords[prefix:len(newWords)-suffix]...),
	}

	var b strings.Builder
	if prefix > 0 {
		fmt.Fprintf(&b, "... %s ...\n\n", strings.Join(oldWords[:prefix], " "))
	}
	if len(res.Removed) > 0 {
		fmt.Fprintf(&b, "REMOVED: %s\n\n", strings.Join(res.Removed, " "))
	}
	if len(res.Added) > 0 {
		fmt.Fprintf(&b, "ADDED: %s\n\n", strings.Join(res.Added, " "))
	}
	if suffix > 0 {
		fmt.Fprintf(&b, "... %s ...\n", strings.Join(oldWords[len(oldWords)-suffix:], " "))
	}
	res.Rendered = strings.TrimSpace(b.String())
	res.Summary = fmt.Sprintf("Content changes detected: %d words added, %d words removed", len(res.Added), len(res.Removed))
	return res
}

// Window renders a character-window comparison. Long inputs show only the
// first and last runes of each side; short inputs are shown in full.
func Window(oldText, newText string) string {
	if oldText == "" || newText == "" {
		return "No content available for comparison"
	}
	oldRunes := []rune(oldText)
	newRunes := []rune(newText)

	var b strings.Builder
	if len(oldRunes) <= windowThreshold && len(newRunes) <= windowThreshold {
		fmt.Fprintf(&b, "OLD CONTENT:\n%s\n\nNEW CONTENT:\n%s\n", oldText, newText)
		return b.String()
	}

	fmt.Fprintf(&b, "Content is very long (%d -> %d characters)\n\n", len(oldRunes), len(newRunes))
	fmt.Fprintf(&b, "OLD (first %d chars):\n%s...\n\n", windowEdge, head(oldRunes))
	fmt.Fprintf(&b, "NEW (first %d chars):\n%s...\n\n", windowEdge, head(newRunes))
	if oldTail, newTail := tail(oldRunes), tail(newRunes); oldTail != newTail {
		fmt.Fprintf(&b, "OLD (last %d chars):\n...%s\n\n", windowEdge, oldTail)
		fmt.Fprintf(&b, "NEW (last %d chars):\n...%s\n", windowEdge, newTail)
	}
	return b.String()
}

// Long reports whether either side exceeds the window threshold.
func Long(oldText, newText string) bool {
	return len([]rune(oldText)) > windowThreshold || len([]rune(newText)) > windowThreshold
}

func head(r []rune) string {
	if len(r) <= windowEdge {
		return string(r)
	}
	return string(r[:windowEdge])
}

func tail(r []rune) string {
	if len(r) <= windowEdge {
		return string(r)
	}
	return string(r[len(r)-windowEdge:])
}
