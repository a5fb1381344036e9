package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristic_Accept_RealContent(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0)
	text := "Quarterly results are in. Revenue grew twelve percent on strong subscription demand."
	require.True(t, h.Accept(text))
	require.Empty(t, h.Reason(text))
}

func TestHeuristic_Accept_ShortContent(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0)
	require.False(t, h.Accept(strings.Repeat("x", DefaultMinRunes)))
	require.True(t, h.Accept(strings.Repeat("x", DefaultMinRunes+1)))
	require.Equal(t, "content too short", h.Reason(""))
}

func TestHeuristic_Accept_CountsRunesNotBytes(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(10)
	require.False(t, h.Accept(strings.Repeat("é", 10)))
	require.True(t, h.Accept(strings.Repeat("é", 11)))
}

func TestHeuristic_Accept_ChallengePage(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0)
	text := "Just a moment... Checking your browser before accessing example.com. This process is automatic."
	require.False(t, h.Accept(text))
	require.Contains(t, h.Reason(text), "challenge page detected")
}

func TestHeuristic_Accept_ArticleMentioningAccessDenied(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0)
	article := "Court rules on the case after residents were access denied to public records for years. " +
		"The decision requires the city to publish the documents within ninety days."
	require.True(t, h.Accept(article))

	blocked := "Access Denied | example.com You don't have permission to access this resource on this server."
	require.False(t, h.Accept(blocked))
}
