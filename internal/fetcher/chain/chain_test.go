package chain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

type scriptedStrategy struct {
	name  string
	mu    sync.Mutex
	calls int
	// results are consumed in order; the last one repeats.
	results []result
}

type result struct {
	text string
	err  error
}

func (s *scriptedStrategy) Name() string { return s.name }

func (s *scriptedStrategy) Fetch(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	r := s.results[idx]
	return r.text, r.err
}

func (s *scriptedStrategy) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type countingWaiter struct {
	mu    sync.Mutex
	urls  []string
	block error
}

func (w *countingWaiter) Wait(_ context.Context, url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.urls = append(w.urls, url)
	return w.block
}

func fastConfig() Config {
	return Config{Attempts: 3, Backoff: time.Millisecond}
}

func TestChain_FirstStrategySucceeds(t *testing.T) {
	t.Parallel()

	simple := &scriptedStrategy{name: "simple", results: []result{{text: "  Hello \n World  "}}}
	alt := &scriptedStrategy{name: "alternatives", results: []result{{text: "unused"}}}
	waiter := &countingWaiter{}

	c, err := New(fastConfig(), waiter, nil, simple, alt)
	require.NoError(t, err)
	require.Equal(t, []string{"simple", "alternatives"}, c.Strategies())

	content, err := c.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, monitor.Content{Text: "Hello World", Strategy: "simple"}, content)
	require.Equal(t, 0, alt.Calls())
	require.Equal(t, []string{"https://example.com"}, waiter.urls)
}

func TestChain_FallsBackToNextStrategy(t *testing.T) {
	t.Parallel()

	simple := &scriptedStrategy{name: "simple", results: []result{{err: errors.New("HTTP 403: Forbidden")}}}
	alt := &scriptedStrategy{name: "alternatives", results: []result{{text: "page text"}}}

	c, err := New(fastConfig(), nil, nil, simple, alt)
	require.NoError(t, err)

	content, err := c.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, "alternatives", content.Strategy)
	require.Equal(t, 1, simple.Calls())
}

func TestChain_RetriesWholeChain(t *testing.T) {
	t.Parallel()

	simple := &scriptedStrategy{name: "simple", results: []result{
		{err: errors.New("timeout")},
		{err: errors.New("timeout")},
		{text: "finally"},
	}}
	c, err := New(fastConfig(), nil, nil, simple)
	require.NoError(t, err)

	content, err := c.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, "finally", content.Text)
	require.Equal(t, 3, simple.Calls())
}

func TestChain_ExhaustedReportsFirstStrategyError(t *testing.T) {
	t.Parallel()

	simple := &scriptedStrategy{name: "simple", results: []result{
		{err: errors.New("HTTP 403: Forbidden")},
		{err: errors.New("HTTP 500: Internal Server Error")},
	}}
	browser := &scriptedStrategy{name: "browser", results: []result{{err: errors.New("chrome missing")}}}

	c, err := New(fastConfig(), nil, nil, simple, browser)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "https://example.com")
	var fetchErr *monitor.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, 3, fetchErr.Attempts)
	require.Equal(t, "simple: HTTP 403: Forbidden", fetchErr.Reason)
	require.Equal(t, 3, simple.Calls())
	require.Equal(t, 3, browser.Calls())
}

func TestChain_EmptyTextIsFailure(t *testing.T) {
	t.Parallel()

	simple := &scriptedStrategy{name: "simple", results: []result{{text: " \n\t "}}}
	c, err := New(Config{Attempts: 1}, nil, nil, simple)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "https://example.com")
	var fetchErr *monitor.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, "simple: empty content", fetchErr.Reason)
	require.Equal(t, 1, fetchErr.Attempts)
}

func TestChain_CanceledContextStopsBackoff(t *testing.T) {
	t.Parallel()

	simple := &scriptedStrategy{name: "simple", results: []result{{err: errors.New("boom")}}}
	c, err := New(Config{Attempts: 3, Backoff: time.Hour}, nil, nil, simple)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Fetch(ctx, "https://example.com")
	require.Less(t, time.Since(start), 5*time.Second)
	var fetchErr *monitor.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, 1, fetchErr.Attempts)
	require.Equal(t, 1, simple.Calls())
}

func TestChain_LimiterErrorCountsAsFailure(t *testing.T) {
	t.Parallel()

	simple := &scriptedStrategy{name: "simple", results: []result{{text: "never"}}}
	waiter := &countingWaiter{block: errors.New("rate limit wait: canceled")}
	c, err := New(Config{Attempts: 1}, waiter, nil, simple)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "https://example.com")
	require.Error(t, err)
	require.Equal(t, 0, simple.Calls())
}

func TestNew_RequiresStrategy(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil)
	require.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	c, err := New(Config{}, nil, nil, &scriptedStrategy{name: "simple", results: []result{{text: "x"}}})
	require.NoError(t, err)
	require.Equal(t, 3, c.cfg.Attempts)
	require.Equal(t, 2*time.Second, c.cfg.Backoff)
}
