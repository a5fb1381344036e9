package collyfetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Referers is the fixed pool cycled by Alternatives; "" sends no Referer.
var Referers = []string{
	"https://www.google.com/",
	"https://www.bing.com/",
	"https://www.facebook.com/",
	"https://twitter.com/",
	"https://www.linkedin.com/",
	"https://www.reddit.com/",
	"",
}

// Acceptor decides whether extracted text is real content.
type Acceptor interface {
	Reason(text string) string
}

// Alternatives retries the GET once per referer with a reduced header set,
// returning the first response whose text the acceptor approves.
type Alternatives struct {
	client   *client
	accept   Acceptor
	referers []string
}

// NewAlternatives builds the alternatives strategy.
func NewAlternatives(cfg Config, accept Acceptor) *Alternatives {
	return &Alternatives{
		client:   newClient(cfg, 15*time.Second),
		accept:   accept,
		referers: Referers,
	}
}

// Name implements monitor.Strategy.
func (a *Alternatives) Name() string { return "alternatives" }

// Fetch implements monitor.Strategy.
func (a *Alternatives) Fetch(ctx context.Context, url string) (string, error) {
	failures := make([]string, 0, len(a.referers))
	for _, referer := range a.referers {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("alternatives canceled: %w", err)
		}
		text, err := a.try(ctx, url, referer)
		if err == nil {
			return text, nil
		}
		label := referer
		if label == "" {
			label = "none"
		}
		failures = append(failures, fmt.Sprintf("Referer %s: %v", label, err))
	}
	return "", fmt.Errorf("all alternative extraction methods failed: %s", strings.Join(failures, "; "))
}

func (a *Alternatives) try(ctx context.Context, url, referer string) (string, error) {
	h := http.Header{}
	h.Set("User-Agent", a.client.userAgent())
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Upgrade-Insecure-Requests", "1")
	if referer != "" {
		h.Set("Referer", referer)
	}

	p, err := a.client.get(ctx, url, h)
	if err != nil {
		return "", err
	}
	text, err := p.text()
	if err != nil {
		return "", err
	}
	if a.accept != nil {
		if reason := a.accept.Reason(text); reason != "" {
			return "", fmt.Errorf("rejected: %s", reason)
		}
	}
	return text, nil
}
