package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Simple is a single GET that looks like a desktop browser arriving from a search engine.
type Simple struct {
	client *client
}

// NewSimple builds the simple strategy.
func NewSimple(cfg Config) *Simple {
	return &Simple{client: newClient(cfg, 30*time.Second)}
}

// Name implements monitor.Strategy.
func (s *Simple) Name() string { return "simple" }

// Fetch implements monitor.Strategy.
func (s *Simple) Fetch(ctx context.Context, url string) (string, error) {
	p, err := s.client.get(ctx, url, s.headers())
	if err != nil {
		return "", err
	}
	text, err := p.text()
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errors.New("empty content")
	}
	return text, nil
}

func (s *Simple) headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", s.client.userAgent())
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Cache-Control", "max-age=0")
	h.Set("Sec-Ch-Ua", `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`)
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Platform", `"macOS"`)
	h.Set("Referer", "https://www.google.com/")
	return h
}
