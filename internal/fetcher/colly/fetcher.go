// Package collyfetcher implements the plain HTTP fetch strategies using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/pagewatch/internal/extract"
)

// Config controls collector behavior shared by both strategies.
type Config struct {
	// Timeout bounds a single GET. Simple defaults to 30s, each alternative to 15s.
	Timeout     time.Duration
	UserAgents  []string
	MaxBodySize int
	// RespectRobots makes colly consult robots.txt before fetching.
	RespectRobots bool
}

// UserAgents is the default pool of desktop browser identities.
var UserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0",
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// page is the raw result of one GET.
type page struct {
	status int
	body   []byte
}

// client wraps a base collector; every request runs on a clone.
type client struct {
	cfg  Config
	base *colly.Collector
}

func newClient(cfg Config, defaultTimeout time.Duration) *client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = UserAgents
	}
	c := colly.NewCollector(colly.Async(false))
	// Targets are checked repeatedly; the shared visited store must not block revisits.
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	c.WithTransport(newHTTPTransport())
	// Clones share the backend http.Client, so the timeout is set once here.
	c.SetRequestTimeout(cfg.Timeout)
	return &client{cfg: cfg, base: c}
}

func (c *client) userAgent() string {
	return c.cfg.UserAgents[rand.IntN(len(c.cfg.UserAgents))]
}

// get issues a GET with the given headers and returns the response regardless of status.
func (c *client) get(ctx context.Context, url string, headers http.Header) (page, error) {
	collector := c.base.Clone()

	var (
		result   page
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		result = page{status: r.StatusCode, body: append([]byte(nil), r.Body...)}
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil && r.StatusCode != 0 {
			fetchErr = &StatusError{StatusCode: r.StatusCode}
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Request(http.MethodGet, url, nil, nil, headers.Clone())
	}()

	select {
	case <-ctx.Done():
		return page{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		var statusErr *StatusError
		switch {
		case errors.As(fetchErr, &statusErr):
			return page{}, statusErr
		case err != nil:
			return page{}, fmt.Errorf("colly visit failed: %w", err)
		case fetchErr != nil:
			return page{}, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		return result, nil
	}
}

// text checks the status and extracts normalized document text.
func (p page) text() (string, error) {
	if p.status < 200 || p.status > 299 {
		return "", &StatusError{StatusCode: p.status}
	}
	text, err := extract.Text(p.body)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
