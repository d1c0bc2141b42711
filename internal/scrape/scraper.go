// Package scrape fetches college web pages through CORS-style relay
// endpoints and extracts structured fields for prompt context.
package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/nmurthy/campus-aide/internal/metrics"
)

const (
	DefaultTTL            = 30 * time.Minute
	defaultAttemptTimeout = 10 * time.Second
	defaultMaxAttempts    = 3
	relayBackoffStep      = 500 * time.Millisecond

	maxFetchBytes = 2 << 20 // 2 MiB of markup is plenty for any college page
)

// Result is the outcome of a Page call. A failed scrape is "no data", never
// fatal to the caller.
type Result struct {
	Success   bool      `json:"success"`
	Data      *PageData `json:"data,omitempty"`
	Err       string    `json:"error,omitempty"`
	FromCache bool      `json:"from_cache"`
}

type Scraper struct {
	relays      []string
	client      *http.Client
	cache       *gocache.Cache
	ttl         time.Duration
	maxAttempts int

	sleep func(time.Duration)
}

type Option func(*Scraper)

// WithHTTPClient replaces the HTTP client, used by tests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) { s.client = c }
}

// WithSleep replaces the inter-attempt sleep, used by tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Scraper) { s.sleep = sleep }
}

// WithMaxAttempts bounds relay attempts per fetch.
func WithMaxAttempts(n int) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New creates a scraper. relays are format strings with one %s for the
// URL-encoded target; an empty list means direct fetching.
func New(relays []string, ttl time.Duration, opts ...Option) *Scraper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s := &Scraper{
		relays:      relays,
		client:      &http.Client{Timeout: defaultAttemptTimeout},
		cache:       gocache.New(ttl, 10*time.Minute),
		ttl:         ttl,
		maxAttempts: defaultMaxAttempts,
		sleep:       time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Page returns the extracted page for pageURL, from cache when fresh unless
// force is set. All relays exhausted yields Success=false with the last
// error.
func (s *Scraper) Page(ctx context.Context, pageURL string, force bool) Result {
	if !force {
		if cached, ok := s.cache.Get(pageURL); ok {
			metrics.CountScrapeCacheHit()
			return Result{Success: true, Data: cached.(*PageData), FromCache: true}
		}
	}

	started := time.Now()
	markup, err := s.fetch(ctx, pageURL)
	if err != nil {
		metrics.ObserveScrape("error", time.Since(started))
		return Result{Err: err.Error()}
	}

	data, err := Extract(pageURL, markup)
	if err != nil {
		metrics.ObserveScrape("parse_error", time.Since(started))
		return Result{Err: fmt.Sprintf("parse %s: %v", pageURL, err)}
	}
	data.FetchedAt = time.Now().UTC()
	metrics.ObserveScrape("ok", time.Since(started))

	s.cache.Set(pageURL, data, s.ttl)
	return Result{Success: true, Data: data}
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			// Linear backoff between relay attempts.
			s.sleep(time.Duration(attempt) * relayBackoffStep)
		}

		target := pageURL
		if len(s.relays) > 0 {
			relay := s.relays[attempt%len(s.relays)]
			target = fmt.Sprintf(relay, url.QueryEscape(pageURL))
		}

		body, err := s.fetchOnce(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err
		slog.Warn("scrape attempt failed", "url", pageURL, "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("all relays exhausted for %s: %w", pageURL, lastErr)
}

func (s *Scraper) fetchOnce(ctx context.Context, target string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, defaultAttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "campus-aide/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
