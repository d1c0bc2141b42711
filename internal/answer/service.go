// Package answer assembles prompt context from stored documents and scraped
// college pages, calls the generative provider through the retry wrapper,
// and folds citations into the result. Failures never escape as errors:
// they become user-facing messages.
package answer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nmurthy/campus-aide/internal/llm"
	"github.com/nmurthy/campus-aide/internal/metrics"
	"github.com/nmurthy/campus-aide/internal/retry"
	"github.com/nmurthy/campus-aide/internal/scrape"
	"github.com/nmurthy/campus-aide/internal/storage"
)

const snippetLen = 150

type Generator interface {
	Generate(ctx context.Context, req llm.Request) (llm.Response, error)
}

type DocumentSource interface {
	GetAllDocuments() ([]storage.Document, error)
}

type PageScraper interface {
	Page(ctx context.Context, url string, force bool) scrape.Result
}

// Query is one answer request.
type Query struct {
	Text      string
	History   []storage.Message
	Role      string
	WebSearch bool
}

// Answer is the orchestrated result. NeedsWebApproval signals that nothing
// local matched and the caller should offer to enable web search.
type Answer struct {
	Text             string             `json:"text"`
	Citations        []storage.Citation `json:"citations,omitempty"`
	NeedsWebApproval bool               `json:"needs_web_approval,omitempty"`
}

type Config struct {
	HistoryWindow int
	Timeout       time.Duration
	RetryAttempts int
	RetryBase     time.Duration
	Routes        []PageRoute
}

type Service struct {
	docs      DocumentSource
	scraper   PageScraper
	generator Generator
	reset     func()
	cfg       Config
}

// New builds the orchestrator. scraper may be nil (no college-web context);
// reset may be nil (no client handle to recreate on network errors).
func New(docs DocumentSource, scraper PageScraper, generator Generator, reset func(), cfg Config) *Service {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 12
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	return &Service{docs: docs, scraper: scraper, generator: generator, reset: reset, cfg: cfg}
}

// Answer runs the full orchestration. onProgress receives coarse status
// strings and may be nil; it has no effect on control flow.
func (s *Service) Answer(ctx context.Context, q Query, onProgress func(string)) Answer {
	progress := func(status string) {
		if onProgress != nil {
			onProgress(status)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	progress("searching documents")
	matched := s.matchedDocuments(q)

	var pages []*scrape.PageData
	if s.scraper != nil {
		if urls := RoutePages(q.Text, s.cfg.Routes); len(urls) > 0 {
			progress("fetching college pages")
			pages = s.scrapePages(ctx, urls)
		}
	}

	if len(matched) == 0 && len(pages) == 0 && !q.WebSearch {
		return Answer{
			Text:             "I couldn't find anything about that in the college documents. Want me to search the web?",
			NeedsWebApproval: true,
		}
	}

	progress("generating")
	req := llm.Request{
		System:    buildSystemInstruction(q.Role, matched, pages),
		Messages:  buildMessages(q, s.cfg.HistoryWindow),
		WebSearch: q.WebSearch,
	}

	resp, err := retry.Do(ctx, func(ctx context.Context) (llm.Response, error) {
		return s.generator.Generate(ctx, req)
	}, retry.Options{
		MaxAttempts: s.cfg.RetryAttempts,
		BaseDelay:   s.cfg.RetryBase,
		Reset:       s.reset,
		OnRetry: func(kind retry.Kind, attempt int) {
			metrics.CountAnswerRetry(kind.String())
			slog.Warn("answer generation retry", "kind", kind.String(), "attempt", attempt)
		},
	})
	if err != nil {
		return Answer{Text: failureMessage(err)}
	}

	return Answer{
		Text:      resp.Text,
		Citations: mergeCitations(matched, pages, resp.Citations),
	}
}

func (s *Service) matchedDocuments(q Query) []storage.Document {
	all, err := s.docs.GetAllDocuments()
	if err != nil {
		slog.Warn("document lookup failed, answering without internal context", "error", err)
		return nil
	}
	visible := storage.FilterForRole(all, q.Role)
	return storage.MatchDocuments(q.Text, visible)
}

func (s *Service) scrapePages(ctx context.Context, urls []string) []*scrape.PageData {
	var pages []*scrape.PageData
	for _, pageURL := range urls {
		result := s.scraper.Page(ctx, pageURL, false)
		if !result.Success {
			// Degrades context quality only, never the answer flow.
			slog.Warn("page scrape failed", "url", pageURL, "error", result.Err)
			continue
		}
		pages = append(pages, result.Data)
	}
	return pages
}

func buildMessages(q Query, window int) []llm.Message {
	history := q.History
	if len(history) > window {
		history = history[len(history)-window:]
	}

	messages := make([]llm.Message, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return append(messages, llm.Message{Role: "user", Content: q.Text})
}

func mergeCitations(docs []storage.Document, pages []*scrape.PageData, grounding []llm.Citation) []storage.Citation {
	var citations []storage.Citation
	for _, doc := range docs {
		snippet := Truncate(doc.Content, snippetLen)
		citations = append(citations, storage.Citation{
			Title:      doc.Title,
			SourceType: storage.SourceInternal,
			Snippet:    snippet,
		})
	}
	for _, page := range pages {
		title := page.Title
		if title == "" {
			title = page.URL
		}
		citations = append(citations, storage.Citation{
			Title:      title,
			URL:        page.URL,
			SourceType: storage.SourceCollegeWeb,
		})
	}
	for _, c := range grounding {
		citations = append(citations, storage.Citation{
			Title:      c.Title,
			URL:        c.URL,
			SourceType: storage.SourceExternal,
		})
	}
	return citations
}

// Truncate caps s at limit bytes, backing up so a multi-byte UTF-8
// sequence is never split mid-rune.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func failureMessage(err error) string {
	if errors.Is(err, context.Canceled) {
		return "Cancelled."
	}

	switch retry.Classify(err) {
	case retry.KindRateLimited:
		return "I'm getting too many requests right now. Please wait a minute and ask again."
	case retry.KindAuth:
		return "The assistant isn't configured correctly (invalid API credential). Please tell the administrator."
	case retry.KindNetwork:
		return "I couldn't reach the answer service. Check the connection and try again."
	default:
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline") {
			return "That took too long to answer. Please try again."
		}
		return "Something went wrong while generating the answer. Please try again."
	}
}
