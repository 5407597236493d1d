// Package fetch downloads syndication feeds and turns their items into
// feedreader.RawEntry values.
package fetch

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Songmu/go-httpdate"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/jdholdren/feedreader/internal/feedreader"
	"github.com/jdholdren/feedreader/internal/logger"
)

const validatorCacheSize = 1024

type (
	Config struct {
		Timeout   time.Duration
		UserAgent string
		// ConditionalGet remembers ETag and Last-Modified per feed URL and
		// sends them back on the next fetch.
		ConditionalGet bool
		// Client replaces the default client; Timeout is ignored when set.
		Client *http.Client
	}

	// Parser fetches a feed over HTTP and parses it with gofeed.
	Parser struct {
		client     *http.Client
		userAgent  string
		validators *lru.Cache[string, validator]
	}

	// validator holds what a server told us about the last version we saw.
	validator struct {
		etag         string
		lastModified time.Time
	}
)

func New(cfg Config) (*Parser, error) {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	p := &Parser{
		client:    client,
		userAgent: cfg.UserAgent,
	}
	if cfg.ConditionalGet {
		cache, err := lru.New[string, validator](validatorCacheSize)
		if err != nil {
			return nil, fmt.Errorf("error creating validator cache: %w", err)
		}
		p.validators = cache
	}

	return p, nil
}

// Parse fetches feedURL and returns its items in document order. A 304 Not
// Modified response yields no entries and no error.
//
// We're not using gofeed.ParseURL so the request carries our headers and the
// caller's context.
func (p *Parser) Parse(ctx context.Context, feedURL string) ([]feedreader.RawEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	if v, ok := p.validator(feedURL); ok {
		if v.etag != "" {
			req.Header.Set("If-None-Match", v.etag)
		}
		if !v.lastModified.IsZero() {
			req.Header.Set("If-Modified-Since", v.lastModified.UTC().Format(http.TimeFormat))
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error getting feed url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		slog.DebugContext(ctx, "feed not modified")
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, gofeed.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}
	p.remember(feedURL, resp.Header)

	// gofeed's parsers keep per-document state, so each fetch gets its own.
	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error parsing feed: %w", err)
	}

	entries := make([]feedreader.RawEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, rawEntry(item))
	}
	slog.DebugContext(logger.Ctx(ctx, slog.Int("items", len(entries))), "parsed feed")

	return entries, nil
}

func (p *Parser) validator(feedURL string) (validator, bool) {
	if p.validators == nil {
		return validator{}, false
	}

	return p.validators.Get(feedURL)
}

func (p *Parser) remember(feedURL string, h http.Header) {
	if p.validators == nil {
		return
	}

	v := validator{etag: h.Get("ETag")}
	if lm := h.Get("Last-Modified"); lm != "" {
		if d, err := httpdate.Str2Time(lm, nil); err == nil && !d.IsZero() {
			v.lastModified = d
		}
	}
	if v.etag == "" && v.lastModified.IsZero() {
		p.validators.Remove(feedURL)
		return
	}
	p.validators.Add(feedURL, v)
}

func rawEntry(item *gofeed.Item) feedreader.RawEntry {
	raw := feedreader.RawEntry{
		ID:    strings.TrimSpace(item.GUID),
		Link:  strings.TrimSpace(item.Link),
		Title: sanitizeTitle(item.Title),
	}
	raw.Updated = updatedAt(item)

	return raw
}

// updatedAt is the entry's updated time, falling back to its published time.
// Stored with second precision, in UTC.
func updatedAt(item *gofeed.Item) *time.Time {
	for _, t := range []*time.Time{item.UpdatedParsed, item.PublishedParsed} {
		if t == nil || t.IsZero() {
			continue
		}

		updated := t.UTC().Truncate(time.Second)
		return &updated
	}

	return nil
}

var stripPolicy = bluemonday.StrictPolicy()

// Removes all html tags from a title. The policy escapes what it keeps, so
// entities are decoded afterwards.
func sanitizeTitle(s string) string {
	s = stripPolicy.Sanitize(s)
	s = html.UnescapeString(s)

	return strings.TrimSpace(s)
}
