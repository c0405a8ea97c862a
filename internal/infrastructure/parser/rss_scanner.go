package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"

	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/scanner"
)

// fallbackLayouts cover dates gofeed leaves unparsed.
var fallbackLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339Nano,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// RSSScanner parses RSS, Atom and JSON feeds.
type RSSScanner struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewRSSScanner wires an HTTP client; a nil client gets a 10s timeout.
func NewRSSScanner(client *http.Client, userAgent string, logger *slog.Logger) *RSSScanner {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RSSScanner{client: client, userAgent: userAgent, logger: logger}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string {
	return "rss"
}

// Scan downloads the feed and returns entries published after the cutoff.
// Ordered sources stop at the first entry that is not recent.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.CandidateArticle, error) {
	fp := gofeed.NewParser()
	fp.AtomTranslator = &publishedOnlyAtomTranslator{}
	fp.Client = s.client
	if s.userAgent != "" {
		fp.UserAgent = s.userAgent
	}

	feed, err := fp.ParseURLWithContext(req.Source.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", req.Source.URL, err)
	}

	cutoff := req.Cutoff.UTC()
	results := make([]domain.CandidateArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		publishedAt, ok := publishedTime(item)
		if !ok {
			s.debug("skip entry without timestamp", "link", item.Link, "published", item.Published)
			continue
		}

		if !publishedAt.After(cutoff) {
			if req.Source.Ordered {
				break
			}
			continue
		}

		link := strings.TrimSpace(item.Link)
		if link == "" {
			s.debug("skip entry without link", "title", item.Title)
			continue
		}

		results = append(results, domain.CandidateArticle{
			Title:       strings.TrimSpace(item.Title),
			Link:        link,
			PublishedAt: publishedAt,
			ImageURL:    imageURL(item),
			SourceLabel: req.Source.Label,
		})
	}

	return results, nil
}

// publishedOnlyAtomTranslator keeps an Atom entry's published date empty when
// the entry has none. The default translator substitutes <updated>, which
// moves whenever the page is edited.
type publishedOnlyAtomTranslator struct {
	gofeed.DefaultAtomTranslator
}

func (t *publishedOnlyAtomTranslator) Translate(feed interface{}) (*gofeed.Feed, error) {
	out, err := t.DefaultAtomTranslator.Translate(feed)
	if err != nil {
		return nil, err
	}
	af, ok := feed.(*atom.Feed)
	if !ok {
		return out, nil
	}
	for i, entry := range af.Entries {
		if i >= len(out.Items) || entry == nil {
			break
		}
		out.Items[i].Published = entry.Published
		out.Items[i].PublishedParsed = entry.PublishedParsed
	}
	return out, nil
}

// publishedTime reads only the publish date. Entries without a parseable one are skipped.
func publishedTime(item *gofeed.Item) (time.Time, bool) {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC(), true
	}
	return parseTimestamp(item.Published)
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func imageURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			return enc.URL
		}
	}
	if item.Image != nil {
		return item.Image.URL
	}
	return ""
}

func (s *RSSScanner) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
