package parser

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"IncidentScanner/internal/config"
	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/ports"
	"IncidentScanner/internal/scanner"
)

// TextFetcher resolves an entry link to article text.
type TextFetcher interface {
	FetchText(ctx context.Context, link string) (string, error)
}

// SourceError reports a feed that could not be scanned.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// StrategySource implements ports.CandidateSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sources  []domain.FeedSource
	fetcher  TextFetcher
	logger   *slog.Logger
}

var _ ports.CandidateSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined feeds.
func NewStrategySource(reg *scanner.Registry, feeds []config.FeedConfig, fetcher TextFetcher, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sources:  toFeedSources(feeds),
		fetcher:  fetcher,
		logger:   log,
	}
}

// FetchSince scans sources in configuration order and fetches each recent
// entry's article only when the consumer asks for the next candidate. Entries
// whose page is unavailable or has no text are skipped.
func (s *StrategySource) FetchSince(ctx context.Context, cutoff time.Time) iter.Seq2[domain.CandidateArticle, error] {
	return func(yield func(domain.CandidateArticle, error) bool) {
		for _, src := range s.sources {
			if ctx.Err() != nil {
				yield(domain.CandidateArticle{}, ctx.Err())
				return
			}

			entries, err := s.scan(ctx, src, cutoff)
			if err != nil {
				s.warn("feed source failed", "source", src.Label, "url", src.URL, "error", err)
				if !yield(domain.CandidateArticle{}, &SourceError{Source: sourceName(src), Err: err}) {
					return
				}
				continue
			}
			s.debug("feed scanned", "source", src.Label, "recent_entries", len(entries))

			for _, entry := range entries {
				text, err := s.fetcher.FetchText(ctx, entry.Link)
				if err != nil {
					s.info("skip article", "link", entry.Link, "reason", err)
					continue
				}
				entry.Text = text
				if !yield(entry, nil) {
					return
				}
			}
		}
	}
}

func (s *StrategySource) scan(ctx context.Context, src domain.FeedSource, cutoff time.Time) ([]domain.CandidateArticle, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}
	strategy, err := s.registry.Resolve(src.Scanner)
	if err != nil {
		return nil, err
	}
	return strategy.Scan(ctx, scanner.Request{Source: src, Cutoff: cutoff})
}

func toFeedSources(cfg []config.FeedConfig) []domain.FeedSource {
	sources := make([]domain.FeedSource, 0, len(cfg))
	for _, f := range cfg {
		name := f.Scanner
		if name == "" {
			name = "rss"
		}
		sources = append(sources, domain.FeedSource{
			URL:     f.URL,
			Label:   f.Source,
			Scanner: name,
			Ordered: f.Ordered,
		})
	}
	return sources
}

func sourceName(src domain.FeedSource) string {
	if src.Label != "" {
		return src.Label
	}
	return src.URL
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
