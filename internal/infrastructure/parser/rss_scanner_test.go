package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"IncidentScanner/internal/config"
	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/scanner"
)

var testCutoff = time.Date(2025, time.November, 8, 12, 0, 0, 0, time.UTC)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Security News</title>
  <item>
    <title>Acme breach disclosed</title>
    <link>%[1]s/articles/acme</link>
    <pubDate>Sat, 08 Nov 2025 13:00:00 +0000</pubDate>
    <enclosure url="https://img.example.com/acme.png" type="image/png" length="10"/>
  </item>
  <item>
    <title>Old news</title>
    <link>%[1]s/articles/old</link>
    <pubDate>Sat, 08 Nov 2025 09:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Undated</title>
    <link>%[1]s/articles/undated</link>
  </item>
  <item>
    <title>Globex ransomware</title>
    <link>%[1]s/articles/globex</link>
    <pubDate>Sat, 08 Nov 2025 14:30:00 +0000</pubDate>
  </item>
</channel>
</rss>`

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = fmt.Fprintf(w, feedXML, server.URL)
	})
	mux.HandleFunc("/articles/acme", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.UserAgent(), "Mozilla") {
			http.Error(w, "blocked", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`<html><body><h1>Acme</h1><p>Acme Inc. confirmed   a breach.</p><div>nav</div><p>Widget users affected.</p></body></html>`))
	})
	mux.HandleFunc("/articles/globex", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/articles/empty", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div>no paragraphs here</div></body></html>`))
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRSSScannerScan(t *testing.T) {
	t.Parallel()

	server := newFeedServer(t)
	sc := NewRSSScanner(server.Client(), "Mozilla/5.0", nil)

	entries, err := sc.Scan(context.Background(), scanner.Request{
		Source: domain.FeedSource{URL: server.URL + "/feed.xml", Label: "SecNews"},
		Cutoff: testCutoff,
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 recent entries, got %d", len(entries))
	}
	if entries[0].Title != "Acme breach disclosed" {
		t.Fatalf("unexpected first title: %s", entries[0].Title)
	}
	if entries[0].ImageURL != "https://img.example.com/acme.png" {
		t.Fatalf("unexpected image: %s", entries[0].ImageURL)
	}
	if entries[0].SourceLabel != "SecNews" {
		t.Fatalf("unexpected label: %s", entries[0].SourceLabel)
	}
	if !entries[0].PublishedAt.Equal(time.Date(2025, time.November, 8, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected published time: %v", entries[0].PublishedAt)
	}
	if entries[1].Title != "Globex ransomware" {
		t.Fatalf("unexpected second title: %s", entries[1].Title)
	}
}

func TestRSSScannerOrderedStopsEarly(t *testing.T) {
	t.Parallel()

	server := newFeedServer(t)
	sc := NewRSSScanner(server.Client(), "", nil)

	entries, err := sc.Scan(context.Background(), scanner.Request{
		Source: domain.FeedSource{URL: server.URL + "/feed.xml", Ordered: true},
		Cutoff: testCutoff,
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected scan to stop after the first old entry, got %d entries", len(entries))
	}
}

const atomXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Vendor advisories</title>
  <id>urn:advisories</id>
  <updated>2025-11-08T13:00:00Z</updated>
  <entry>
    <title>Edited old advisory</title>
    <id>urn:advisories:1</id>
    <link href="https://advisories.example.com/1"/>
    <updated>2025-11-08T13:00:00Z</updated>
  </entry>
  <entry>
    <title>Garbled publish date</title>
    <id>urn:advisories:2</id>
    <link href="https://advisories.example.com/2"/>
    <published>yesterday-ish</published>
    <updated>2025-11-08T13:00:00Z</updated>
  </entry>
  <entry>
    <title>Initech intrusion</title>
    <id>urn:advisories:3</id>
    <link href="https://advisories.example.com/3"/>
    <published>2025-11-08T12:30:00Z</published>
    <updated>2025-11-08T13:30:00Z</updated>
  </entry>
</feed>`

func TestRSSScannerAtomIgnoresUpdated(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(atomXML))
	}))
	t.Cleanup(server.Close)

	sc := NewRSSScanner(server.Client(), "", nil)
	entries, err := sc.Scan(context.Background(), scanner.Request{
		Source: domain.FeedSource{URL: server.URL},
		Cutoff: testCutoff,
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected only the entry with a published date, got %d: %+v", len(entries), entries)
	}
	if entries[0].Title != "Initech intrusion" {
		t.Fatalf("unexpected title: %s", entries[0].Title)
	}
	if !entries[0].PublishedAt.Equal(time.Date(2025, time.November, 8, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("published time taken from the wrong field: %v", entries[0].PublishedAt)
	}
}

func TestRSSScannerUnreachableFeed(t *testing.T) {
	t.Parallel()

	server := newFeedServer(t)
	sc := NewRSSScanner(server.Client(), "", nil)

	_, err := sc.Scan(context.Background(), scanner.Request{
		Source: domain.FeedSource{URL: server.URL + "/missing.xml"},
		Cutoff: testCutoff,
	})
	if err == nil {
		t.Fatalf("expected error for missing feed")
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Time{
		"Sat, 08 Nov 2025 13:00:00 +0200": time.Date(2025, time.November, 8, 11, 0, 0, 0, time.UTC),
		"2025-11-08T13:00:00Z":            time.Date(2025, time.November, 8, 13, 0, 0, 0, time.UTC),
		"2025-11-08":                      time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		got, ok := parseTimestamp(raw)
		if !ok {
			t.Fatalf("parseTimestamp(%q) failed", raw)
		}
		if !got.Equal(want) {
			t.Fatalf("parseTimestamp(%q) = %v, want %v", raw, got, want)
		}
	}

	if _, ok := parseTimestamp("last tuesday"); ok {
		t.Fatalf("expected garbage timestamp to be rejected")
	}
}

func TestArticleFetcher(t *testing.T) {
	t.Parallel()

	server := newFeedServer(t)
	fetcher := NewArticleFetcher(server.Client(), "Mozilla/5.0 (test)")

	text, err := fetcher.FetchText(context.Background(), server.URL+"/articles/acme")
	if err != nil {
		t.Fatalf("FetchText error: %v", err)
	}
	if text != "Acme Inc. confirmed a breach. Widget users affected." {
		t.Fatalf("unexpected text: %q", text)
	}

	if _, err := fetcher.FetchText(context.Background(), server.URL+"/articles/globex"); err == nil {
		t.Fatalf("expected error for 404 article")
	}

	_, err = fetcher.FetchText(context.Background(), server.URL+"/articles/empty")
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
}

func TestStrategySourceFetchSince(t *testing.T) {
	t.Parallel()

	server := newFeedServer(t)
	reg := scanner.NewRegistry()
	reg.Register(NewRSSScanner(server.Client(), "", nil))

	feeds := []config.FeedConfig{
		{Source: "Broken", URL: server.URL + "/missing.xml"},
		{Source: "SecNews", URL: server.URL + "/feed.xml"},
	}
	src := NewStrategySource(reg, feeds, NewArticleFetcher(server.Client(), "Mozilla/5.0"), nil)

	var (
		candidates []domain.CandidateArticle
		failures   []string
	)
	for candidate, err := range src.FetchSince(context.Background(), testCutoff) {
		if err != nil {
			var srcErr *SourceError
			if !errors.As(err, &srcErr) {
				t.Fatalf("unexpected error type %T", err)
			}
			failures = append(failures, srcErr.Source)
			continue
		}
		candidates = append(candidates, candidate)
	}

	if len(failures) != 1 || failures[0] != "Broken" {
		t.Fatalf("expected Broken source failure, got %v", failures)
	}
	// globex article returns 404 and is skipped
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Link != server.URL+"/articles/acme" {
		t.Fatalf("unexpected link: %s", candidates[0].Link)
	}
	if !strings.Contains(candidates[0].Text, "Widget users affected.") {
		t.Fatalf("unexpected text: %q", candidates[0].Text)
	}
}
