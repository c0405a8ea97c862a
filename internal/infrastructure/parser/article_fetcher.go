package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoText reports an article page without paragraph text.
var ErrNoText = errors.New("article has no paragraph text")

// ArticleFetcher downloads article pages and extracts their paragraph text.
type ArticleFetcher struct {
	client    *http.Client
	userAgent string
}

// NewArticleFetcher wires an HTTP client. Sites reject default Go agents, so
// userAgent should look like a browser.
func NewArticleFetcher(client *http.Client, userAgent string) *ArticleFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ArticleFetcher{client: client, userAgent: userAgent}
}

// FetchText returns the space-joined text of every <p> element on the page.
func (f *ArticleFetcher) FetchText(ctx context.Context, link string) (string, error) {
	doc, err := f.fetchDocument(ctx, link)
	if err != nil {
		return "", err
	}

	text := paragraphText(doc)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func (f *ArticleFetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("article returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func paragraphText(doc *goquery.Document) string {
	parts := make([]string, 0)
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := strings.Join(strings.Fields(p.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}
