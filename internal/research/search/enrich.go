package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"deepresearch/internal/logging"
	"deepresearch/internal/server/ports"
)

const (
	maxEnrichBytes   = 1 << 20
	maxSnippetLength = 400
)

// EnrichingSearcher fills in missing snippets and titles by fetching the
// result page and reading its description. Fetch failures leave the result
// untouched.
type EnrichingSearcher struct {
	delegate ports.Searcher
	client   *http.Client
	maxPages int
	logger   logging.Logger
}

var _ ports.Searcher = (*EnrichingSearcher)(nil)

// NewEnrichingSearcher wraps delegate; at most maxPages pages are fetched per
// search.
func NewEnrichingSearcher(delegate ports.Searcher, maxPages int, timeout time.Duration) *EnrichingSearcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EnrichingSearcher{
		delegate: delegate,
		client:   &http.Client{Timeout: timeout},
		maxPages: maxPages,
		logger:   logging.NewComponentLogger("EnrichingSearcher"),
	}
}

func (e *EnrichingSearcher) Search(ctx context.Context, query string) ([]ports.RawResult, error) {
	results, err := e.delegate.Search(ctx, query)
	if err != nil || e.maxPages <= 0 {
		return results, err
	}

	enriched := append([]ports.RawResult(nil), results...)
	var g errgroup.Group
	g.SetLimit(4)
	fetched := 0
	for i := range enriched {
		if enriched[i].Snippet != "" && enriched[i].Title != "" {
			continue
		}
		if fetched >= e.maxPages {
			break
		}
		fetched++
		g.Go(func() error {
			title, description, err := e.describe(ctx, enriched[i].URL)
			if err != nil {
				logging.FromContext(ctx, e.logger).Debug("enrich %s: %v", enriched[i].URL, err)
				return nil
			}
			if enriched[i].Title == "" {
				enriched[i].Title = title
			}
			if enriched[i].Snippet == "" {
				enriched[i].Snippet = description
			}
			return nil
		})
	}
	_ = g.Wait()
	return enriched, nil
}

func (e *EnrichingSearcher) describe(ctx context.Context, pageURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := e.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxEnrichBytes))
	if err != nil {
		return "", "", err
	}
	title, description := PageSummary(doc)
	return title, description, nil
}

// PageSummary returns the page title and the best available description:
// meta description, then og:description, then the first substantial paragraph.
func PageSummary(doc *goquery.Document) (string, string) {
	title := collapse(doc.Find("title").First().Text())
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && title == "" {
		title = collapse(og)
	}

	var description string
	for _, selector := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if content, ok := doc.Find(selector).Attr("content"); ok {
			if description = collapse(content); description != "" {
				break
			}
		}
	}
	if description == "" {
		doc.Find("script, style, nav, footer, header, aside").Remove()
		doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if text := collapse(s.Text()); len(text) > 40 {
				description = text
				return false
			}
			return true
		})
	}
	if runes := []rune(description); len(runes) > maxSnippetLength {
		description = string(runes[:maxSnippetLength]) + "..."
	}
	return title, description
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
