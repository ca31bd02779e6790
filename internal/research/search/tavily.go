// Package search implements the web search adapters.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "deepresearch/internal/errors"
	"deepresearch/internal/logging"
	"deepresearch/internal/server/ports"
)

const defaultTavilyBaseURL = "https://api.tavily.com"

// TavilyConfig configures the Tavily searcher.
type TavilyConfig struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
}

// tavilyRequest represents a request to Tavily API
type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
}

// tavilyResponse represents the response from Tavily API
type tavilyResponse struct {
	Query   string         `json:"query"`
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// TavilySearcher queries the Tavily search API.
type TavilySearcher struct {
	apiKey     string
	baseURL    string
	maxResults int
	client     *http.Client
	logger     logging.Logger
}

var _ ports.Searcher = (*TavilySearcher)(nil)

// NewTavilySearcher creates a searcher; the API key is required.
func NewTavilySearcher(cfg TavilyConfig) (*TavilySearcher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("tavily api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultTavilyBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 8
	}
	return &TavilySearcher{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxResults: maxResults,
		client:     &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger("TavilySearcher"),
	}, nil
}

func (s *TavilySearcher) Search(ctx context.Context, query string) ([]ports.RawResult, error) {
	requestBody, err := json.Marshal(tavilyRequest{
		APIKey:      s.apiKey,
		Query:       query,
		SearchDepth: "basic",
		MaxResults:  s.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, apperrors.NewTransientError(fmt.Errorf("read tavily response: %w", err), "")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.FromHTTPStatus("tavily", resp.StatusCode, body)
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}

	results := make([]ports.RawResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		results = append(results, ports.RawResult{
			URL:     r.URL,
			Title:   strings.TrimSpace(r.Title),
			Snippet: strings.TrimSpace(r.Content),
		})
	}
	logging.FromContext(ctx, s.logger).Debug("tavily returned %d results for %q", len(results), query)
	return results, nil
}
