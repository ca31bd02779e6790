package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "deepresearch/internal/errors"
	"deepresearch/internal/server/ports"
)

func TestTavilySearcher(t *testing.T) {
	var got tavilyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"query": "go generics", "results": [
			{"title": " Generics ", "url": "https://go.dev/doc/tutorial/generics", "content": "Intro", "score": 0.9},
			{"title": "no url", "url": ""}
		]}`))
	}))
	defer server.Close()

	searcher, err := NewTavilySearcher(TavilyConfig{APIKey: "tvly-key", BaseURL: server.URL + "/", MaxResults: 4})
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "go generics")
	require.NoError(t, err)
	assert.Equal(t, []ports.RawResult{{URL: "https://go.dev/doc/tutorial/generics", Title: "Generics", Snippet: "Intro"}}, results)
	assert.Equal(t, tavilyRequest{APIKey: "tvly-key", Query: "go generics", SearchDepth: "basic", MaxResults: 4}, got)
}

func TestTavilySearcherErrors(t *testing.T) {
	_, err := NewTavilySearcher(TavilyConfig{})
	require.Error(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer server.Close()

	searcher, err := NewTavilySearcher(TavilyConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)
	_, err = searcher.Search(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
	assert.Contains(t, err.Error(), "status 429")
}

func TestTavilySearcherZeroResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	searcher, err := NewTavilySearcher(TavilyConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)
	results, err := searcher.Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, results)
}
