package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/support-agent/backend/pkg/config"
	"github.com/support-agent/backend/pkg/logger"
)

const serpAPIEndpoint = "https://serpapi.com/search.json"

// WebRetriever answers time-sensitive queries from live web search results.
// Without an API key it degrades to an empty result set instead of failing.
type WebRetriever struct {
	httpClient *http.Client
	apiKey     string
	maxResults int
}

type serpResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

func NewWebRetriever(cfg config.SearchConfig) *WebRetriever {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	return &WebRetriever{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     cfg.SerpAPIKey,
		maxResults: maxResults,
	}
}

func (w *WebRetriever) Retrieve(ctx context.Context, query string, k int) ([]Excerpt, error) {
	if w.apiKey == "" {
		logger.Debug("Web search skipped, no API key configured")
		return nil, nil
	}
	if k <= 0 || k > w.maxResults {
		k = w.maxResults
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", k))
	params.Set("api_key", w.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serpAPIEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search returned status %d", resp.StatusCode)
	}

	var parsed serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	var excerpts []Excerpt
	for i, result := range parsed.OrganicResults {
		if i >= k {
			break
		}
		if result.Snippet == "" {
			continue
		}
		excerpts = append(excerpts, Excerpt{
			Text:     result.Title + ": " + result.Snippet,
			SourceID: result.Link,
			Score:    1.0 / float64(i+1),
		})
	}

	logger.Debug("Web retrieval completed",
		zap.String("query", query),
		zap.Int("returned", len(excerpts)),
	)

	return excerpts, nil
}
