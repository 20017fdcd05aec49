package webtool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/harpou/ai-gateway/pkg/errors"
)

// SearchResult is one hit from the search engine.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type searxResponse struct {
	Results []SearchResult `json:"results"`
}

// SearxClient queries a SearXNG instance over its JSON API.
type SearxClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewSearxClient creates a search client for the given SearXNG base URL.
func NewSearxClient(baseURL string, logger *zap.Logger) *SearxClient {
	return &SearxClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With(zap.String("component", "searx-client")),
	}
}

// Search runs a web search and returns the raw result list.
func (c *SearxClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if c.baseURL == "" {
		return nil, apperrors.NewConfigMissingError("searxng_base_url is not configured")
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&format=json", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("build search request", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Running web search", zap.String("query", query))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewConnectionFailedError("search engine unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperrors.NewUpstreamError(resp.StatusCode, string(body))
	}

	var parsed searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewInternalError("decode search response", err)
	}
	return parsed.Results, nil
}
