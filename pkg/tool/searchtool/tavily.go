// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package searchtool

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/httpclient"
)

// DefaultTavilyURL is the Tavily search endpoint.
const DefaultTavilyURL = "https://api.tavily.com/search"

// Topic filters search results.
type Topic string

const (
	TopicGeneral Topic = "general"
	TopicNews    Topic = "news"
	TopicFinance Topic = "finance"
)

// Valid reports whether t is a known topic.
func (t Topic) Valid() bool {
	switch t {
	case TopicGeneral, TopicNews, TopicFinance:
		return true
	}
	return false
}

// SearchRequest is one web search.
type SearchRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results,omitempty"`
	Topic             Topic  `json:"topic,omitempty"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

// SearchResult is a single hit.
type SearchResult struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content"`
	Score      float64 `json:"score"`
}

// SearchResponse is the body returned by the search API.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// TavilyConfig configures the Tavily client.
type TavilyConfig struct {
	// APIKey is required. Usually read from TAVILY_API_KEY.
	APIKey string

	// BaseURL overrides the endpoint.
	// Default: https://api.tavily.com/search
	BaseURL string

	// HTTPClient defaults to httpclient.New().
	HTTPClient *httpclient.Client
}

// TavilyClient calls the Tavily REST API.
type TavilyClient struct {
	apiKey  string
	baseURL string
	http    *httpclient.Client
}

// NewTavilyClient creates a Tavily client.
func NewTavilyClient(cfg TavilyConfig) (*TavilyClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("tavily API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTavilyURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.New()
	}
	return &TavilyClient{apiKey: cfg.APIKey, baseURL: cfg.BaseURL, http: cfg.HTTPClient}, nil
}

// Search performs a single query.
func (c *TavilyClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL, headers, req, &resp); err != nil {
		return nil, fmt.Errorf("tavily search failed: %w", err)
	}
	return &resp, nil
}

var _ Searcher = (*TavilyClient)(nil)
