// File: internal/tools/search.go
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/loom/api/schemas"
	"github.com/xkilldash9x/loom/internal/config"
)

const searchImageName = "search_image"

const defaultSearchEndpoint = "https://www.googleapis.com/customsearch/v1"

// SearchImage finds one inspiration image for a topic via the Custom Search
// JSON API. The tool result is the first image hit's URL.
type SearchImage struct {
	cfg        config.SearchConfig
	httpClient *http.Client
	log        *zap.Logger
}

func NewSearchImage(cfg config.SearchConfig, logger *zap.Logger) *SearchImage {
	return &SearchImage{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: logger.Named("tools.search_image"),
	}
}

func (s *SearchImage) Declaration() schemas.ToolDeclaration {
	return schemas.ToolDeclaration{
		Name:        searchImageName,
		Description: "Search the web for one inspiration image matching a topic and return its URL.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "The topic to find an inspiration image for."}
			},
			"required": ["query"]
		}`),
	}
}

type searchImageArgs struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Items []struct {
		Link  string `json:"link"`
		Title string `json:"title"`
	} `json:"items"`
}

func (s *SearchImage) Call(ctx context.Context, args []byte) (string, error) {
	var parsed searchImageArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(parsed.Query) == "" {
		return "", fmt.Errorf("query is required")
	}

	endpoint := s.cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultSearchEndpoint
	}

	params := url.Values{}
	params.Set("key", s.cfg.APIKey)
	params.Set("cx", s.cfg.EngineID)
	params.Set("searchType", "image")
	params.Set("num", "1")
	params.Set("q", parsed.Query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("building search request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding search response: %w", err)
	}
	if len(result.Items) == 0 {
		return "", fmt.Errorf("no image results for %q", parsed.Query)
	}

	s.log.Info("Found inspiration image",
		zap.String("query", parsed.Query),
		zap.String("url", result.Items[0].Link),
	)
	return result.Items[0].Link, nil
}

var _ schemas.Tool = (*SearchImage)(nil)
