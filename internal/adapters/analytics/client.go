package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"social-pilot/internal/domain"
	"social-pilot/internal/infra/metrics"
)

// Client запрашивает RAG-контекст у аналитического сервиса.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

var _ domain.ContextSource = (*Client)(nil)

// New создаёт клиента аналитического сервиса.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: parsed, httpClient: &http.Client{Timeout: timeout}}, nil
}

// RelevantContext возвращает тексты ближайших прошлых постов аккаунта.
func (c *Client) RelevantContext(ctx context.Context, accountID uuid.UUID, query string) ([]string, error) {
	endpoint := c.baseURL.ResolveReference(&url.URL{
		Path:     fmt.Sprintf("/api/v1/analytics/rag/context/%s", accountID),
		RawQuery: url.Values{"query": {query}}.Encode(),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("analytics", "rag_context", "analytics", start, err)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("context request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var contexts []string
	if err := json.NewDecoder(resp.Body).Decode(&contexts); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return contexts, nil
}
