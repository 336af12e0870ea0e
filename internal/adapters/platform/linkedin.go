package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"social-pilot/internal/domain"
	"social-pilot/internal/infra/metrics"
)

// LinkedIn выгружает историю постов через LinkedIn API.
type LinkedIn struct {
	baseURL    *url.URL
	httpClient *http.Client
}

var _ domain.HistoricalDataProvider = (*LinkedIn)(nil)

// NewLinkedIn создаёт клиента LinkedIn.
func NewLinkedIn(baseURL string, timeout time.Duration) (*LinkedIn, error) {
	parsed, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LinkedIn{baseURL: parsed, httpClient: &http.Client{Timeout: timeout}}, nil
}

type linkedInPostsResponse struct {
	Elements []struct {
		CreatedAt  int64 `json:"createdAt"`
		Engagement struct {
			Likes    int `json:"likes"`
			Comments int `json:"comments"`
			Shares   int `json:"shares"`
		} `json:"engagement"`
	} `json:"elements"`
}

// HistoricalData возвращает посты аккаунта с суммарной вовлечённостью.
func (c *LinkedIn) HistoricalData(ctx context.Context, accessToken string) ([]domain.HistoricalPost, error) {
	endpoint := c.baseURL.ResolveReference(&url.URL{Path: "/v2/posts", RawQuery: "count=100"})
	body, err := doGet(ctx, c.httpClient, endpoint, accessToken, "linkedin")
	if err != nil {
		return nil, err
	}

	var parsed linkedInPostsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	posts := make([]domain.HistoricalPost, 0, len(parsed.Elements))
	for _, el := range parsed.Elements {
		engagement := el.Engagement.Likes + el.Engagement.Comments + el.Engagement.Shares
		posts = append(posts, domain.HistoricalPost{
			CreatedAt:       time.UnixMilli(el.CreatedAt).UTC(),
			EngagementCount: engagement,
		})
	}
	return posts, nil
}

func parseBaseURL(baseURL string) (*url.URL, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	return parsed, nil
}

func doGet(ctx context.Context, client *http.Client, endpoint *url.URL, accessToken, component string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	start := time.Now()
	resp, err := client.Do(req)
	metrics.ObserveNetworkRequest(component, "historical_data", endpoint.Path, start, err)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s returned status %d: %s", component, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return io.ReadAll(resp.Body)
}
