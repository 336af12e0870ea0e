package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"social-pilot/internal/domain"
)

// Twitter выгружает историю постов через Twitter API.
type Twitter struct {
	baseURL    *url.URL
	httpClient *http.Client
}

var _ domain.HistoricalDataProvider = (*Twitter)(nil)

// NewTwitter создаёт клиента Twitter.
func NewTwitter(baseURL string, timeout time.Duration) (*Twitter, error) {
	parsed, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Twitter{baseURL: parsed, httpClient: &http.Client{Timeout: timeout}}, nil
}

type twitterTimelineResponse struct {
	Data []struct {
		CreatedAt     time.Time `json:"created_at"`
		PublicMetrics struct {
			LikeCount    int `json:"like_count"`
			ReplyCount   int `json:"reply_count"`
			RetweetCount int `json:"retweet_count"`
			QuoteCount   int `json:"quote_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

// HistoricalData возвращает твиты аккаунта с суммарной вовлечённостью.
func (c *Twitter) HistoricalData(ctx context.Context, accessToken string) ([]domain.HistoricalPost, error) {
	endpoint := c.baseURL.ResolveReference(&url.URL{
		Path:     "/2/users/me/tweets",
		RawQuery: "max_results=100&tweet.fields=created_at,public_metrics",
	})
	body, err := doGet(ctx, c.httpClient, endpoint, accessToken, "twitter")
	if err != nil {
		return nil, err
	}

	var parsed twitterTimelineResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	posts := make([]domain.HistoricalPost, 0, len(parsed.Data))
	for _, tweet := range parsed.Data {
		metricsSum := tweet.PublicMetrics.LikeCount + tweet.PublicMetrics.ReplyCount +
			tweet.PublicMetrics.RetweetCount + tweet.PublicMetrics.QuoteCount
		posts = append(posts, domain.HistoricalPost{
			CreatedAt:       tweet.CreatedAt.UTC(),
			EngagementCount: metricsSum,
		})
	}
	return posts, nil
}
