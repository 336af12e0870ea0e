package accounts

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

const tokenCacheTTL = 5 * time.Minute

// Client запрашивает токены доступа у сервиса аккаунтов.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	cache      domain.Cache
}

var _ domain.TokenResolver = (*Client)(nil)

// New создаёт клиента сервиса аккаунтов. Кэш опционален.
func New(baseURL string, timeout time.Duration, cache domain.Cache) (*Client, error) {
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
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// AccessToken возвращает токен доступа аккаунта, используя кэш.
func (c *Client) AccessToken(ctx context.Context, accountID uuid.UUID) (string, error) {
	cacheKey := "account_token:" + accountID.String()
	if c.cache != nil {
		if cached, err := c.cache.Get(cacheKey); err == nil && len(cached) > 0 {
			return string(cached), nil
		}
	}

	endpoint := c.baseURL.ResolveReference(&url.URL{Path: fmt.Sprintf("/api/v1/accounts/%s/token", accountID)})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("accounts", "get_token", "accounts", start, err)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("token request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("empty access token for account %s", accountID)
	}

	if c.cache != nil {
		_ = c.cache.Set(cacheKey, []byte(parsed.AccessToken), tokenCacheTTL)
	}
	return parsed.AccessToken, nil
}
