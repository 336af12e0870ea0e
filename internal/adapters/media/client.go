package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"social-pilot/internal/domain"
	"social-pilot/internal/infra/metrics"
)

const maxMediaBytes = 20 << 20

// Client скачивает медиафайлы из медиасервиса.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

var _ domain.MediaFetcher = (*Client)(nil)

// New создаёт клиента медиасервиса.
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
		timeout = 15 * time.Second
	}
	return &Client{baseURL: parsed, httpClient: &http.Client{Timeout: timeout}}, nil
}

// Download скачивает файл. Не-2xx статус или пустое тело считаются ошибкой.
func (c *Client) Download(ctx context.Context, mediaID uuid.UUID) (domain.MediaAttachment, error) {
	endpoint := c.baseURL.ResolveReference(&url.URL{Path: fmt.Sprintf("/api/v1/media/%s/download", mediaID)})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return domain.MediaAttachment{}, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("media", "download", "media", start, err)
	if err != nil {
		return domain.MediaAttachment{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.MediaAttachment{}, fmt.Errorf("media service returned status %d for %s", resp.StatusCode, mediaID)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return domain.MediaAttachment{}, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return domain.MediaAttachment{}, fmt.Errorf("media service returned empty body for %s", mediaID)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return domain.MediaAttachment{Data: data, MimeType: mimeType}, nil
}
