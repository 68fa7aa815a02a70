package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTP posts payloads to a blaster bridge endpoint (ESPHome-style).
type HTTP struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTP creates an HTTP transport with the given request timeout and
// minimum spacing between requests.
func NewHTTP(url string, timeout, minSendInterval time.Duration) *HTTP {
	return &HTTP{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(minSendInterval), 1),
	}
}

// Send posts the payload. Any non-2xx response is an error.
func (t *HTTP) Send(ctx context.Context, payload string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, strings.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", t.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("blaster at %s returned status %d", t.url, resp.StatusCode)
	}

	return nil
}

// Close releases idle connections.
func (t *HTTP) Close() {
	t.client.CloseIdleConnections()
}
