// Package exchange talks to the license issuing service.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/larriantoniy/tg_license_bot/internal/domain"
)

type Client struct {
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewClient создаёт клиента; timeout ограничивает весь запрос целиком
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		baseURL: baseURL,
	}
}

// Exchange posts the device token and day count once. Failures come back as
// *TransportError or *ProtocolError; there is no retry.
func (c *Client) Exchange(ctx context.Context, req domain.ExchangeRequest) (*domain.ExchangeResponse, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("exchange request", "url", c.baseURL, "days", req.Days)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "post", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read body", Err: err}
	}
	text := string(data)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProtocolError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, domain.Truncate(text, bodyPreview)),
		}
	}

	out, err := domain.ParseExchangeResponse(data)
	if err != nil {
		return nil, &ProtocolError{
			StatusCode: resp.StatusCode,
			Message:    "invalid JSON: " + domain.Truncate(text, bodyPreview),
			Err:        err,
		}
	}

	c.logger.Debug("exchange response", "status", resp.StatusCode, "ok", out.OK)
	return out, nil
}
