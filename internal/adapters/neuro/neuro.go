// Package neuro generates LLM auto-replies through an OpenRouter-compatible API.
package neuro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/larriantoniy/tg_license_bot/internal/config"
	"github.com/larriantoniy/tg_license_bot/internal/domain"
)

const (
	retryAttempts = 3
	retrySleep    = time.Second
	maxTokens     = 200
)

var errEmptyChoices = errors.New("empty choices")

type Neuro struct {
	client  *http.Client
	logger  *slog.Logger
	baseURL string // https://openrouter.ai/api/v1/chat/completions
	apiKey  string
	model   string
	prompt  string
	sleep   time.Duration
}

func NewNeuro(cfg config.AutoReplyConfig, logger *slog.Logger) *Neuro {
	model := cfg.Model
	if model == "" {
		model = domain.DefaultNeuroModel
	}
	return &Neuro{
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
		baseURL: cfg.URL,
		apiKey:  cfg.Token,
		model:   model,
		prompt:  cfg.Prompt,
		sleep:   retrySleep,
	}
}

func retry(ctx context.Context, attempts int, sleep time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return err
}

func (n *Neuro) GetReply(ctx context.Context, msg *domain.Message) (string, error) {
	body := domain.NeuroRequest{
		Model:     n.model,
		MaxTokens: maxTokens,
		Messages: []domain.NeuroMessage{
			{Role: domain.RoleSystem, Content: n.prompt},
			{Role: domain.RoleUser, Content: msg.Text},
		},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}

	var nr domain.NeuroResponse
	err = retry(ctx, retryAttempts, n.sleep, func() error {
		// запрос собираем заново: тело читается один раз
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL, bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+n.apiKey)

		resp, err := n.client.Do(req)
		if err != nil {
			n.logger.Error("HTTP request to neuro failed", "err", err)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(resp.Body)
			n.logger.Error("Neuro API returned error",
				"status", resp.StatusCode,
				"body", domain.Truncate(string(data), 300),
			)
			return fmt.Errorf("status %d: %s", resp.StatusCode, domain.Truncate(string(data), 300))
		}

		return json.NewDecoder(resp.Body).Decode(&nr)
	})
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	if len(nr.Choices) == 0 {
		return "", errEmptyChoices
	}

	n.logger.Debug("After neuro processing", "chat_id", msg.ChatID, "result", nr.Choices[0].Message.Content)

	return nr.Choices[0].Message.Content, nil
}
