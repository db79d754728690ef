// Package telegram отправляет текстовые сообщения через Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultAPIURL адрес Bot API.
const DefaultAPIURL = "https://api.telegram.org"

var (
	// ErrUnavailable Bot API недоступен или ограничил частоту; отправку можно повторить.
	ErrUnavailable = errors.New("telegram api unavailable")
	// ErrRejected сообщение отклонено окончательно, например бот заблокирован пользователем.
	ErrRejected = errors.New("telegram api rejected message")
)

// Client клиент Bot API.
type Client struct {
	token      string
	apiURL     string
	httpClient *http.Client
}

// Option настраивает Client.
type Option func(*Client)

// WithAPIURL задает адрес API.
func WithAPIURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.apiURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient создает клиент для бота с токеном token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:      token,
		apiURL:     DefaultAPIURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// SendMessage отправляет текст в чат chatID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	const op = "telegram.SendMessage"

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/bot"+c.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var res apiResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&res)
	switch {
	case resp.StatusCode == http.StatusOK && decodeErr == nil && res.OK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		if res.Parameters != nil && res.Parameters.RetryAfter > 0 {
			return fmt.Errorf("%s: %w: retry after %ds", op, ErrUnavailable, res.Parameters.RetryAfter)
		}
		return fmt.Errorf("%s: %w: unexpected status %s", op, ErrUnavailable, resp.Status)
	case decodeErr != nil:
		return fmt.Errorf("%s: %w: decode response: %v", op, ErrUnavailable, decodeErr)
	default:
		return fmt.Errorf("%s: %w: %d %s", op, ErrRejected, res.ErrorCode, res.Description)
	}
}
