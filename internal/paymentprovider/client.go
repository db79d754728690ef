// Package paymentprovider реализует клиент REST API v3 ЮKassa:
// создание платежа с подтверждением через redirect и получение платежа по id.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultAPIURL адрес API ЮKassa.
const DefaultAPIURL = "https://api.yookassa.ru/v3"

var (
	// ErrUnavailable шлюз недоступен или ответил 5xx; запрос можно повторить.
	ErrUnavailable = errors.New("payment gateway unavailable")
	// ErrNotFound платеж неизвестен шлюзу.
	ErrNotFound = errors.New("payment not found in gateway")
	// ErrRejected шлюз отклонил запрос.
	ErrRejected = errors.New("payment gateway rejected request")
)

// Client клиент ЮKassa с Basic-аутентификацией магазина.
type Client struct {
	shopID     string
	secretKey  string
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

// NewClient создаёт новый клиент ЮKassa
func NewClient(shopID, secretKey string, opts ...Option) *Client {
	c := &Client{
		shopID:     shopID,
		secretKey:  secretKey,
		apiURL:     DefaultAPIURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, buf)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// CreatePayment создает платеж. Повтор с тем же idempotencyKey возвращает тот же платеж.
func (c *Client) CreatePayment(ctx context.Context, reqParams CreatePaymentRequest, idempotencyKey string) (*Payment, error) {
	const op = "paymentprovider.CreatePayment"
	req, err := c.newRequest(ctx, http.MethodPost, "/payments", reqParams)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Idempotence-Key", idempotencyKey)

	p, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetPayment возвращает актуальное состояние платежа.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	const op = "paymentprovider.GetPayment"
	if paymentID == "" {
		return nil, fmt.Errorf("%s: empty payment id: %w", op, ErrNotFound)
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/payments/"+paymentID, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func (c *Client) do(req *http.Request) (*Payment, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: unexpected status %s", ErrUnavailable, resp.Status)
	default:
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("%w: %s %s: %s", ErrRejected, resp.Status, apiErr.Code, apiErr.Description)
	}

	var p Payment
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return &p, nil
}
