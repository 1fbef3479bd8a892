// Package gateway, клиент внешнего платёжного шлюза: создание заказов
// и проверка подписи платежа, вернувшегося из окна оплаты.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/policy-summarizer/internal/models"
)

// DefaultAPIURL адрес API шлюза по умолчанию.
const DefaultAPIURL = "https://api.razorpay.com/v1"

var (
	// ErrGatewayUnavailable шлюз недоступен или ответил ошибкой.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrInvalidOrder некорректная сумма или валюта заказа.
	ErrInvalidOrder = errors.New("invalid order parameters")
)

// Client клиент REST API шлюза.
type Client struct {
	keyID      string
	keySecret  string
	apiURL     string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient создаёт клиента. Пустой apiURL заменяется адресом по умолчанию,
// нулевой timeout, десятью секундами.
func NewClient(keyID, keySecret, apiURL string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		keyID:      keyID,
		keySecret:  keySecret,
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// KeyID возвращает публичный идентификатор ключа для инициализации оплаты на клиенте.
func (c *Client) KeyID() string {
	return c.keyID
}

func validCurrency(currency string) bool {
	if len(currency) != 3 {
		return false
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// CreateOrder создаёт заказ на amountMinor минимальных единиц валюты.
func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, currency string) (*models.Order, error) {
	const op = "gateway.CreateOrder"
	if amountMinor <= 0 || !validCurrency(currency) {
		return nil, fmt.Errorf("%s: %w: amount=%d currency=%q", op, ErrInvalidOrder, amountMinor, currency)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/orders", orderRequest{
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  "receipt_order_" + strconv.FormatInt(c.now().UnixNano(), 10),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrGatewayUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var apiErr errorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(body, &apiErr)
		return nil, fmt.Errorf("%s: %w: status %d %s %s", op, ErrGatewayUnavailable,
			resp.StatusCode, apiErr.Error.Code, apiErr.Error.Description)
	}

	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("%s: %w: decode: %w", op, ErrGatewayUnavailable, err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%s: %w: empty order id", op, ErrGatewayUnavailable)
	}

	return &models.Order{
		ID:       order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Receipt:  order.Receipt,
		Status:   order.Status,
	}, nil
}
