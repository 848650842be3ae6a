// Package payment talks to the Razorpay orders API.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/printstore/internal/domain"
	"github.com/joao-fontenele/printstore/internal/pricing"
)

const DefaultBaseURL = "https://api.razorpay.com"

var (
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidCurrency = errors.New("currency must be a 3-letter code")
)

type Config struct {
	BaseURL         string
	KeyID           string
	KeySecret       string
	DefaultCurrency string
}

type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	currency   string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	currency := cfg.DefaultCurrency
	if currency == "" {
		currency = "INR"
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
		currency:   currency,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Order is the gateway's record of a pending payment. Amounts are in minor
// units.
type Order struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
}

type GatewayError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Step        string `json:"step"`
	Reason      string `json:"reason"`
}

func (e *GatewayError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	return fmt.Sprintf("payment gateway returned status %d", e.StatusCode)
}

func (c *Client) PublicKey() string {
	return c.keyID
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// CreateOrder mints a gateway order for amount. An empty currency falls back
// to the configured default. Nothing is retried.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string) (*Order, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	currency, err := c.normalizeCurrency(currency)
	if err != nil {
		return nil, err
	}

	receipt, err := NewReceipt(c.now())
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(createOrderRequest{
		Amount:   pricing.MinorUnits(amount),
		Currency: currency,
		Receipt:  receipt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	var order Order
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) FetchOrder(ctx context.Context, id string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(id), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// VerifySignature checks the signature the hosted checkout returns on success.
func (c *Client) VerifySignature(proof domain.PaymentProof) bool {
	expected := Sign(c.keySecret, proof.GatewayOrderID, proof.PaymentID)
	return hmac.Equal([]byte(expected), []byte(proof.Signature))
}

// Sign computes hex(HMAC-SHA256(secret, orderID|paymentID)).
func Sign(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewReceipt returns a unique receipt id so retried requests never collide
// with an earlier gateway order.
func NewReceipt(now time.Time) (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate receipt: %w", err)
	}
	return fmt.Sprintf("rcpt_%d_%s", now.UnixMilli(), hex.EncodeToString(b)), nil
}

func (c *Client) normalizeCurrency(currency string) (string, error) {
	if currency == "" {
		return c.currency, nil
	}
	if len(currency) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range currency {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return "", ErrInvalidCurrency
		}
	}
	return strings.ToUpper(currency), nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call payment gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read payment gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := &GatewayError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *GatewayError `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error != nil {
			envelope.Error.StatusCode = resp.StatusCode
			gwErr = envelope.Error
		}
		return gwErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payment gateway response: %w", err)
	}
	return nil
}
