// Package stripecheckout creates Stripe Checkout sessions and polls their
// payment status. Stripe hosts the payment page; the session url returned on
// creation is where the customer is sent.
package stripecheckout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourorg/checkout-gateway/internal/gateway"
	"github.com/yourorg/checkout-gateway/internal/gateway/circuitbreaker"
)

const (
	Name      = "stripecheckout"
	RouteName = "PaymentStripeCheckout"

	// DefaultBaseURL is the public Stripe API.
	DefaultBaseURL  = "https://api.stripe.com"
	DefaultCurrency = "usd"

	sessionsPath  = "/v1/checkout/sessions"
	paymentStatus = "paid"
	maxBodyBytes  = 1 << 20
)

var hundred = decimal.NewFromInt(100)

// Config holds the per-installation credentials.
type Config struct {
	SecretKey string
	Currency  string // lower-cased before use, DefaultCurrency when empty
	BaseURL   string // DefaultBaseURL when empty
}

// Validate reports the missing settings as a wrapped gateway.ErrNotConfigured.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return gateway.NotConfigured(Name, "apiSecretKey")
	}
	return nil
}

// Session is the subset of a Checkout Session the gateway reads.
type Session struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
}

// Paid reports whether Stripe considers the session paid.
func (s Session) Paid() bool { return s.PaymentStatus == paymentStatus }

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the Stripe Checkout API.
type Client struct {
	cfg        Config
	baseURL    string
	currency   string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

// Option customizes a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// NewClient builds a client from cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	c := &Client{
		cfg:        cfg,
		baseURL:    base,
		currency:   currency,
		httpClient: &http.Client{Timeout: gateway.RequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements gateway.Gateway.
func (c *Client) Name() string { return Name }

// Currency is the lower-cased currency sessions are created in.
func (c *Client) Currency() string { return c.currency }

// CreateSession opens a one-line-item payment session for amount. productName
// is shown to the customer on the Stripe page.
func (c *Client) CreateSession(ctx context.Context, orderGUID uuid.UUID, amount decimal.Decimal, productName, storeLocation string) (Session, error) {
	if err := c.cfg.Validate(); err != nil {
		return Session{}, err
	}
	if !amount.IsPositive() {
		return Session{}, fmt.Errorf("%s: amount must be positive, got %s", Name, amount.String())
	}
	successURL, cancelURL := gateway.ReturnURLs(storeLocation, RouteName, orderGUID)

	form := url.Values{}
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", c.currency)
	form.Set("line_items[0][price_data][product_data][name]", productName)
	form.Set("line_items[0][price_data][unit_amount_decimal]", amount.Mul(hundred).String())
	form.Set("line_items[0][quantity]", "1")

	var s Session
	err := gateway.Call(ctx, Name, "create_session", c.breaker, func(ctx context.Context) error {
		return c.do(ctx, "create_session", http.MethodPost, sessionsPath, form, &s)
	})
	if err != nil {
		return Session{}, err
	}
	if s.ID == "" || s.URL == "" {
		return Session{}, &gateway.TransportError{Gateway: Name, Op: "create_session", Err: fmt.Errorf("response carries no session id or url")}
	}
	return s, nil
}

// GetSession fetches a session by id.
func (c *Client) GetSession(ctx context.Context, id string) (Session, error) {
	if err := c.cfg.Validate(); err != nil {
		return Session{}, err
	}
	var s Session
	err := gateway.Call(ctx, Name, "get_session", c.breaker, func(ctx context.Context) error {
		return c.do(ctx, "get_session", http.MethodGet, sessionsPath+"/"+url.PathEscape(id), nil, &s)
	})
	return s, err
}

// SessionPaid polls the session once.
func (c *Client) SessionPaid(ctx context.Context, id string) (bool, error) {
	s, err := c.GetSession(ctx, id)
	if err != nil {
		return false, err
	}
	return s.Paid(), nil
}

// CreateTransaction implements gateway.Gateway.
func (c *Client) CreateTransaction(ctx context.Context, req gateway.CreateRequest) (gateway.Transaction, error) {
	s, err := c.CreateSession(ctx, req.OrderGUID, req.Amount, req.Reason, req.ReturnBaseURL)
	if err != nil {
		return gateway.Transaction{}, err
	}
	return gateway.Transaction{ID: s.ID, RedirectURL: s.URL}, nil
}

// Finalize implements gateway.Gateway. Stripe captures on its own, so the
// session only has to report paid.
func (c *Client) Finalize(ctx context.Context, transactionID string) error {
	paid, err := c.SessionPaid(ctx, transactionID)
	if err != nil {
		return err
	}
	if !paid {
		return gateway.ErrNotPaid
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, form url.Values, out *Session) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %s: failed to create http request: %w", Name, op, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("User-Agent", gateway.UserAgent)
	req.SetBasicAuth(c.cfg.SecretKey, "")
	gateway.InjectTraceHeaders(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &gateway.TransportError{Gateway: Name, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &gateway.TransportError{Gateway: Name, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		if jsonErr := json.Unmarshal(raw, &er); jsonErr == nil && er.Error.Message != "" {
			return &gateway.TransportError{Gateway: Name, Op: op, StatusCode: resp.StatusCode, Err: errors.New(er.Error.Message)}
		}
		return &gateway.TransportError{Gateway: Name, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(raw)))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &gateway.TransportError{Gateway: Name, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
