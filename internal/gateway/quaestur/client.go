// Package quaestur is the client for the Quaestur payment API: a prepare
// call that opens a payment, a hosted payment page the customer is sent to,
// and a commit call that finalizes the payment after the customer returns.
package quaestur

import (
	"bytes"
	"context"
	"encoding/json"
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

// Name identifies this gateway in logs, metrics and errors.
const Name = "quaestur"

// RouteName is the path segment of the return callbacks.
const RouteName = "PaymentQuaestur"

const (
	preparePath = "/api/v2/payment/prepare"
	commitPath  = "/api/v2/payment/commit"
	showPath    = "/payments/show/"

	statusSuccess = "success"
	maxBodyBytes  = 1 << 20
)

// Config holds the per-installation credentials.
type Config struct {
	APIURL       string
	ClientID     string
	ClientSecret string
}

// Validate reports the missing settings as a wrapped gateway.ErrNotConfigured.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.APIURL) == "" {
		missing = append(missing, "apiUrl")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		missing = append(missing, "apiClientId")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		missing = append(missing, "apiClientSecret")
	}
	if len(missing) > 0 {
		return gateway.NotConfigured(Name, missing...)
	}
	return nil
}

// Client talks to one Quaestur installation.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client, which has a 20 second timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBreaker shares a circuit breaker between clients built for the same API.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// NewClient builds a client. Configuration is validated per call so a
// misconfigured installation fails with ErrNotConfigured before any I/O.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		httpClient: &http.Client{Timeout: gateway.RequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements gateway.Gateway.
func (c *Client) Name() string { return Name }

type prepareRequest struct {
	Amount          json.Number `json:"amount"`
	Reason          string      `json:"reason"`
	URL             string      `json:"url"`
	PayReturnURL    string      `json:"payreturnurl"`
	CancelReturnURL string      `json:"cancelreturnurl"`
}

type commitRequest struct {
	ID string `json:"id"`
}

type apiResponse struct {
	Status string     `json:"status"`
	ID     flexString `json:"id"`
	Error  string     `json:"error"`
}

// flexString accepts either a JSON string or a JSON number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// PrepareTransaction opens a payment of amount for the order and returns the
// Quaestur transaction id. The return URLs carry orderGUID.
func (c *Client) PrepareTransaction(ctx context.Context, orderGUID uuid.UUID, amount decimal.Decimal, reason, detailsURL, storeLocation string) (string, error) {
	if err := c.cfg.Validate(); err != nil {
		return "", err
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("%s: amount must be positive, got %s", Name, amount.String())
	}
	payURL, cancelURL := gateway.ReturnURLs(storeLocation, RouteName, orderGUID)

	var resp apiResponse
	err := gateway.Call(ctx, Name, "prepare", c.breaker, func(ctx context.Context) error {
		return c.post(ctx, "prepare", preparePath, prepareRequest{
			Amount:          json.Number(amount.String()),
			Reason:          reason,
			URL:             detailsURL,
			PayReturnURL:    payURL,
			CancelReturnURL: cancelURL,
		}, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &gateway.TransportError{Gateway: Name, Op: "prepare", Err: fmt.Errorf("response carries no transaction id")}
	}
	return string(resp.ID), nil
}

// CommitTransaction finalizes a prepared transaction.
func (c *Client) CommitTransaction(ctx context.Context, id string) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	return gateway.Call(ctx, Name, "commit", c.breaker, func(ctx context.Context) error {
		var resp apiResponse
		return c.post(ctx, "commit", commitPath, commitRequest{ID: id}, &resp)
	})
}

// PaymentPageURL is the hosted page the customer pays on.
func (c *Client) PaymentPageURL(id string) string {
	return c.baseURL + showPath + url.PathEscape(id)
}

// CreateTransaction implements gateway.Gateway.
func (c *Client) CreateTransaction(ctx context.Context, req gateway.CreateRequest) (gateway.Transaction, error) {
	id, err := c.PrepareTransaction(ctx, req.OrderGUID, req.Amount, req.Reason, req.DetailsURL, req.ReturnBaseURL)
	if err != nil {
		return gateway.Transaction{}, err
	}
	return gateway.Transaction{ID: id, RedirectURL: c.PaymentPageURL(id)}, nil
}

// Finalize implements gateway.Gateway by committing the transaction.
func (c *Client) Finalize(ctx context.Context, transactionID string) error {
	return c.CommitTransaction(ctx, transactionID)
}

// post sends payload as a JSON document. Quaestur expects the form content
// type even though the body is JSON.
func (c *Client) post(ctx context.Context, op, path string, payload any, out *apiResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: %s: failed to encode request: %w", Name, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %s: failed to create http request: %w", Name, op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	req.Header.Set("User-Agent", gateway.UserAgent)
	req.Header.Set("Authorization", fmt.Sprintf("QAPI2 %s %s", c.cfg.ClientID, c.cfg.ClientSecret))
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
		return &gateway.TransportError{Gateway: Name, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(raw)))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &gateway.TransportError{Gateway: Name, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if out.Status != statusSuccess {
		return &gateway.APIError{Gateway: Name, Op: op, Message: "Quaestur API error: " + out.Error}
	}
	return nil
}
