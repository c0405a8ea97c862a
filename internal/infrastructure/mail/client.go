package mail

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

	"golang.org/x/time/rate"

	"IncidentScanner/internal/config"
	"IncidentScanner/internal/infrastructure/retry"
	"IncidentScanner/internal/ports"
)

// ErrMisconfigured is returned when the client lacks an endpoint, key or sender.
var ErrMisconfigured = errors.New("email client misconfigured")

// APIError is a non-2xx answer from the email provider.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("email API error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// HTTPStatus exposes the status code to the retry policy.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// Client posts single-recipient messages to a transactional email API.
type Client struct {
	endpoint string
	apiKey   string
	sender   string
	http     *http.Client
	limiter  *rate.Limiter
	retry    retry.Policy
}

var _ ports.Mailer = (*Client)(nil)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.http = httpClient
	}
}

// WithRateLimit replaces the provider quota limiter.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		c.limiter = newLimiter(perSecond)
	}
}

// NewClient builds a client from configuration.
func NewClient(cfg config.EmailConfig, policy retry.Policy, opts ...ClientOption) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		sender:   cfg.Sender,
		http:     &http.Client{Timeout: timeout},
		limiter:  newLimiter(cfg.RatePerSecond),
		retry:    policy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

type sendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send delivers one message. It waits for the provider quota before each attempt.
func (c *Client) Send(ctx context.Context, email ports.Email) error {
	if c.endpoint == "" || c.apiKey == "" || c.sender == "" {
		return ErrMisconfigured
	}

	body, err := json.Marshal(sendPayload{
		From:    c.sender,
		To:      []string{email.To},
		Subject: email.Subject,
		HTML:    email.HTML,
	})
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		return c.post(ctx, body)
	})
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(payload)),
			Endpoint:   c.endpoint,
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
