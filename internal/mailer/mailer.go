package mailer

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
)

var (
	// ErrDeliveryFailed is wrapped by every provider rejection
	ErrDeliveryFailed = errors.New("email delivery failed")
	// ErrNotConfigured is returned when the client has no API key or sender
	ErrNotConfigured = errors.New("mailer is not configured")
)

// DefaultAPIURL is the Resend send endpoint
const DefaultAPIURL = "https://api.resend.com/emails"

// Config describes the outbound email provider
type Config struct {
	APIURL      string
	APIKey      string
	FromAddress string
	FromName    string
	// RateLimit is the number of sends per second, zero means unlimited
	RateLimit  float64
	Burst      int
	HTTPClient *http.Client
}

// APIError is a non-2xx answer from the provider
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mailer: provider answered %d - %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return ErrDeliveryFailed }

// Temporary reports whether retrying the same request may succeed
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client sends transactional emails through a Resend-compatible HTTP API
type Client struct {
	url     string
	apiKey  string
	from    string
	http    *http.Client
	limiter *rate.Limiter
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type errorBody struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

// New builds a Client from cfg
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.FromAddress == "" {
		return nil, ErrNotConfigured
	}

	url := cfg.APIURL
	if url == "" {
		url = DefaultAPIURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	from := cfg.FromAddress
	if name := strings.TrimSpace(cfg.FromName); name != "" {
		from = fmt.Sprintf("%s <%s>", name, cfg.FromAddress)
	}

	return &Client{
		url:     url,
		apiKey:  cfg.APIKey,
		from:    from,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

// Deliver sends one email. The idempotency key lets the provider drop
// repeated sends of the same notification.
func (c *Client) Deliver(ctx context.Context, to, subject, html, idempotencyKey string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mailer: %w - rate limiter", err)
	}

	body, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("mailer: %w - encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mailer: %w - build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mailer: %w - %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Message != "" {
		msg = eb.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
