// Package branding talks to the caller-identity branding provider: a token
// auth leg followed by a per-call push notification. Both legs are soft
// dependencies; the call proceeds unbranded when either fails.
package branding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// headerRequestID carries the provider-issued request id, present on both
// success and error responses. It is forwarded into the tracker for
// cross-system diagnosis.
const headerRequestID = "X-Forp-Meta-Request-Id"

type Config struct {
	AuthURL   string
	PushURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// AuthResult is the branding provider's token response.
type AuthResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Auth obtains a bearer token. The returned request id is populated whenever
// the provider sent one, including on failures.
func (c *Client) Auth(ctx context.Context) (*AuthResult, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, "", fmt.Errorf("branding: build auth request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.cfg.APIKey)
	req.Header.Set("X-SECRET-KEY", c.cfg.APISecret)
	req.Header.Set("X-SERVICE", "auth")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("branding: auth request failed: %w", err)
	}
	defer resp.Body.Close()

	requestID := resp.Header.Get(headerRequestID)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, requestID, fmt.Errorf("branding: read auth response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, requestID, fmt.Errorf("branding: auth returned %d", resp.StatusCode)
	}

	var out AuthResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, requestID, fmt.Errorf("branding: decode auth response: %w", err)
	}
	if out.Token == "" {
		return &out, requestID, fmt.Errorf("branding: auth succeeded but no token in response")
	}
	return &out, requestID, nil
}

type pushRequest struct {
	ANumber string `json:"aNumber"`
	BNumber string `json:"bNumber"`
}

// Push notifies the provider that a branded call from aNumber to bNumber is
// imminent. Numbers are sent with the '+' prefix the provider requires.
func (c *Client) Push(ctx context.Context, token, aNumber, bNumber string) (json.RawMessage, string, error) {
	payload, err := json.Marshal(pushRequest{
		ANumber: ensurePlusPrefix(aNumber),
		BNumber: ensurePlusPrefix(bNumber),
	})
	if err != nil {
		return nil, "", fmt.Errorf("branding: marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.PushURL, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("branding: build push request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("branding: push request failed: %w", err)
	}
	defer resp.Body.Close()

	requestID := resp.Header.Get(headerRequestID)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, requestID, fmt.Errorf("branding: read push response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, requestID, fmt.Errorf("branding: push returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if len(body) == 0 {
		body = []byte("{}")
	}
	return body, requestID, nil
}

func ensurePlusPrefix(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, "+") {
		return number
	}
	return "+" + number
}
