// Package voice is the call-control provider adapter: create-call, per-leg
// recording control and recording download, plus the NCCO action types the
// IVR returns from webhooks. No business logic lives here.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx provider response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("voice: provider returned %d: %s", e.Status, e.Body)
}

// IsTransient reports whether an error is worth retrying: transport
// failures, provider auth hiccups, throttling and 5xx. Other API errors are
// permanent.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized, apiErr.Status == http.StatusForbidden:
			return true
		case apiErr.Status == http.StatusTooManyRequests:
			return true
		case apiErr.Status >= 500:
			return true
		default:
			return false
		}
	}
	// Everything else that reached the wire and failed is transport-level.
	return err != nil && !errors.Is(err, context.Canceled)
}

type ClientConfig struct {
	APIBase string
	Timeout time.Duration
}

type Client struct {
	base   string
	tokens *TokenSource
	http   *http.Client
	log    *slog.Logger
}

func NewClient(cfg ClientConfig, tokens *TokenSource, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base:   strings.TrimSuffix(cfg.APIBase, "/"),
		tokens: tokens,
		http:   &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

type Endpoint struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type AdvancedMachineDetection struct {
	Behavior    string `json:"behavior"`
	Mode        string `json:"mode"`
	BeepTimeout int    `json:"beep_timeout"`
}

type CreateCallRequest struct {
	To                       []Endpoint                `json:"to"`
	From                     Endpoint                  `json:"from"`
	RingingTimer             int                       `json:"ringing_timer,omitempty"`
	NCCO                     NCCO                      `json:"ncco,omitempty"`
	AdvancedMachineDetection *AdvancedMachineDetection `json:"advanced_machine_detection,omitempty"`
	EventURL                 []string                  `json:"event_url,omitempty"`
	EventMethod              string                    `json:"event_method,omitempty"`
}

type CreateCallResponse struct {
	UUID             string `json:"uuid"`
	Status           string `json:"status"`
	Direction        string `json:"direction"`
	ConversationUUID string `json:"conversation_uuid"`
}

// CreateCall places one outbound call. Retrying on transient failure is the
// caller's concern.
func (c *Client) CreateCall(ctx context.Context, req CreateCallRequest) (*CreateCallResponse, error) {
	var out CreateCallResponse
	if err := c.do(ctx, http.MethodPost, "/v1/calls", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type StartRecordingRequest struct {
	EventURL     []string `json:"eventUrl,omitempty"`
	Split        string   `json:"split,omitempty"`
	Channels     int      `json:"channels,omitempty"`
	Format       string   `json:"format,omitempty"`
	EndOnSilence int      `json:"endOnSilence,omitempty"`
	EndOnKey     string   `json:"endOnKey,omitempty"`
	TimeOut      int      `json:"timeOut,omitempty"`
}

type StartRecordingResponse struct {
	RecordingUUID string `json:"recording_uuid"`
}

// StartRecording starts a per-leg recording on a live call.
func (c *Client) StartRecording(ctx context.Context, callUUID string, req StartRecordingRequest) (*StartRecordingResponse, error) {
	var out StartRecordingResponse
	path := "/v1/calls/" + callUUID + "/recording"
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopRecording stops the active per-leg recording, if any. Providers do not
// nest recording sessions; stopping when none is active is an API error the
// caller may ignore.
func (c *Client) StopRecording(ctx context.Context, callUUID string) error {
	path := "/v1/calls/" + callUUID + "/recording"
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// DownloadRecording fetches a finished artifact by the URL the recording
// webhook announced. The provider requires the same application JWT.
func (c *Client) DownloadRecording(ctx context.Context, recordingURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("voice: build download request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice: download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("voice: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("voice: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("voice: %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("voice: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("voice: decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) error {
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
