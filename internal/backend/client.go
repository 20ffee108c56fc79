// Package backend is the HTTP client for the widget verification, config,
// session and message endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gamersumit/chatlite-widget/internal/domain"
)

// DefaultTimeout bounds every backend call. A call that exceeds it fails
// the same way a transport error does.
const DefaultTimeout = 10 * time.Second

// Client talks to the widget backend. All methods are safe for concurrent
// use and honor context cancellation in addition to the per-call timeout.
type Client struct {
	baseURL string
	httpc   *http.Client
	timeout time.Duration
}

// NewClient returns a client rooted at baseURL (including any /api/v1
// style prefix). A non-positive timeout falls back to DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// StatusResponse is the widget status endpoint payload.
type StatusResponse struct {
	VerificationStatus string `json:"verification_status"`
	Status             string `json:"status"`
}

// Ready reports whether the widget is verified and active.
func (s *StatusResponse) Ready() bool {
	return s.VerificationStatus == domain.VerificationVerified && s.Status == domain.WidgetActive
}

// WidgetStatus fetches the verification/activation status of a widget.
func (c *Client) WidgetStatus(ctx context.Context, widgetID string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/widget/"+url.PathEscape(widgetID)+"/status", nil, &out); err != nil {
		return nil, fmt.Errorf("widget status: %w", err)
	}
	return &out, nil
}

// VerifyRequest carries the embedding context of a verification attempt.
type VerifyRequest struct {
	Domain    string `json:"domain"`
	Mode      string `json:"mode"`
	PageURL   string `json:"page_url"`
	UserAgent string `json:"user_agent"`
}

// VerifyResponse reports the verification outcome.
type VerifyResponse struct {
	Verified bool `json:"verified"`
}

// VerifyWidget submits a domain verification attempt for a widget.
func (c *Client) VerifyWidget(ctx context.Context, widgetID string, req VerifyRequest) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.do(ctx, http.MethodPost, "/widget/verify/"+url.PathEscape(widgetID), req, &out); err != nil {
		return nil, fmt.Errorf("verify widget: %w", err)
	}
	return &out, nil
}

// ConfigResponse is the widget config endpoint payload.
type ConfigResponse struct {
	IsVerified bool                 `json:"is_verified"`
	IsActive   bool                 `json:"is_active"`
	Config     *domain.WidgetConfig `json:"config"`
}

// WidgetConfig fetches backend-stored widget configuration. Standalone
// embeddings are the only consumer; embedded mode never calls it.
func (c *Client) WidgetConfig(ctx context.Context, widgetID string) (*ConfigResponse, error) {
	var out ConfigResponse
	if err := c.do(ctx, http.MethodGet, "/widget/config/"+url.PathEscape(widgetID), nil, &out); err != nil {
		return nil, fmt.Errorf("widget config: %w", err)
	}
	return &out, nil
}

// SessionRequest carries visitor and page context for session creation.
type SessionRequest struct {
	WidgetID  string `json:"widget_id"`
	VisitorID string `json:"visitor_id"`
	PageURL   string `json:"page_url"`
	PageTitle string `json:"page_title"`
	UserAgent string `json:"user_agent"`
	Referrer  string `json:"referrer"`
}

// SessionResponse carries the backend-issued session identifier.
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

// CreateSession opens a chat session for a visitor.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.do(ctx, http.MethodPost, "/widget/session", req, &out); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &out, nil
}

// MessageRequest carries one outgoing chat message.
type MessageRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	VisitorID string `json:"visitor_id"`
	PageURL   string `json:"page_url"`
	PageTitle string `json:"page_title"`
	UserAgent string `json:"user_agent"`
}

// MessageResponse carries the assistant reply for a sent message.
type MessageResponse struct {
	MessageID string `json:"message_id"`
	Response  string `json:"response"`
}

// SendMessage delivers a visitor message and returns the assistant reply.
func (c *Client) SendMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, "/widget/message", req, &out); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		// Drain a little of the body for diagnostics without trusting it.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, string(snippet))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
