// Package chatwoot wraps the Chatwoot REST API calls issued by the
// bridge: posting outgoing messages, toggling conversation status, and
// storing conversation custom attributes.
//
// Calls are best-effort from the webhook handler's point of view:
// errors are returned so the handler can record the outcome, but they
// never fail the inbound acknowledgment. Response bodies are consumed
// only for logging.
package chatwoot

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

	"github.com/ConvoBridge/ConvoBridge/internal/models"
)

// DefaultTimeout bounds each outbound Chatwoot call.
const DefaultTimeout = 10 * time.Second

// maxLoggedBody caps how much of a Chatwoot response body is read for logging.
const maxLoggedBody = 4 << 10

// Service defines the Chatwoot operations the webhook handler depends on.
type Service interface {
	// PostMessage posts an outgoing message into a conversation.
	// Private messages are internal notes visible only to human agents.
	PostMessage(ctx context.Context, account, conversation int, content string, private bool) error

	// SetStatus toggles a conversation's status.
	SetStatus(ctx context.Context, account, conversation int, status string) error

	// SetCustomAttributes merges attributes into a conversation's
	// custom-attribute store. Empty values are dropped; an empty set
	// issues no HTTP call.
	SetCustomAttributes(ctx context.Context, account, conversation int, attrs map[string]any) error
}

// Client implements Service against a Chatwoot instance.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Service = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for Chatwoot calls.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout overrides the default per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// NewClient creates a Chatwoot client for the given instance URL and
// API access token.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("chatwoot: base URL is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("chatwoot: API access token is required")
	}

	client := &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// PostMessage posts an outgoing message into the conversation.
func (c *Client) PostMessage(ctx context.Context, account, conversation int, content string, private bool) error {
	payload := map[string]any{
		"content":      content,
		"message_type": models.MessageTypeOutgoing,
		"private":      private,
	}
	path := fmt.Sprintf("/api/v1/accounts/%d/conversations/%d/messages", account, conversation)
	return c.post(ctx, path, payload)
}

// SetStatus toggles the conversation status.
func (c *Client) SetStatus(ctx context.Context, account, conversation int, status string) error {
	payload := map[string]any{"status": status}
	path := fmt.Sprintf("/api/v1/accounts/%d/conversations/%d/toggle_status", account, conversation)
	return c.post(ctx, path, payload)
}

// SetCustomAttributes merges the given attributes into the
// conversation's custom-attribute store.
func (c *Client) SetCustomAttributes(ctx context.Context, account, conversation int, attrs map[string]any) error {
	filtered := filterAttributes(attrs)
	if len(filtered) == 0 {
		slog.Debug("Client.SetCustomAttributes: no attributes to store, skipping call", "account", account, "conversation", conversation)
		return nil
	}
	payload := map[string]any{"custom_attributes": filtered}
	path := fmt.Sprintf("/api/v1/accounts/%d/conversations/%d/custom_attributes", account, conversation)
	return c.post(ctx, path, payload)
}

// filterAttributes drops nil and empty-string values so the remote
// store is never polluted with blanks.
func filterAttributes(attrs map[string]any) map[string]any {
	filtered := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		filtered[k] = v
	}
	return filtered
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("chatwoot: marshal payload for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chatwoot: build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chatwoot: %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("Client.post: Chatwoot returned non-2xx", "path", path, "status", resp.StatusCode, "body", string(raw))
		return fmt.Errorf("chatwoot: %s returned status %d", path, resp.StatusCode)
	}

	slog.Debug("Client.post: Chatwoot call issued", "path", path, "status", resp.StatusCode, "response_bytes", len(raw))
	return nil
}
