// Package dialogflow wraps detect-intent calls against a Dialogflow CX
// agent over its REST API.
//
// Each Chatwoot contact maps to one Dialogflow session, so the remote
// agent keeps multi-turn context per contact. The structured query
// result is normalized into a (reply text, escalate) pair; everything
// else Dialogflow returns is ignored.
package dialogflow

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

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ConvoBridge/ConvoBridge/internal/models"
)

const (
	// LanguageCode is the fixed query language. The deployment serves a
	// single locale; per-user localization is a known simplification.
	LanguageCode = "pt-br"

	// FallbackReply is sent when the agent produced no response messages.
	FallbackReply = "Desculpe, não entendi."

	// DefaultTimeout bounds each detect-intent call.
	DefaultTimeout = 30 * time.Second

	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
)

// Service defines the detect-intent operation the webhook handler depends on.
type Service interface {
	DetectIntent(ctx context.Context, sessionID, text string, contact models.ContactInfo, browser map[string]any) (models.AgentResult, error)
}

// Client implements Service against the Dialogflow CX v3 REST API.
type Client struct {
	project    string
	location   string
	agent      string
	baseURL    string
	httpClient *http.Client
}

var _ Service = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the regional Dialogflow endpoint (tests point
// this at a local server).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the authenticated HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTokenSource builds the HTTP client from an explicit oauth2 token source.
func WithTokenSource(ctx context.Context, ts oauth2.TokenSource) Option {
	return func(c *Client) {
		c.httpClient = oauth2.NewClient(ctx, ts)
	}
}

// NewClient creates a Dialogflow CX client for the fixed
// project/location/agent identity. Unless overridden by options,
// credentials are resolved the standard Google way (honoring
// GOOGLE_APPLICATION_CREDENTIALS) and the regional REST endpoint is
// derived from the location.
func NewClient(ctx context.Context, project, location, agent string, opts ...Option) (*Client, error) {
	if project == "" || location == "" || agent == "" {
		return nil, errors.New("dialogflow: project, location and agent are all required")
	}

	c := &Client{
		project:  project,
		location: location,
		agent:    agent,
		baseURL:  fmt.Sprintf("https://%s-dialogflow.googleapis.com", location),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		ts, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("dialogflow: load Google credentials: %w", err)
		}
		c.httpClient = oauth2.NewClient(ctx, ts)
	}
	if c.httpClient.Timeout == 0 {
		c.httpClient.Timeout = DefaultTimeout
	}
	return c, nil
}

// SessionID derives the stable session identifier for a Chatwoot
// sender. Same sender, same session, across all calls.
func SessionID(senderID int) string {
	return fmt.Sprintf("session_%d", senderID)
}

// SessionPath builds the full resource name of a session.
func (c *Client) SessionPath(sessionID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/agents/%s/sessions/%s", c.project, c.location, c.agent, sessionID)
}

// Wire shapes for the detectIntent REST call.

type detectIntentRequest struct {
	QueryInput  queryInput   `json:"queryInput"`
	QueryParams *queryParams `json:"queryParams,omitempty"`
}

type queryInput struct {
	Text         textInput `json:"text"`
	LanguageCode string    `json:"languageCode"`
}

type textInput struct {
	Text string `json:"text"`
}

type queryParams struct {
	Parameters                map[string]any `json:"parameters,omitempty"`
	EndUserMetadata           map[string]any `json:"endUserMetadata,omitempty"`
	AnalyzeQueryTextSentiment bool           `json:"analyzeQueryTextSentiment"`
}

type detectIntentResponse struct {
	QueryResult queryResult `json:"queryResult"`
}

type queryResult struct {
	ResponseMessages []responseMessage `json:"responseMessages,omitempty"`
	Parameters       map[string]any    `json:"parameters,omitempty"`
}

type responseMessage struct {
	Text           *messageText `json:"text,omitempty"`
	EndInteraction *struct{}    `json:"endInteraction,omitempty"`
}

type messageText struct {
	Text []string `json:"text,omitempty"`
}

// DetectIntent submits one text query to the agent and normalizes the
// result. The contact and browser metadata are sent both as query
// parameters and as end-user metadata: the agent's flow logic reads
// the former, personalization layers read the latter, and neither slot
// is known to be redundant.
func (c *Client) DetectIntent(ctx context.Context, sessionID, text string, contact models.ContactInfo, browser map[string]any) (models.AgentResult, error) {
	meta := contact.Params()
	if len(browser) > 0 {
		meta["browser"] = browser
	}

	reqBody := detectIntentRequest{
		QueryInput: queryInput{
			Text:         textInput{Text: text},
			LanguageCode: LanguageCode,
		},
		QueryParams: &queryParams{
			Parameters:                meta,
			EndUserMetadata:           meta,
			AnalyzeQueryTextSentiment: true,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return models.AgentResult{}, fmt.Errorf("dialogflow: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v3/%s:detectIntent", c.baseURL, c.SessionPath(sessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.AgentResult{}, fmt.Errorf("dialogflow: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.AgentResult{}, fmt.Errorf("dialogflow: detect intent: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.AgentResult{}, fmt.Errorf("dialogflow: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.AgentResult{}, fmt.Errorf("dialogflow: detect intent returned status %d: %s", resp.StatusCode, truncate(raw, 512))
	}

	var parsed detectIntentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return models.AgentResult{}, fmt.Errorf("dialogflow: decode response: %w", err)
	}
	return normalize(parsed.QueryResult), nil
}

// normalize applies the reply-text derivation rules: the first text
// segment of the first response message wins; with no response
// messages at all, an execution_summary parameter overrides the fixed
// fallback. Escalation is signaled by endInteraction on the first
// response message.
func normalize(qr queryResult) models.AgentResult {
	if len(qr.ResponseMessages) == 0 {
		reply := FallbackReply
		if summary, ok := qr.Parameters["execution_summary"].(string); ok && summary != "" {
			reply = summary
		}
		return models.AgentResult{ReplyText: reply}
	}

	first := qr.ResponseMessages[0]
	reply := FallbackReply
	if first.Text != nil && len(first.Text.Text) > 0 {
		reply = first.Text.Text[0]
	}
	return models.AgentResult{
		ReplyText:      reply,
		ShouldEscalate: first.EndInteraction != nil,
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
