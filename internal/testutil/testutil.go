// Package testutil provides common test utilities and helpers for ConvoBridge tests.
//
// It centralizes the fakes for the two remote services so handler and
// bootstrap tests share one set of doubles.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ConvoBridge/ConvoBridge/internal/api"
	"github.com/ConvoBridge/ConvoBridge/internal/chatwoot"
	"github.com/ConvoBridge/ConvoBridge/internal/dialogflow"
	"github.com/ConvoBridge/ConvoBridge/internal/models"
)

// HelpdeskCall records one operation issued against the fake Chatwoot client.
type HelpdeskCall struct {
	Op           string
	Account      int
	Conversation int
	Content      string
	Private      bool
	Status       string
	Attrs        map[string]any
}

// FakeHelpdesk implements chatwoot.Service and records every call.
type FakeHelpdesk struct {
	mu    sync.Mutex
	Calls []HelpdeskCall
	// Err, when set, is returned from every operation.
	Err error
}

var _ chatwoot.Service = (*FakeHelpdesk)(nil)

func (f *FakeHelpdesk) PostMessage(ctx context.Context, account, conversation int, content string, private bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, HelpdeskCall{Op: "post_message", Account: account, Conversation: conversation, Content: content, Private: private})
	return f.Err
}

func (f *FakeHelpdesk) SetStatus(ctx context.Context, account, conversation int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, HelpdeskCall{Op: "set_status", Account: account, Conversation: conversation, Status: status})
	return f.Err
}

func (f *FakeHelpdesk) SetCustomAttributes(ctx context.Context, account, conversation int, attrs map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, HelpdeskCall{Op: "set_custom_attributes", Account: account, Conversation: conversation, Attrs: attrs})
	return f.Err
}

// Ops returns the operation names in call order.
func (f *FakeHelpdesk) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		ops[i] = c.Op
	}
	return ops
}

// AgentQuery records one detect-intent call issued against the fake agent.
type AgentQuery struct {
	SessionID string
	Text      string
	Contact   models.ContactInfo
	Browser   map[string]any
}

// FakeAgent implements dialogflow.Service with a canned result.
type FakeAgent struct {
	mu      sync.Mutex
	Queries []AgentQuery
	Result  models.AgentResult
	Err     error
}

var _ dialogflow.Service = (*FakeAgent)(nil)

func (f *FakeAgent) DetectIntent(ctx context.Context, sessionID, text string, contact models.ContactInfo, browser map[string]any) (models.AgentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queries = append(f.Queries, AgentQuery{SessionID: sessionID, Text: text, Contact: contact, Browser: browser})
	if f.Err != nil {
		return models.AgentResult{}, f.Err
	}
	return f.Result, nil
}

// NewTestServer creates a test API server wired to fresh fakes.
func NewTestServer() (*api.Server, *FakeHelpdesk, *FakeAgent) {
	helpdesk := &FakeHelpdesk{}
	agent := &FakeAgent{Result: models.AgentResult{ReplyText: "Olá!"}}
	return api.NewServer(helpdesk, agent), helpdesk, agent
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}
