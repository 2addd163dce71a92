package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ConvoBridge/ConvoBridge/internal/models"
	"github.com/ConvoBridge/ConvoBridge/internal/testutil"
)

func serveWebhook(t *testing.T, srv http.Handler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/chatwoot-webhook", body)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func eligibleEvent() map[string]interface{} {
	return map[string]interface{}{
		"message_type": "incoming",
		"content":      "Oi",
		"conversation": map[string]interface{}{
			"id":                42,
			"status":            "pending",
			"custom_attributes": map[string]interface{}{},
		},
		"sender":  map[string]interface{}{"id": 7, "name": "Ana"},
		"account": map[string]interface{}{"id": 1},
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	server, _, _ := testutil.NewTestServer()

	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/chatwoot-webhook", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "GET webhook")
}

func TestWebhookMissingContent(t *testing.T) {
	server, helpdesk, agent := testutil.NewTestServer()

	rr := serveWebhook(t, server.Handler(), map[string]interface{}{
		"message_type": "incoming",
		"sender":       map[string]interface{}{"id": 7},
	})

	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing content")
	if got := strings.TrimSpace(rr.Body.String()); got != `{"status":"error","message":"Invalid request data"}` {
		t.Errorf("unexpected error body: %s", got)
	}
	if len(helpdesk.Calls) != 0 || len(agent.Queries) != 0 {
		t.Error("expected no remote calls for invalid event")
	}
}

func TestWebhookMalformedJSON(t *testing.T) {
	server, _, _ := testutil.NewTestServer()

	req := httptest.NewRequest(http.MethodPost, "/chatwoot-webhook", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "malformed JSON")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestWebhookIgnoresIneligibleEvents(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"outgoing message", func(e map[string]interface{}) { e["message_type"] = "outgoing" }},
		{"missing sender", func(e map[string]interface{}) { delete(e, "sender") }},
		{"conversation open", func(e map[string]interface{}) {
			e["conversation"].(map[string]interface{})["status"] = "open"
		}},
		{"missing conversation", func(e map[string]interface{}) { delete(e, "conversation") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server, helpdesk, agent := testutil.NewTestServer()

			event := eligibleEvent()
			tc.mutate(event)
			rr := serveWebhook(t, server.Handler(), event)

			testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, tc.name)
			testutil.AssertJSONResponse(t, rr, "success")
			if len(helpdesk.Calls) != 0 {
				t.Errorf("expected no helpdesk calls, got %v", helpdesk.Ops())
			}
			if len(agent.Queries) != 0 {
				t.Errorf("expected no agent queries, got %d", len(agent.Queries))
			}
		})
	}
}

func TestWebhookEndToEndScenario(t *testing.T) {
	server, helpdesk, agent := testutil.NewTestServer()
	agent.Result = models.AgentResult{ReplyText: "Olá!"}

	rr := serveWebhook(t, server.Handler(), eligibleEvent())

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "end to end")
	if got := strings.TrimSpace(rr.Body.String()); got != `{"status":"success"}` {
		t.Errorf("unexpected acknowledgment body: %s", got)
	}

	// Enrichment attribute call latches the flag on conversation 42.
	ops := helpdesk.Ops()
	if len(ops) != 2 || ops[0] != "set_custom_attributes" || ops[1] != "post_message" {
		t.Fatalf("unexpected helpdesk calls: %v", ops)
	}
	attrCall := helpdesk.Calls[0]
	if attrCall.Conversation != 42 || attrCall.Account != 1 {
		t.Errorf("attribute call targeted account %d conversation %d", attrCall.Account, attrCall.Conversation)
	}
	if attrCall.Attrs[models.EnrichmentFlagKey] != true {
		t.Errorf("expected enrichment flag true, got %v", attrCall.Attrs)
	}

	// The agent received the enriched text under the sender's session.
	if len(agent.Queries) != 1 {
		t.Fatalf("expected 1 agent query, got %d", len(agent.Queries))
	}
	query := agent.Queries[0]
	if query.SessionID != "session_7" {
		t.Errorf("session id = %q, want session_7", query.SessionID)
	}
	if query.Text != "Oi Meu nome é Ana " {
		t.Errorf("query text = %q, want %q", query.Text, "Oi Meu nome é Ana ")
	}

	// The reply went back as a public outgoing message.
	reply := helpdesk.Calls[1]
	if reply.Conversation != 42 || reply.Content != "Olá!" || reply.Private {
		t.Errorf("unexpected reply call: %+v", reply)
	}
}

func TestWebhookEnrichmentRunsAtMostOnce(t *testing.T) {
	server, helpdesk, agent := testutil.NewTestServer()

	event := eligibleEvent()
	event["conversation"].(map[string]interface{})["custom_attributes"] = map[string]interface{}{
		models.EnrichmentFlagKey: true,
	}
	event["sender"] = map[string]interface{}{
		"id": 7, "name": "Ana", "phone_number": "+5511999", "email": "a@b.com",
	}
	serveWebhook(t, server.Handler(), event)

	for _, op := range helpdesk.Ops() {
		if op == "set_custom_attributes" {
			t.Error("expected no attribute-update call when flag already set")
		}
	}
	if got := agent.Queries[0].Text; got != "Oi" {
		t.Errorf("expected unenriched text %q, got %q", "Oi", got)
	}
}

func TestWebhookEnrichmentClauseOrdering(t *testing.T) {
	server, _, agent := testutil.NewTestServer()

	event := eligibleEvent()
	event["sender"] = map[string]interface{}{
		"id": 7, "name": "Ana", "phone_number": "+5511999", "email": "a@b.com",
	}
	serveWebhook(t, server.Handler(), event)

	text := agent.Queries[0].Text
	wantSuffix := " Meu nome é Ana  Meu telefone é +5511999  Meu email é a@b.com "
	if !strings.HasSuffix(text, wantSuffix) {
		t.Errorf("enriched text %q does not end with %q", text, wantSuffix)
	}
	for _, clause := range []string{"Meu nome é", "Meu telefone é", "Meu email é"} {
		if strings.Count(text, clause) != 1 {
			t.Errorf("expected clause %q exactly once in %q", clause, text)
		}
	}
}

func TestWebhookEscalationRouting(t *testing.T) {
	server, helpdesk, agent := testutil.NewTestServer()
	agent.Result = models.AgentResult{ReplyText: "Vou te transferir.", ShouldEscalate: true}

	event := eligibleEvent()
	event["conversation"].(map[string]interface{})["custom_attributes"] = map[string]interface{}{
		models.EnrichmentFlagKey: true,
	}
	rr := serveWebhook(t, server.Handler(), event)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "escalation")

	ops := helpdesk.Ops()
	if len(ops) != 2 || ops[0] != "post_message" || ops[1] != "set_status" {
		t.Fatalf("unexpected call sequence: %v", ops)
	}

	note := helpdesk.Calls[0]
	if !note.Private {
		t.Error("escalation reply must be a private note")
	}
	if note.Content != "Vou te transferir." {
		t.Errorf("unexpected note content %q", note.Content)
	}

	toggle := helpdesk.Calls[1]
	if toggle.Status != models.StatusOpen {
		t.Errorf("status = %q, want %q", toggle.Status, models.StatusOpen)
	}
}

func TestWebhookNonEscalationRouting(t *testing.T) {
	server, helpdesk, agent := testutil.NewTestServer()
	agent.Result = models.AgentResult{ReplyText: "Olá!"}

	event := eligibleEvent()
	event["conversation"].(map[string]interface{})["custom_attributes"] = map[string]interface{}{
		models.EnrichmentFlagKey: true,
	}
	serveWebhook(t, server.Handler(), event)

	ops := helpdesk.Ops()
	if len(ops) != 1 || ops[0] != "post_message" {
		t.Fatalf("unexpected call sequence: %v", ops)
	}
	if helpdesk.Calls[0].Private {
		t.Error("reply must be public")
	}
}

func TestWebhookAgentFailureStillAcknowledged(t *testing.T) {
	server, helpdesk, agent := testutil.NewTestServer()
	agent.Err = errTest

	event := eligibleEvent()
	event["conversation"].(map[string]interface{})["custom_attributes"] = map[string]interface{}{
		models.EnrichmentFlagKey: true,
	}
	rr := serveWebhook(t, server.Handler(), event)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "agent failure")
	response := testutil.AssertJSONResponse(t, rr, "success")
	if response["message"] == nil {
		t.Error("expected acknowledgment message noting the failure")
	}
	if len(helpdesk.Calls) != 0 {
		t.Errorf("expected no helpdesk calls after agent failure, got %v", helpdesk.Ops())
	}
}

func TestWebhookHelpdeskFailureSurfacedInAck(t *testing.T) {
	server, helpdesk, agent := testutil.NewTestServer()
	agent.Result = models.AgentResult{ReplyText: "Olá!"}
	helpdesk.Err = errTest

	rr := serveWebhook(t, server.Handler(), eligibleEvent())

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "helpdesk failure")
	response := testutil.AssertJSONResponse(t, rr, "success")
	failed, ok := response["result"].([]interface{})
	if !ok || len(failed) == 0 {
		t.Errorf("expected failed call outcomes in result, got %v", response["result"])
	}
}

func TestHealthHandler(t *testing.T) {
	server, _, _ := testutil.NewTestServer()

	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	testutil.AssertJSONResponse(t, rr, "healthy")
}

var errTest = errTestType{}

type errTestType struct{}

func (errTestType) Error() string { return "remote call failed" }
