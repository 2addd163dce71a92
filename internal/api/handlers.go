// Package api provides the HTTP handlers for ConvoBridge endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ConvoBridge/ConvoBridge/internal/dialogflow"
	"github.com/ConvoBridge/ConvoBridge/internal/enrich"
	"github.com/ConvoBridge/ConvoBridge/internal/models"
)

// callOutcome records the result of one best-effort Chatwoot call so
// failures stay visible in logs and in the acknowledgment body instead
// of being silently discarded.
type callOutcome struct {
	Call  string `json:"call"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func outcomeFor(call string, err error) callOutcome {
	if err != nil {
		return callOutcome{Call: call, Error: err.Error()}
	}
	return callOutcome{Call: call, OK: true}
}

// processResult is what one eligible event produced.
type processResult struct {
	outcomes []callOutcome
	agentErr error
}

func (r processResult) failed() []callOutcome {
	var failed []callOutcome
	for _, o := range r.outcomes {
		if !o.OK {
			failed = append(failed, o)
		}
	}
	return failed
}

// webhookHandler receives Chatwoot message_created events (POST /chatwoot-webhook).
//
// The acknowledgment is always 200 once the payload passes validation:
// downstream failures are logged and surfaced in the body, never as an
// HTTP error, so the Chatwoot dispatcher does not retry-storm the
// endpoint.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	eventID := uuid.NewString()
	slog.Debug("Server.webhookHandler: processing webhook delivery", "method", r.Method, "path", r.URL.Path, "event_id", eventID)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var event models.InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		slog.Warn("Server.webhookHandler: failed to decode JSON", "error", err, "event_id", eventID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid request data"))
		return
	}
	if err := event.Validate(); err != nil {
		slog.Warn("Server.webhookHandler: validation failed", "error", err, "event_id", eventID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid request data"))
		return
	}

	if !event.Eligible() {
		slog.Debug("Server.webhookHandler: ignoring ineligible event",
			"message_type", event.MessageType,
			"conversation_status", event.ConversationStatus(),
			"has_sender", event.Sender != nil,
			"event_id", eventID)
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
		return
	}

	result := s.process(r.Context(), eventID, &event)

	switch {
	case result.agentErr != nil:
		// Known gap in the source design closed here: the dispatcher
		// still gets a success acknowledgment, the failure lives in logs.
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("agent query failed, no reply sent", nil))
	case len(result.failed()) > 0:
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("processed with delivery errors", result.failed()))
	default:
		writeJSONResponse(w, http.StatusOK, models.Success(nil))
	}
}

// process runs the bridging sequence for one eligible event while
// holding the conversation lock: enrichment check-and-set, the agent
// query, then the reply or escalation calls, strictly in order.
func (s *Server) process(ctx context.Context, eventID string, event *models.InboundEvent) processResult {
	conversation := event.ConversationID()
	account := event.AccountID()

	unlock := s.locks.Lock(conversation)
	defer unlock()

	text := event.Content
	contact := models.ContactFromEvent(event)
	var result processResult

	if enrich.ShouldEnrich(event.CustomAttributes()) {
		if extra := enrich.Text(contact); extra != "" {
			text += extra
		}
		err := s.helpdesk.SetCustomAttributes(ctx, account, conversation, map[string]any{models.EnrichmentFlagKey: true})
		result.outcomes = append(result.outcomes, outcomeFor("set_custom_attributes", err))
		if err != nil {
			// The latch stays unset on Chatwoot's side; a later message
			// may enrich again. Accepted over blocking the reply.
			slog.Error("Server.process: failed to latch enrichment flag", "error", err, "conversation", conversation, "event_id", eventID)
		} else {
			slog.Debug("Server.process: contact metadata injected", "conversation", conversation, "event_id", eventID)
		}
	}

	sessionID := dialogflow.SessionID(event.Sender.ID)
	agentResult, err := s.agent.DetectIntent(ctx, sessionID, text, contact, event.BrowserAttributes())
	if err != nil {
		slog.Error("Server.process: Dialogflow query failed", "error", err, "session_id", sessionID, "conversation", conversation, "event_id", eventID)
		result.agentErr = err
		return result
	}

	if agentResult.ShouldEscalate {
		err := s.helpdesk.PostMessage(ctx, account, conversation, agentResult.ReplyText, true)
		result.outcomes = append(result.outcomes, outcomeFor("post_private_message", err))
		if err != nil {
			slog.Error("Server.process: failed to post private note", "error", err, "conversation", conversation, "event_id", eventID)
		}

		err = s.helpdesk.SetStatus(ctx, account, conversation, models.StatusOpen)
		result.outcomes = append(result.outcomes, outcomeFor("toggle_status", err))
		if err != nil {
			slog.Error("Server.process: failed to open conversation", "error", err, "conversation", conversation, "event_id", eventID)
		}

		slog.Info("Server.process: conversation escalated to a human agent", "conversation", conversation, "session_id", sessionID, "event_id", eventID)
		return result
	}

	err = s.helpdesk.PostMessage(ctx, account, conversation, agentResult.ReplyText, false)
	result.outcomes = append(result.outcomes, outcomeFor("post_message", err))
	if err != nil {
		slog.Error("Server.process: failed to post reply", "error", err, "conversation", conversation, "event_id", eventID)
	} else {
		slog.Info("Server.process: reply posted", "conversation", conversation, "session_id", sessionID, "event_id", eventID)
	}
	return result
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
