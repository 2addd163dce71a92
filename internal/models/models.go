// Package models defines the core data structures for ConvoBridge.
//
// It includes the typed Chatwoot webhook event schema, the contact
// metadata value object, and the normalized Dialogflow query result,
// which are shared across modules.
package models

import "errors"

// Conversation status values this service reads or writes. Chatwoot
// defines more, but the bridge only handles pending conversations and
// only ever moves them to open.
const (
	StatusPending = "pending"
	StatusOpen    = "open"
)

// Message type values on Chatwoot messages.
const (
	MessageTypeIncoming = "incoming"
	MessageTypeOutgoing = "outgoing"
)

// EnrichmentFlagKey is the conversation custom attribute used as a
// one-time latch: once truthy, contact metadata is never injected into
// the query text for that conversation again.
const EnrichmentFlagKey = "user_meta_sent_dialogflow"

// Error variables for better error handling and testability
var (
	ErrMissingContent = errors.New("missing required field: content")
)

// Sender identifies the contact that authored an inbound message.
type Sender struct {
	ID          int    `json:"id"`
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Conversation carries the subset of the Chatwoot conversation object
// the bridge inspects.
type Conversation struct {
	ID                   int            `json:"id"`
	Status               string         `json:"status,omitempty"`
	CustomAttributes     map[string]any `json:"custom_attributes,omitempty"`
	AdditionalAttributes map[string]any `json:"additional_attributes,omitempty"`
}

// Account identifies the Chatwoot account the event belongs to.
type Account struct {
	ID int `json:"id"`
}

// InboundEvent is a Chatwoot webhook notification payload. Only
// Content is required; every nested field is optional and accessed
// through nil-safe helpers.
type InboundEvent struct {
	Event        string        `json:"event,omitempty"`
	Content      string        `json:"content"`
	MessageType  string        `json:"message_type,omitempty"`
	Private      bool          `json:"private,omitempty"`
	Sender       *Sender       `json:"sender,omitempty"`
	Conversation *Conversation `json:"conversation,omitempty"`
	Account      *Account      `json:"account,omitempty"`
}

// Validate checks the minimal well-formedness requirement for a
// webhook payload.
func (e *InboundEvent) Validate() error {
	if e.Content == "" {
		return ErrMissingContent
	}
	return nil
}

// Eligible reports whether the event is an inbound user message in a
// bot-owned conversation. Outbound echoes, events without a sender,
// and conversations already handed to a human are all ignored.
func (e *InboundEvent) Eligible() bool {
	if e.MessageType != MessageTypeIncoming {
		return false
	}
	if e.Sender == nil || e.Sender.ID == 0 {
		return false
	}
	return e.ConversationStatus() == StatusPending
}

// ConversationID returns the conversation identifier, or 0 when absent.
func (e *InboundEvent) ConversationID() int {
	if e.Conversation == nil {
		return 0
	}
	return e.Conversation.ID
}

// ConversationStatus returns the conversation status, or "" when absent.
func (e *InboundEvent) ConversationStatus() string {
	if e.Conversation == nil {
		return ""
	}
	return e.Conversation.Status
}

// AccountID returns the account identifier, or 0 when absent.
func (e *InboundEvent) AccountID() int {
	if e.Account == nil {
		return 0
	}
	return e.Account.ID
}

// CustomAttributes returns the conversation custom attribute map, or
// nil when absent.
func (e *InboundEvent) CustomAttributes() map[string]any {
	if e.Conversation == nil {
		return nil
	}
	return e.Conversation.CustomAttributes
}

// BrowserAttributes returns the free-form browser metadata attached to
// the conversation, or nil when absent.
func (e *InboundEvent) BrowserAttributes() map[string]any {
	if e.Conversation == nil {
		return nil
	}
	browser, ok := e.Conversation.AdditionalAttributes["browser"].(map[string]any)
	if !ok {
		return nil
	}
	return browser
}

// ContactInfo is the read-only contact identity assembled per event.
// It enriches the outgoing query text once per conversation and
// populates the query parameters sent to Dialogflow on every turn.
type ContactInfo struct {
	ContactID    int
	ContactName  string
	ContactPhone string
	Email        string
}

// ContactFromEvent assembles ContactInfo from the event sender.
func ContactFromEvent(e *InboundEvent) ContactInfo {
	if e.Sender == nil {
		return ContactInfo{}
	}
	return ContactInfo{
		ContactID:    e.Sender.ID,
		ContactName:  e.Sender.Name,
		ContactPhone: e.Sender.PhoneNumber,
		Email:        e.Sender.Email,
	}
}

// Params renders the contact as Dialogflow query parameters, dropping
// absent fields.
func (c ContactInfo) Params() map[string]any {
	params := make(map[string]any)
	if c.ContactID != 0 {
		params["contact_id"] = c.ContactID
	}
	if c.ContactName != "" {
		params["contact_name"] = c.ContactName
	}
	if c.ContactPhone != "" {
		params["contact_phone"] = c.ContactPhone
	}
	if c.Email != "" {
		params["email"] = c.Email
	}
	return params
}

// AgentResult is the normalized outcome of a Dialogflow query.
type AgentResult struct {
	ReplyText      string
	ShouldEscalate bool
}
