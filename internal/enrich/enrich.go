// Package enrich decides when known contact facts are injected into
// the outgoing Dialogflow query text, and renders them.
//
// Injection happens at most once per conversation: the webhook handler
// checks ShouldEnrich against the conversation custom attributes and
// latches the flag through the Chatwoot client afterwards.
package enrich

import (
	"strings"

	"github.com/ConvoBridge/ConvoBridge/internal/models"
	"github.com/ConvoBridge/ConvoBridge/internal/util"
)

// ShouldEnrich reports whether contact facts still need to be sent for
// the conversation carrying the given custom attributes.
func ShouldEnrich(customAttributes map[string]any) bool {
	return !util.Truthy(customAttributes[models.EnrichmentFlagKey])
}

// Text renders the present contact fields as short natural-language
// clauses in a fixed order: name, then phone, then email. Absent
// fields produce no clause. The clauses are in the same language the
// Dialogflow agent is queried in.
func Text(contact models.ContactInfo) string {
	var b strings.Builder
	if contact.ContactName != "" {
		b.WriteString(" Meu nome é " + contact.ContactName + " ")
	}
	if contact.ContactPhone != "" {
		b.WriteString(" Meu telefone é " + contact.ContactPhone + " ")
	}
	if contact.Email != "" {
		b.WriteString(" Meu email é " + contact.Email + " ")
	}
	return b.String()
}
