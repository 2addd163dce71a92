package testutil

import (
	"context"
	"testing"

	"github.com/ConvoBridge/ConvoBridge/internal/models"
)

func TestFakeHelpdeskRecordsCallOrder(t *testing.T) {
	fake := &FakeHelpdesk{}
	ctx := context.Background()

	if err := fake.SetCustomAttributes(ctx, 1, 42, map[string]any{"k": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := fake.PostMessage(ctx, 1, 42, "Olá!", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := fake.SetStatus(ctx, 1, 42, models.StatusOpen); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ops := fake.Ops()
	want := []string{"set_custom_attributes", "post_message", "set_status"}
	if len(ops) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(ops))
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, ops[i], want[i])
		}
	}
}

func TestFakeAgentRecordsQueries(t *testing.T) {
	fake := &FakeAgent{Result: models.AgentResult{ReplyText: "Olá!"}}

	result, err := fake.DetectIntent(context.Background(), "session_7", "Oi", models.ContactInfo{ContactID: 7}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ReplyText != "Olá!" {
		t.Errorf("unexpected reply %q", result.ReplyText)
	}
	if len(fake.Queries) != 1 || fake.Queries[0].SessionID != "session_7" {
		t.Errorf("unexpected recorded queries: %+v", fake.Queries)
	}
}
