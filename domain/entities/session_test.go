package entities

import (
	"fmt"
	"testing"
)

func TestSessionCreation(t *testing.T) {
	session := NewSession("sess-123", "device-abc")

	if session.ID != "sess-123" {
		t.Errorf("Expected session ID sess-123, got %s", session.ID)
	}

	if session.DeviceID != "device-abc" {
		t.Errorf("Expected device ID device-abc, got %s", session.DeviceID)
	}

	if session.State != StateListening {
		t.Errorf("Expected initial state %s, got %s", StateListening, session.State)
	}

	if len(session.Context) != 0 {
		t.Errorf("Expected empty context, got %d messages", len(session.Context))
	}

	if session.ActiveUtteranceID != "" || session.ActiveReplyID != "" {
		t.Error("Expected no active utterance or reply on a fresh session")
	}
}

func TestAppendExchange(t *testing.T) {
	session := NewSession("sess-1", "device-1")

	session.AppendExchange("hello there", "hi, how can I help?", 0)

	if len(session.Context) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(session.Context))
	}

	if session.Context[0].Role != MessageRoleUser {
		t.Errorf("Expected user role, got %s", session.Context[0].Role)
	}

	if session.Context[0].Content != "hello there" {
		t.Errorf("Expected content 'hello there', got %s", session.Context[0].Content)
	}

	if session.Context[1].Role != MessageRoleAssistant {
		t.Errorf("Expected assistant role, got %s", session.Context[1].Role)
	}
}

func TestAppendExchangeEvictsOldest(t *testing.T) {
	session := NewSession("sess-1", "device-1")

	for i := 0; i < 10; i++ {
		session.AppendExchange(
			fmt.Sprintf("user %d", i),
			fmt.Sprintf("assistant %d", i),
			6,
		)
	}

	if len(session.Context) != 6 {
		t.Fatalf("Expected context bounded to 6 messages, got %d", len(session.Context))
	}

	// Oldest entries must be gone; the newest exchange is the last pair.
	if session.Context[0].Content != "user 7" {
		t.Errorf("Expected oldest surviving message 'user 7', got %s", session.Context[0].Content)
	}

	last := session.Context[len(session.Context)-1]
	if last.Content != "assistant 9" {
		t.Errorf("Expected newest message 'assistant 9', got %s", last.Content)
	}
}

func TestSessionValidate(t *testing.T) {
	session := NewSession("sess-1", "device-1")
	if err := session.Validate(); err != nil {
		t.Errorf("Expected valid session, got error: %v", err)
	}

	session.ID = ""
	if err := session.Validate(); err == nil {
		t.Error("Expected error for missing session id")
	}

	session.ID = "sess-1"
	session.State = State("daydreaming")
	if err := session.Validate(); err == nil {
		t.Error("Expected error for invalid state")
	}
}

func TestUtteranceLifecycle(t *testing.T) {
	u := &Utterance{ID: "utt-1", SessionID: "sess-1", Status: UtteranceOpen}

	u.Close()
	if u.Status != UtteranceClosed {
		t.Errorf("Expected status %s, got %s", UtteranceClosed, u.Status)
	}
	if u.EndedAt.IsZero() {
		t.Error("Expected EndedAt to be set on close")
	}

	cancelled := &Utterance{ID: "utt-2", SessionID: "sess-1", Status: UtteranceOpen}
	cancelled.Cancel()
	if cancelled.Status != UtteranceCancelled {
		t.Errorf("Expected status %s, got %s", UtteranceCancelled, cancelled.Status)
	}
}
