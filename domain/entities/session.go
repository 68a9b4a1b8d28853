package entities

import (
	"errors"
	"time"
)

// State represents the orchestration state of a session
type State string

const (
	StateListening    State = "listening"
	StateTranscribing State = "transcribing"
	StateGenerating   State = "generating"
	StateSpeaking     State = "speaking"
	StateError        State = "error"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message represents one turn in the conversation context
type Message struct {
	Timestamp time.Time   `json:"timestamp"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
}

// Session represents one connected client's pipeline state.
// It is owned exclusively by the orchestrator run loop; nothing else
// reads or writes it while the session is live.
type Session struct {
	ID                string    `json:"id"`
	DeviceID          string    `json:"device_id"`
	State             State     `json:"state"`
	Context           []Message `json:"context"`
	ActiveUtteranceID string    `json:"active_utterance_id,omitempty"`
	ActiveReplyID     string    `json:"active_reply_id,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	LastActiveAt      time.Time `json:"last_active_at"`
}

// NewSession creates a session in the listening state
func NewSession(id, deviceID string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		DeviceID:     deviceID,
		State:        StateListening,
		Context:      make([]Message, 0),
		StartedAt:    now,
		LastActiveAt: now,
	}
}

// AppendExchange appends a completed user/assistant exchange to the
// context and evicts the oldest messages beyond maxMessages. Called only
// on successful reply completion, never on cancellation or failure.
func (s *Session) AppendExchange(userText, assistantText string, maxMessages int) {
	now := time.Now()
	s.Context = append(s.Context,
		Message{Timestamp: now, Role: MessageRoleUser, Content: userText},
		Message{Timestamp: now, Role: MessageRoleAssistant, Content: assistantText},
	)
	if maxMessages > 0 && len(s.Context) > maxMessages {
		s.Context = s.Context[len(s.Context)-maxMessages:]
	}
	s.LastActiveAt = now
}

// Touch updates the last active timestamp
func (s *Session) Touch() {
	s.LastActiveAt = time.Now()
}

// IdleFor reports how long the session has been inactive
func (s *Session) IdleFor() time.Duration {
	return time.Since(s.LastActiveAt)
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}

	switch s.State {
	case StateListening, StateTranscribing, StateGenerating, StateSpeaking, StateError:
	default:
		return errors.New("invalid session state")
	}

	return nil
}
