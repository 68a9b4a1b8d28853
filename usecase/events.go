package usecase

import (
	"time"

	"github.com/satriahrh/wicara/domain/entities"
)

// EventType defines the type of an outbound pipeline event
type EventType string

// Supported outbound event types
const (
	EventTranscript EventType = "transcript"
	EventReplyChunk EventType = "reply_chunk"
	EventAudioChunk EventType = "audio_chunk"
	EventError      EventType = "error"
	EventState      EventType = "state"
)

// ErrorCode identifies the recoverable failure class behind an error event
type ErrorCode string

const (
	ErrorTranscriptionFailure ErrorCode = "transcription_failure"
	ErrorGenerationFailure    ErrorCode = "generation_failure"
	ErrorSynthesisFailure     ErrorCode = "synthesis_failure"
)

// Event is one outbound record for the transport. The orchestrator run
// loop is the only producer, which is what guarantees the per-utterance
// ordering transcript* -> reply_chunk* -> audio_chunk*. Fields beyond
// Type are set per event kind; Data marshals to base64 in JSON.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp string    `json:"timestamp"`

	// transcript
	Text    string `json:"text,omitempty"`
	IsFinal bool   `json:"is_final,omitempty"`

	// audio_chunk
	Data []byte `json:"data,omitempty"`

	// error
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`

	// state
	Value entities.State `json:"value,omitempty"`

	// lineage, stamped at publication
	UtteranceID string `json:"utterance_id,omitempty"`
	ReplyID     string `json:"reply_id,omitempty"`
	Seq         int    `json:"seq,omitempty"`
}

func eventTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func newTranscriptEvent(t entities.Transcript) Event {
	return Event{
		Type:        EventTranscript,
		Timestamp:   eventTimestamp(),
		Text:        t.Text,
		IsFinal:     t.IsFinal,
		UtteranceID: t.UtteranceID,
	}
}

func newReplyChunkEvent(c entities.ReplyChunk) Event {
	return Event{
		Type:      EventReplyChunk,
		Timestamp: eventTimestamp(),
		Text:      c.Text,
		ReplyID:   c.ReplyID,
		Seq:       c.Seq,
	}
}

func newAudioChunkEvent(c entities.AudioChunk) Event {
	return Event{
		Type:      EventAudioChunk,
		Timestamp: eventTimestamp(),
		Data:      c.Data,
		IsFinal:   c.IsFinal,
		ReplyID:   c.ReplyID,
		Seq:       c.Seq,
	}
}

func newErrorEvent(code ErrorCode, message string) Event {
	return Event{
		Type:      EventError,
		Timestamp: eventTimestamp(),
		Code:      code,
		Message:   message,
	}
}

func newStateEvent(state entities.State) Event {
	return Event{
		Type:      EventState,
		Timestamp: eventTimestamp(),
		Value:     state,
	}
}
