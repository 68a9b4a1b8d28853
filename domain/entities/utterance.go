package entities

import "time"

// UtteranceStatus represents the lifecycle state of an utterance
type UtteranceStatus string

const (
	UtteranceOpen      UtteranceStatus = "open"
	UtteranceClosed    UtteranceStatus = "closed"
	UtteranceCancelled UtteranceStatus = "cancelled"
)

// AudioFrame is one inbound chunk of audio bytes with its arrival order.
// Frames are immutable once received; the frame buffer owns them until
// the VAD consumes them.
type AudioFrame struct {
	Seq        uint64
	Data       []byte
	ReceivedAt time.Time
}

// Utterance is one contiguous span of user speech, bounded by detected
// silence or an explicit end signal. At most one utterance is open per
// session at any time.
type Utterance struct {
	ID        string
	SessionID string
	Status    UtteranceStatus
	Audio     []byte
	StartedAt time.Time
	EndedAt   time.Time
}

// Close marks the utterance closed
func (u *Utterance) Close() {
	u.Status = UtteranceClosed
	u.EndedAt = time.Now()
}

// Cancel marks the utterance cancelled
func (u *Utterance) Cancel() {
	u.Status = UtteranceCancelled
	u.EndedAt = time.Now()
}

// Duration reports the captured speech span
func (u *Utterance) Duration() time.Duration {
	if u.EndedAt.IsZero() {
		return time.Since(u.StartedAt)
	}
	return u.EndedAt.Sub(u.StartedAt)
}

// Transcript is one recognition result for an utterance. Zero or more
// interim transcripts precede exactly one final transcript.
type Transcript struct {
	UtteranceID string `json:"utterance_id"`
	Text        string `json:"text"`
	IsFinal     bool   `json:"is_final"`
}

// ReplyChunk is one incremental text unit of a generated reply.
type ReplyChunk struct {
	ReplyID string `json:"reply_id"`
	Seq     int    `json:"seq"`
	Text    string `json:"text"`
}

// AudioChunk is one incremental unit of synthesized reply audio.
type AudioChunk struct {
	ReplyID string `json:"reply_id"`
	Seq     int    `json:"seq"`
	Data    []byte `json:"data"`
	IsFinal bool   `json:"is_final"`
}
