package usecase

import (
	"time"

	"go.uber.org/zap"
)

// turnMetrics tracks the latency milestones of one turn through the
// pipeline. Marked by the run loop at publication time, so the timings
// reflect what the client observed, not what the adapters produced.
type turnMetrics struct {
	utteranceID string
	replyID     string

	utteranceClosed time.Time
	finalTranscript time.Time
	firstReplyChunk time.Time
	firstAudioChunk time.Time
	completed       time.Time
}

func newTurnMetrics(utteranceID, replyID string) *turnMetrics {
	return &turnMetrics{
		utteranceID:     utteranceID,
		replyID:         replyID,
		utteranceClosed: time.Now(),
	}
}

func (m *turnMetrics) markFinalTranscript() {
	if m.finalTranscript.IsZero() {
		m.finalTranscript = time.Now()
	}
}

func (m *turnMetrics) markFirstReplyChunk() {
	if m.firstReplyChunk.IsZero() {
		m.firstReplyChunk = time.Now()
	}
}

func (m *turnMetrics) markFirstAudioChunk() {
	if m.firstAudioChunk.IsZero() {
		m.firstAudioChunk = time.Now()
	}
}

func (m *turnMetrics) markCompleted() {
	m.completed = time.Now()
}

// fields renders the milestone spans for the turn-completed log line.
func (m *turnMetrics) fields() []zap.Field {
	fields := []zap.Field{
		zap.String("utterance_id", m.utteranceID),
		zap.String("reply_id", m.replyID),
	}

	since := func(from, to time.Time) time.Duration {
		if from.IsZero() || to.IsZero() {
			return 0
		}
		return to.Sub(from)
	}

	fields = append(fields,
		zap.Duration("to_final_transcript", since(m.utteranceClosed, m.finalTranscript)),
		zap.Duration("to_first_reply_chunk", since(m.utteranceClosed, m.firstReplyChunk)),
		zap.Duration("to_first_audio_chunk", since(m.utteranceClosed, m.firstAudioChunk)),
		zap.Duration("turn_total", since(m.utteranceClosed, m.completed)),
	)
	return fields
}
