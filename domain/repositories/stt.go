package repositories

import (
	"context"

	"github.com/satriahrh/wicara/domain/entities"
)

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// Transcribe recognizes one closed utterance. Results arrive on the
	// stream interim-first; exactly one final result ends a successful
	// recognition. Cancelling ctx abandons the underlying call. Adapters
	// never retry internally.
	Transcribe(ctx context.Context, audio []byte, config AudioConfig) (TranscriptionStream, error)
}

// TranscriptionStream is a lazy sequence of recognition results.
type TranscriptionStream interface {
	// Results yields interim transcripts followed by at most one final
	// transcript, then closes.
	Results() <-chan entities.Transcript
	// Err reports the terminal failure, if any. Valid once Results is
	// closed.
	Err() error
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}
