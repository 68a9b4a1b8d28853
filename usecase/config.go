package usecase

import (
	"fmt"
	"time"

	"github.com/satriahrh/wicara/domain/repositories"
	"github.com/satriahrh/wicara/internal/vad"
)

// BargeInPolicy controls whether a speech onset during SPEAKING cancels
// the in-flight reply. Onsets during TRANSCRIBING and GENERATING are
// always honored; nothing is playing back yet.
type BargeInPolicy string

const (
	// BargeInImmediate honors any onset while speaking.
	BargeInImmediate BargeInPolicy = "immediate"
	// BargeInAfterAudio honors onsets only once at least one audio chunk
	// of the active reply has been delivered, so leaked echo cannot
	// interrupt a reply before playback can even have started. Default.
	BargeInAfterAudio BargeInPolicy = "after_audio"
	// BargeInDisabled never interrupts an in-flight reply from speech.
	BargeInDisabled BargeInPolicy = "disabled"
)

// Config tunes one conversation pipeline
type Config struct {
	// TranscribeTimeout bounds one recognition attempt.
	TranscribeTimeout time.Duration
	// GenerateTimeout bounds one reply generation.
	GenerateTimeout time.Duration
	// SynthesizeTimeout bounds one reply synthesis.
	SynthesizeTimeout time.Duration
	// MaxContextMessages bounds the conversation context; oldest
	// messages are evicted beyond it.
	MaxContextMessages int
	// BargeIn selects the speaking-state interruption policy.
	BargeIn BargeInPolicy
	// FrameBufferCap bounds the inbound frame backlog.
	FrameBufferCap int
	// EventBufferCap bounds the outbound event queue. A consumer that
	// stalls past it is treated as disconnected.
	EventBufferCap int
	// VAD tunes the segmenter edges.
	VAD vad.Config
	// Audio describes the inbound frame format for recognition.
	Audio repositories.AudioConfig
}

const (
	defaultTranscribeTimeout  = 10 * time.Second
	defaultGenerateTimeout    = 30 * time.Second
	defaultSynthesizeTimeout  = 30 * time.Second
	defaultMaxContextMessages = 20
	defaultFrameBufferCap     = 256
	defaultEventBufferCap     = 512
)

// DefaultConfig returns the pipeline defaults
func DefaultConfig() Config {
	return Config{
		TranscribeTimeout:  defaultTranscribeTimeout,
		GenerateTimeout:    defaultGenerateTimeout,
		SynthesizeTimeout:  defaultSynthesizeTimeout,
		MaxContextMessages: defaultMaxContextMessages,
		BargeIn:            BargeInAfterAudio,
		FrameBufferCap:     defaultFrameBufferCap,
		EventBufferCap:     defaultEventBufferCap,
		VAD:                vad.DefaultConfig(),
		Audio: repositories.AudioConfig{
			SampleRate: 16000,
			Encoding:   "LINEAR16",
			Language:   "en-US",
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TranscribeTimeout <= 0 {
		c.TranscribeTimeout = d.TranscribeTimeout
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = d.GenerateTimeout
	}
	if c.SynthesizeTimeout <= 0 {
		c.SynthesizeTimeout = d.SynthesizeTimeout
	}
	if c.MaxContextMessages <= 0 {
		c.MaxContextMessages = d.MaxContextMessages
	}
	if c.BargeIn == "" {
		c.BargeIn = d.BargeIn
	}
	if c.FrameBufferCap <= 0 {
		c.FrameBufferCap = d.FrameBufferCap
	}
	if c.EventBufferCap <= 0 {
		c.EventBufferCap = d.EventBufferCap
	}
	if c.Audio.SampleRate == 0 {
		c.Audio = d.Audio
	}
	return c
}

// Validate rejects configurations the pipeline cannot run with
func (c Config) Validate() error {
	switch c.BargeIn {
	case BargeInImmediate, BargeInAfterAudio, BargeInDisabled, "":
	default:
		return fmt.Errorf("unknown barge-in policy %q", c.BargeIn)
	}

	if c.VAD.SilenceTimeout != 0 &&
		(c.VAD.SilenceTimeout < 200*time.Millisecond || c.VAD.SilenceTimeout > 10*time.Second) {
		return fmt.Errorf("silence timeout %v out of range", c.VAD.SilenceTimeout)
	}

	if c.FrameBufferCap < 0 {
		return fmt.Errorf("frame buffer capacity must be positive, got %d", c.FrameBufferCap)
	}

	if c.Audio.SampleRate != 0 && (c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 48000) {
		return fmt.Errorf("sample rate %d out of range", c.Audio.SampleRate)
	}

	return nil
}
