// Package vad segments a continuous frame stream into utterances by
// classifying per-frame energy and debouncing both speech edges.
package vad

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/wicara/domain/entities"
)

// EventType identifies an utterance boundary event
type EventType string

const (
	EventSpeechStart     EventType = "speech_start"
	EventSpeechEnd       EventType = "speech_end"
	EventSpeechInterrupt EventType = "speech_interrupt"
)

// Event is one utterance boundary crossing. SpeechEnd carries the closed
// utterance with its accumulated audio.
type Event struct {
	Type      EventType
	Utterance *entities.Utterance
}

// Config tunes the segmenter edges
type Config struct {
	// EnergyThreshold is the RMS level over little-endian 16-bit samples
	// above which a frame classifies as voiced.
	EnergyThreshold float64
	// OnsetFrames is how many consecutive voiced frames open an
	// utterance. Debounces noise spikes.
	OnsetFrames int
	// SilenceTimeout is the trailing silence span that closes an open
	// utterance. Debounces brief pauses.
	SilenceTimeout time.Duration
	// MaxUtterance force-closes an utterance that never goes silent.
	MaxUtterance time.Duration
}

const (
	defaultEnergyThreshold = 500.0
	defaultOnsetFrames     = 3
	defaultSilenceTimeout  = 1200 * time.Millisecond
	defaultMaxUtterance    = 30 * time.Second
)

// DefaultConfig returns the segmenter defaults
func DefaultConfig() Config {
	return Config{
		EnergyThreshold: defaultEnergyThreshold,
		OnsetFrames:     defaultOnsetFrames,
		SilenceTimeout:  defaultSilenceTimeout,
		MaxUtterance:    defaultMaxUtterance,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = d.EnergyThreshold
	}
	if c.OnsetFrames <= 0 {
		c.OnsetFrames = d.OnsetFrames
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = d.SilenceTimeout
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = d.MaxUtterance
	}
	return c
}

// Segmenter turns a frame stream into utterance boundary events.
// ProcessFrame runs on the VAD loop; EndUtterance and Reset are called
// from the orchestrator run loop, so utterance state is mutex-guarded.
type Segmenter struct {
	sessionID string
	cfg       Config
	logger    *zap.Logger

	events chan Event

	mu           sync.Mutex
	open         *entities.Utterance
	voicedRun    int
	onsetAudio   []byte
	onsetStart   time.Time
	silenceSince time.Time
	// carryVoiced is set when an utterance closes while speech is still
	// voiced (explicit end or max-duration cut). A re-onset before any
	// silence is then a continuation interrupting the prior turn, not a
	// fresh start.
	carryVoiced bool
}

// NewSegmenter creates a segmenter for one session
func NewSegmenter(sessionID string, cfg Config, logger *zap.Logger) *Segmenter {
	return &Segmenter{
		sessionID: sessionID,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		events:    make(chan Event, 32),
	}
}

// Events returns the boundary event stream. Closed when Run returns.
func (s *Segmenter) Events() <-chan Event {
	return s.events
}

// Run drains frames until the channel closes or ctx is cancelled.
func (s *Segmenter) Run(ctx context.Context, frames <-chan entities.AudioFrame) {
	defer close(s.events)

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			for _, ev := range s.ProcessFrame(frame) {
				select {
				case s.events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// ProcessFrame classifies one frame and advances the edge state machine.
// Returns the boundary events the frame produced, usually none.
func (s *Segmenter) ProcessFrame(frame entities.AudioFrame) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	voiced := rms(frame.Data) >= s.cfg.EnergyThreshold

	if s.open == nil {
		return s.processIdle(frame, voiced)
	}
	return s.processOpen(frame, voiced)
}

func (s *Segmenter) processIdle(frame entities.AudioFrame, voiced bool) []Event {
	if !voiced {
		s.voicedRun = 0
		s.onsetAudio = nil
		s.carryVoiced = false
		return nil
	}

	if s.voicedRun == 0 {
		s.onsetStart = frame.ReceivedAt
	}
	s.voicedRun++
	s.onsetAudio = append(s.onsetAudio, frame.Data...)

	if s.voicedRun < s.cfg.OnsetFrames {
		return nil
	}

	// Onset confirmed. The utterance includes the debounce frames.
	utterance := &entities.Utterance{
		ID:        uuid.NewString(),
		SessionID: s.sessionID,
		Status:    entities.UtteranceOpen,
		Audio:     s.onsetAudio,
		StartedAt: s.onsetStart,
	}
	s.open = utterance
	s.voicedRun = 0
	s.onsetAudio = nil
	s.silenceSince = time.Time{}

	eventType := EventSpeechStart
	if s.carryVoiced {
		eventType = EventSpeechInterrupt
		s.carryVoiced = false
	}

	s.logger.Debug("Speech onset",
		zap.String("session_id", s.sessionID),
		zap.String("utterance_id", utterance.ID),
		zap.String("event", string(eventType)))

	return []Event{{Type: eventType, Utterance: utterance}}
}

func (s *Segmenter) processOpen(frame entities.AudioFrame, voiced bool) []Event {
	s.open.Audio = append(s.open.Audio, frame.Data...)

	if voiced {
		s.silenceSince = time.Time{}
	} else if s.silenceSince.IsZero() {
		s.silenceSince = frame.ReceivedAt
	}

	trailingSilence := !s.silenceSince.IsZero() &&
		frame.ReceivedAt.Sub(s.silenceSince) >= s.cfg.SilenceTimeout
	overlong := frame.ReceivedAt.Sub(s.open.StartedAt) >= s.cfg.MaxUtterance

	if !trailingSilence && !overlong {
		return nil
	}

	return []Event{{Type: EventSpeechEnd, Utterance: s.closeOpenLocked()}}
}

// EndUtterance closes the open utterance immediately, as an alternative
// to waiting out the silence timeout. Returns false when no utterance is
// open, making a repeated signal a no-op.
func (s *Segmenter) EndUtterance() (*entities.Utterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil {
		// Also drop any half-confirmed onset so continued speech has to
		// re-arm the debounce as a fresh utterance.
		s.voicedRun = 0
		s.onsetAudio = nil
		s.carryVoiced = false
		return nil, false
	}

	return s.closeOpenLocked(), true
}

// Reset cancels any open utterance without closing it for transcription
// and clears both debounce edges. Used when capture pauses. Returns the
// cancelled utterance, if there was one.
func (s *Segmenter) Reset() (*entities.Utterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.voicedRun = 0
	s.onsetAudio = nil
	s.silenceSince = time.Time{}
	s.carryVoiced = false

	if s.open == nil {
		return nil, false
	}

	utterance := s.open
	s.open = nil
	utterance.Cancel()

	s.logger.Debug("Open utterance cancelled on reset",
		zap.String("session_id", s.sessionID),
		zap.String("utterance_id", utterance.ID))

	return utterance, true
}

func (s *Segmenter) closeOpenLocked() *entities.Utterance {
	utterance := s.open
	s.open = nil
	s.voicedRun = 0
	s.onsetAudio = nil
	// Closed while still voiced means the speaker has not stopped; a
	// re-onset without intervening silence continues the same speech.
	s.carryVoiced = s.silenceSince.IsZero()
	s.silenceSince = time.Time{}
	utterance.Close()

	s.logger.Debug("Utterance closed",
		zap.String("session_id", s.sessionID),
		zap.String("utterance_id", utterance.ID),
		zap.Duration("duration", utterance.Duration()),
		zap.Int("audio_bytes", len(utterance.Audio)))

	return utterance
}

// rms computes root-mean-square energy over little-endian 16-bit samples.
func rms(data []byte) float64 {
	if len(data) < 2 {
		return 0
	}

	var sum float64
	n := len(data) / 2
	for i := 0; i < n; i++ {
		sample := int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(n))
}
