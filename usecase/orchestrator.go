// Package usecase orchestrates the speech-to-speech pipeline: utterance
// audio from the segmenter flows through transcription, generation, and
// synthesis, and the results are serialized onto one ordered outbound
// event stream per conversation.
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/wicara/domain/entities"
	"github.com/satriahrh/wicara/domain/repositories"
	"github.com/satriahrh/wicara/internal/audio"
	"github.com/satriahrh/wicara/internal/vad"
)

// Orchestrator creates conversations over a fixed set of adapters. The
// adapters must be safe for concurrent use across conversations.
type Orchestrator struct {
	stt    repositories.SpeechToText
	llm    repositories.LanguageModel
	tts    repositories.TextToSpeech
	cfg    Config
	logger *zap.Logger
}

// NewOrchestrator validates the pipeline configuration and returns an
// orchestrator ready to start conversations.
func NewOrchestrator(
	stt repositories.SpeechToText,
	llm repositories.LanguageModel,
	tts repositories.TextToSpeech,
	cfg Config,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if stt == nil || llm == nil || tts == nil {
		return nil, errors.New("orchestrator requires all three pipeline adapters")
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Orchestrator{
		stt:    stt,
		llm:    llm,
		tts:    tts,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// StartConversation spins up the per-session goroutines and returns the
// live conversation. The caller owns its lifecycle: feed PushFrame, drain
// Events, and Close it when the transport goes away. Cancelling ctx also
// tears it down.
func (o *Orchestrator) StartConversation(ctx context.Context, deviceID string) *Conversation {
	sess := entities.NewSession(uuid.NewString(), deviceID)
	buf := audio.NewFrameBuffer(o.cfg.FrameBufferCap)
	seg := vad.NewSegmenter(sess.ID, o.cfg.VAD, o.logger)

	convCtx, cancel := context.WithCancel(ctx)
	conv := &Conversation{
		session:  sess,
		buffer:   buf,
		seg:      seg,
		stt:      o.stt,
		llm:      o.llm,
		tts:      o.tts,
		cfg:      o.cfg,
		logger:   o.logger,
		cancel:   cancel,
		commands: make(chan commandKind, 8),
		events:   make(chan Event, o.cfg.EventBufferCap),
		done:     make(chan struct{}),
	}
	conv.lastActive.Store(time.Now().UnixNano())

	go seg.Run(convCtx, buf.Frames())
	go conv.run(convCtx)

	o.logger.Info("Conversation started",
		zap.String("session_id", sess.ID),
		zap.String("device_id", deviceID))

	return conv
}
