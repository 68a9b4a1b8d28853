package usecase

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/wicara/domain/entities"
	"github.com/satriahrh/wicara/domain/repositories"
	"github.com/satriahrh/wicara/internal/audio"
	"github.com/satriahrh/wicara/internal/vad"
)

type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdStop
	cmdEndUtterance
)

// Client-facing messages for recoverable failures. The raw error goes to
// the log, never to the client.
var errorMessages = map[ErrorCode]string{
	ErrorTranscriptionFailure: "could not transcribe your speech",
	ErrorGenerationFailure:    "could not generate a reply",
	ErrorSynthesisFailure:     "could not synthesize the reply audio",
}

// activeTurn is the run loop's handle on one in-flight turn worker.
type activeTurn struct {
	utteranceID string
	replyID     string
	msgs        chan turnMsg
	cancel      context.CancelFunc
	metrics     *turnMetrics
	replySeq    int
	audioSeq    int
	audioSent   int
}

// Conversation is one client's live pipeline: audio frames in, ordered
// events out. Its run loop is the single writer of session state and the
// single publisher to Events, which is what guarantees the per-utterance
// event order even though the adapters run concurrently.
type Conversation struct {
	session *entities.Session
	buffer  *audio.FrameBuffer
	seg     *vad.Segmenter

	stt repositories.SpeechToText
	llm repositories.LanguageModel
	tts repositories.TextToSpeech

	cfg    Config
	logger *zap.Logger

	cancel    context.CancelFunc
	commands  chan commandKind
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	muted      atomic.Bool
	lastActive atomic.Int64

	// Run loop state. Touched by no other goroutine.
	turn          *activeTurn
	suppressedUtt string
}

// PushFrame buffers one inbound audio frame. Frames pushed while paused
// are dropped. ErrBufferOverflow means the oldest backlog was evicted;
// the caller logs it, the client never sees it.
func (c *Conversation) PushFrame(data []byte) error {
	if c.muted.Load() {
		return nil
	}
	return c.buffer.Push(data)
}

// Pause mutes capture. Any open utterance is discarded un-transcribed;
// an in-flight reply keeps going.
func (c *Conversation) Pause() { c.sendCommand(cmdPause) }

// Resume unmutes capture.
func (c *Conversation) Resume() { c.sendCommand(cmdResume) }

// Stop ends the conversation gracefully.
func (c *Conversation) Stop() { c.sendCommand(cmdStop) }

// EndUtterance closes the open utterance immediately instead of waiting
// out the silence timeout. No-op when nothing is open.
func (c *Conversation) EndUtterance() { c.sendCommand(cmdEndUtterance) }

func (c *Conversation) sendCommand(kind commandKind) {
	select {
	case c.commands <- kind:
	case <-c.done:
	}
}

// Events returns the ordered outbound event stream. Closed on teardown.
func (c *Conversation) Events() <-chan Event {
	return c.events
}

// Done is closed once the conversation has fully shut down.
func (c *Conversation) Done() <-chan struct{} {
	return c.done
}

func (c *Conversation) SessionID() string {
	return c.session.ID
}

func (c *Conversation) DeviceID() string {
	return c.session.DeviceID
}

// IdleFor reports how long the conversation has gone without progress.
// Safe to call from any goroutine.
func (c *Conversation) IdleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastActive.Load()))
}

// Close tears the conversation down: cancels in-flight work, releases the
// frame backlog, and closes Events and Done. Idempotent.
func (c *Conversation) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.buffer.Close()
	})
}

func (c *Conversation) touch() {
	c.session.Touch()
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *Conversation) run(ctx context.Context) {
	defer c.finish()

	// Announce the initial state so the client starts in sync.
	if !c.publish(newStateEvent(c.session.State)) {
		return
	}

	segEvents := c.seg.Events()
	for {
		var turnMsgs <-chan turnMsg
		if c.turn != nil {
			turnMsgs = c.turn.msgs
		}

		select {
		case <-ctx.Done():
			return
		case kind := <-c.commands:
			if !c.handleCommand(ctx, kind) {
				return
			}
		case ev, ok := <-segEvents:
			if !ok {
				segEvents = nil
				continue
			}
			if !c.handleBoundary(ctx, ev) {
				return
			}
		case msg := <-turnMsgs:
			if !c.handleTurnMsg(msg) {
				return
			}
		}
	}
}

func (c *Conversation) finish() {
	c.cancelTurn()
	c.Close()
	c.logger.Info("Conversation ended",
		zap.String("session_id", c.session.ID),
		zap.String("device_id", c.session.DeviceID),
		zap.Uint64("frames_dropped", c.buffer.Dropped()))
	close(c.events)
	close(c.done)
}

// publish hands one event to the outbound queue without ever blocking the
// run loop. A consumer that let the queue fill up is gone; treat it like
// a transport disconnect and stop.
func (c *Conversation) publish(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	default:
	}
	c.session.State = entities.StateError
	c.logger.Error("Outbound event queue full, dropping session",
		zap.String("session_id", c.session.ID),
		zap.String("event_type", string(ev.Type)))
	return false
}

func (c *Conversation) setState(state entities.State) bool {
	if c.session.State == state {
		return true
	}
	c.session.State = state
	c.touch()
	return c.publish(newStateEvent(state))
}

func (c *Conversation) handleCommand(ctx context.Context, kind commandKind) bool {
	switch kind {
	case cmdPause:
		c.muted.Store(true)
		c.seg.Reset()
		c.suppressedUtt = ""
		c.logger.Info("Capture paused", zap.String("session_id", c.session.ID))
	case cmdResume:
		c.muted.Store(false)
		c.logger.Info("Capture resumed", zap.String("session_id", c.session.ID))
	case cmdStop:
		c.logger.Info("Conversation stopped by client", zap.String("session_id", c.session.ID))
		return false
	case cmdEndUtterance:
		utt, ok := c.seg.EndUtterance()
		if !ok {
			return true
		}
		return c.handleClosed(ctx, utt)
	}
	return true
}

func (c *Conversation) handleBoundary(ctx context.Context, ev vad.Event) bool {
	if c.muted.Load() {
		// Frames buffered before the pause can still trip the segmenter.
		// Nothing they produce counts.
		c.seg.Reset()
		return true
	}

	switch ev.Type {
	case vad.EventSpeechStart, vad.EventSpeechInterrupt:
		return c.handleOnset(ev.Utterance)
	case vad.EventSpeechEnd:
		return c.handleClosed(ctx, ev.Utterance)
	}
	return true
}

// handleOnset resolves a speech onset against the in-flight turn. The
// newest input wins unless the barge-in policy suppresses it.
func (c *Conversation) handleOnset(utt *entities.Utterance) bool {
	c.touch()

	if c.turn != nil && c.turn.utteranceID == utt.ID {
		// Stale onset for the utterance already being processed; its close
		// (an explicit end signal) raced ahead of it. Not a barge-in.
		return true
	}

	if c.session.State == entities.StateSpeaking && !c.bargeInAllowed() {
		c.suppressedUtt = utt.ID
		c.logger.Debug("Speech onset suppressed during playback",
			zap.String("session_id", c.session.ID),
			zap.String("utterance_id", utt.ID),
			zap.String("policy", string(c.cfg.BargeIn)))
		return true
	}

	c.session.ActiveUtteranceID = utt.ID
	if c.turn == nil {
		return true
	}

	c.logger.Info("Barge-in, cancelling in-flight turn",
		zap.String("session_id", c.session.ID),
		zap.String("superseded_utterance_id", c.turn.utteranceID),
		zap.String("superseded_reply_id", c.turn.replyID),
		zap.String("utterance_id", utt.ID))
	c.cancelTurn()
	return c.setState(entities.StateTranscribing)
}

// handleClosed takes a closed utterance into the transcribing turn.
func (c *Conversation) handleClosed(ctx context.Context, utt *entities.Utterance) bool {
	c.touch()

	if utt.ID == c.suppressedUtt {
		c.suppressedUtt = ""
		utt.Cancel()
		c.logger.Debug("Discarding suppressed utterance",
			zap.String("session_id", c.session.ID),
			zap.String("utterance_id", utt.ID))
		return true
	}

	c.cancelTurn()
	return c.startTurn(ctx, utt)
}

func (c *Conversation) bargeInAllowed() bool {
	switch c.cfg.BargeIn {
	case BargeInImmediate:
		return true
	case BargeInDisabled:
		return false
	default:
		return c.turn != nil && c.turn.audioSent > 0
	}
}

func (c *Conversation) cancelTurn() {
	if c.turn == nil {
		return
	}
	c.turn.cancel()
	c.turn = nil
	c.session.ActiveReplyID = ""
}

func (c *Conversation) startTurn(ctx context.Context, utt *entities.Utterance) bool {
	replyID := uuid.NewString()
	c.session.ActiveUtteranceID = utt.ID
	c.session.ActiveReplyID = replyID

	turnCtx, cancel := context.WithCancel(ctx)
	t := &activeTurn{
		utteranceID: utt.ID,
		replyID:     replyID,
		msgs:        make(chan turnMsg, 16),
		cancel:      cancel,
		metrics:     newTurnMetrics(utt.ID, replyID),
	}
	c.turn = t

	history := make([]entities.Message, len(c.session.Context))
	copy(history, c.session.Context)

	worker := &turnWorker{
		utterance: utt,
		history:   history,
		replyID:   replyID,
		stt:       c.stt,
		llm:       c.llm,
		tts:       c.tts,
		cfg:       c.cfg,
		logger:    c.logger,
		msgs:      t.msgs,
	}
	go worker.run(turnCtx)

	c.logger.Info("Utterance closed, turn started",
		zap.String("session_id", c.session.ID),
		zap.String("utterance_id", utt.ID),
		zap.String("reply_id", replyID),
		zap.Duration("utterance_duration", utt.Duration()),
		zap.Int("audio_bytes", len(utt.Audio)))

	return c.setState(entities.StateTranscribing)
}

func (c *Conversation) handleTurnMsg(msg turnMsg) bool {
	// Lineage gate: output of a superseded turn never reaches the wire.
	if msg.utteranceID != c.session.ActiveUtteranceID || msg.replyID != c.session.ActiveReplyID {
		return true
	}

	switch msg.kind {
	case turnTranscript:
		return c.onTranscript(msg)
	case turnReplyChunk:
		return c.onReplyChunk(msg)
	case turnAudioChunk:
		return c.onAudioChunk(msg)
	case turnFailed:
		return c.onTurnFailed(msg)
	case turnDone:
		return c.onTurnDone(msg)
	}
	return true
}

func (c *Conversation) onTranscript(msg turnMsg) bool {
	c.touch()
	if !c.publish(newTranscriptEvent(msg.transcript)) {
		return false
	}
	if !msg.transcript.IsFinal {
		return true
	}
	c.turn.metrics.markFinalTranscript()
	if strings.TrimSpace(msg.transcript.Text) == "" {
		// Nothing recognized; the worker ends this turn without a reply.
		return true
	}
	return c.setState(entities.StateGenerating)
}

func (c *Conversation) onReplyChunk(msg turnMsg) bool {
	c.touch()
	if c.session.State != entities.StateSpeaking {
		c.turn.metrics.markFirstReplyChunk()
		if !c.setState(entities.StateSpeaking) {
			return false
		}
	}
	chunk := entities.ReplyChunk{ReplyID: msg.replyID, Seq: c.turn.replySeq, Text: msg.text}
	c.turn.replySeq++
	return c.publish(newReplyChunkEvent(chunk))
}

func (c *Conversation) onAudioChunk(msg turnMsg) bool {
	c.touch()
	if c.turn.audioSent == 0 {
		c.turn.metrics.markFirstAudioChunk()
	}
	chunk := entities.AudioChunk{
		ReplyID: msg.replyID,
		Seq:     c.turn.audioSeq,
		Data:    msg.audio,
		IsFinal: msg.audioFinal,
	}
	c.turn.audioSeq++
	c.turn.audioSent++
	return c.publish(newAudioChunkEvent(chunk))
}

func (c *Conversation) onTurnFailed(msg turnMsg) bool {
	c.touch()
	c.logger.Error("Turn failed",
		zap.String("session_id", c.session.ID),
		zap.String("utterance_id", msg.utteranceID),
		zap.String("reply_id", msg.replyID),
		zap.String("code", string(msg.failCode)),
		zap.Error(msg.err))
	c.cancelTurn()
	c.session.ActiveUtteranceID = ""

	if !c.publish(newErrorEvent(msg.failCode, errorMessages[msg.failCode])) {
		return false
	}
	return c.setState(entities.StateListening)
}

func (c *Conversation) onTurnDone(msg turnMsg) bool {
	c.touch()
	t := c.turn
	t.metrics.markCompleted()
	c.cancelTurn()
	c.session.ActiveUtteranceID = ""

	if strings.TrimSpace(msg.userText) != "" && strings.TrimSpace(msg.replyText) != "" {
		c.session.AppendExchange(msg.userText, msg.replyText, c.cfg.MaxContextMessages)
	}

	fields := append([]zap.Field{zap.String("session_id", c.session.ID)}, t.metrics.fields()...)
	c.logger.Info("Turn completed", fields...)

	return c.setState(entities.StateListening)
}
