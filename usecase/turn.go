package usecase

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/wicara/domain/entities"
	"github.com/satriahrh/wicara/domain/repositories"
)

// transcribeRetryLimit is how many times a failed transcription is retried
// with the full utterance audio before the turn fails.
const transcribeRetryLimit = 1

// synthInputBuffer sizes the sentence channel feeding synthesis.
const synthInputBuffer = 8

type turnMsgKind int

const (
	turnTranscript turnMsgKind = iota
	turnReplyChunk
	turnAudioChunk
	turnFailed
	turnDone
)

// turnMsg is what a turn worker reports back to the run loop. The worker
// never publishes events itself; the run loop validates lineage and owns
// the outbound channel.
type turnMsg struct {
	kind        turnMsgKind
	utteranceID string
	replyID     string

	transcript entities.Transcript // turnTranscript
	text       string              // turnReplyChunk
	audio      []byte              // turnAudioChunk
	audioFinal bool

	failCode ErrorCode // turnFailed
	err      error

	userText  string // turnDone
	replyText string
}

// turnWorker drives one utterance through transcription, generation, and
// synthesis. Generation is pipelined into synthesis sentence by sentence,
// but synthesized audio is held back until the reply stream finishes so
// the outbound order stays transcript, reply chunks, audio chunks.
type turnWorker struct {
	utterance *entities.Utterance
	history   []entities.Message
	replyID   string

	stt repositories.SpeechToText
	llm repositories.LanguageModel
	tts repositories.TextToSpeech

	cfg    Config
	logger *zap.Logger
	msgs   chan turnMsg
}

func (w *turnWorker) run(ctx context.Context) {
	userText, err := w.transcribe(ctx)
	if err != nil {
		w.fail(ctx, ErrorTranscriptionFailure, err)
		return
	}

	final := entities.Transcript{
		UtteranceID: w.utterance.ID,
		Text:        userText,
		IsFinal:     true,
	}
	if !w.send(ctx, turnMsg{kind: turnTranscript, transcript: final}) {
		return
	}

	if strings.TrimSpace(userText) == "" {
		// Nothing was recognized. The utterance ends quietly.
		w.send(ctx, turnMsg{kind: turnDone, userText: userText})
		return
	}

	w.respond(ctx, userText)
}

func (w *turnWorker) send(ctx context.Context, msg turnMsg) bool {
	msg.utteranceID = w.utterance.ID
	msg.replyID = w.replyID
	select {
	case w.msgs <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *turnWorker) fail(ctx context.Context, code ErrorCode, err error) {
	w.send(ctx, turnMsg{kind: turnFailed, failCode: code, err: err})
}

// transcribe runs the transcription stage, forwarding interim results as
// they arrive and returning the final transcript text. A failed attempt is
// retried once with the full utterance audio.
func (w *turnWorker) transcribe(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= transcribeRetryLimit; attempt++ {
		if attempt > 0 {
			w.logger.Warn("Retrying transcription",
				zap.String("utterance_id", w.utterance.ID),
				zap.Error(lastErr))
		}
		text, err := w.transcribeOnce(ctx)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (w *turnWorker) transcribeOnce(ctx context.Context) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, w.cfg.TranscribeTimeout)
	defer cancel()

	stream, err := w.stt.Transcribe(tctx, w.utterance.Audio, w.cfg.Audio)
	if err != nil {
		return "", err
	}

	finalText := ""
	for result := range stream.Results() {
		if result.IsFinal {
			finalText = result.Text
			continue
		}
		result.UtteranceID = w.utterance.ID
		if !w.send(ctx, turnMsg{kind: turnTranscript, transcript: result}) {
			return "", ctx.Err()
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return finalText, nil
}

// respond runs generation and synthesis for the final transcript.
func (w *turnWorker) respond(ctx context.Context, userText string) {
	gctx, gcancel := context.WithTimeout(ctx, w.cfg.GenerateTimeout)
	defer gcancel()

	reply, err := w.llm.GenerateReply(gctx, w.history, userText)
	if err != nil {
		w.fail(ctx, ErrorGenerationFailure, err)
		return
	}

	sctx, scancel := context.WithTimeout(ctx, w.cfg.SynthesizeTimeout)
	defer scancel()

	textIn := make(chan string, synthInputBuffer)
	speech, err := w.tts.Synthesize(sctx, textIn)
	if err != nil {
		w.fail(ctx, ErrorSynthesisFailure, err)
		return
	}

	pipe := &synthPipe{textIn: textIn, audio: speech.Chunks()}

	var chunker sentenceChunker
	var replyText strings.Builder

	chunks := reply.Chunks()
	for chunks != nil {
		select {
		case text, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if text == "" {
				continue
			}
			replyText.WriteString(text)
			if !w.send(ctx, turnMsg{kind: turnReplyChunk, text: text}) {
				return
			}
			for _, sentence := range chunker.push(text) {
				if !pipe.feed(ctx, sentence) {
					if pipe.closedEarly {
						w.fail(ctx, ErrorSynthesisFailure, synthStreamErr(speech))
					}
					return
				}
			}
		case a, ok := <-pipe.audio:
			if !ok {
				w.fail(ctx, ErrorSynthesisFailure, synthStreamErr(speech))
				return
			}
			pipe.pending = append(pipe.pending, a)
		case <-ctx.Done():
			return
		}
	}

	if err := reply.Err(); err != nil {
		// Discard the partial reply; synthesis is abandoned with the turn.
		w.fail(ctx, ErrorGenerationFailure, err)
		return
	}

	if tail := chunker.flush(); tail != "" {
		if !pipe.feed(ctx, tail) {
			if pipe.closedEarly {
				w.fail(ctx, ErrorSynthesisFailure, synthStreamErr(speech))
			}
			return
		}
	}
	close(textIn)

	if !w.publishAudio(ctx, speech, pipe) {
		return
	}

	w.send(ctx, turnMsg{kind: turnDone, userText: userText, replyText: replyText.String()})
}

// publishAudio flushes the audio held back during generation, then relays
// the rest of the synthesis stream. One chunk of lookahead marks the last
// chunk as final.
func (w *turnWorker) publishAudio(ctx context.Context, speech repositories.SpeechStream, pipe *synthPipe) bool {
	var prev []byte
	havePrev := false

	emit := func(data []byte, final bool) bool {
		return w.send(ctx, turnMsg{kind: turnAudioChunk, audio: data, audioFinal: final})
	}

	for _, a := range pipe.pending {
		if havePrev && !emit(prev, false) {
			return false
		}
		prev, havePrev = a, true
	}

	audio := pipe.audio
	for audio != nil {
		select {
		case a, ok := <-audio:
			if !ok {
				audio = nil
				continue
			}
			if havePrev && !emit(prev, false) {
				return false
			}
			prev, havePrev = a, true
		case <-ctx.Done():
			return false
		}
	}

	if err := speech.Err(); err != nil {
		w.fail(ctx, ErrorSynthesisFailure, err)
		return false
	}

	if havePrev && !emit(prev, true) {
		return false
	}
	return true
}

// synthPipe couples the sentence channel feeding synthesis with the audio
// coming back out. feed keeps draining audio while waiting for capacity so
// neither side can stall the other.
type synthPipe struct {
	textIn      chan string
	audio       <-chan []byte
	pending     [][]byte
	closedEarly bool
}

func (p *synthPipe) feed(ctx context.Context, sentence string) bool {
	for {
		select {
		case p.textIn <- sentence:
			return true
		case a, ok := <-p.audio:
			if !ok {
				// Synthesis went away while text is still flowing.
				p.closedEarly = true
				return false
			}
			p.pending = append(p.pending, a)
		case <-ctx.Done():
			return false
		}
	}
}

func synthStreamErr(speech repositories.SpeechStream) error {
	if err := speech.Err(); err != nil {
		return err
	}
	return errors.New("synthesis stream closed before the reply finished")
}
