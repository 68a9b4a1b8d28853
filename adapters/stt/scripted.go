package stt

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/wicara/domain/entities"
	"github.com/satriahrh/wicara/domain/repositories"
)

// ScriptedSpeechToText is a keyless recognizer for development and tests.
// It picks a canned transcript by utterance size and streams it as one
// interim result followed by the final.
type ScriptedSpeechToText struct {
	logger *zap.Logger
}

// Ensure ScriptedSpeechToText implements the SpeechToText interface
var _ repositories.SpeechToText = (*ScriptedSpeechToText)(nil)

// NewScriptedSpeechToText creates a new scripted speech-to-text service
func NewScriptedSpeechToText(logger *zap.Logger) *ScriptedSpeechToText {
	return &ScriptedSpeechToText{logger: logger}
}

// Transcribe returns a scripted transcription keyed by audio size.
func (s *ScriptedSpeechToText) Transcribe(ctx context.Context, audio []byte, config repositories.AudioConfig) (repositories.TranscriptionStream, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("no audio data received")
	}

	var text string
	switch {
	case len(audio) > 100000:
		text = "Halo, apa kabar? Aku ingin bercerita tentang hari ini."
	case len(audio) > 50000:
		text = "Terima kasih sudah mendengarkan."
	case len(audio) > 10000:
		text = "Halo, kamu bisa mendengarku?"
	default:
		text = "Hai"
	}

	s.logger.Debug("Scripted transcription",
		zap.Int("audioBytes", len(audio)),
		zap.String("text", text))

	stream := &scriptedStream{results: make(chan entities.Transcript, 2)}
	go stream.run(ctx, text)
	return stream, nil
}

type scriptedStream struct {
	results chan entities.Transcript
}

func (s *scriptedStream) Results() <-chan entities.Transcript {
	return s.results
}

func (s *scriptedStream) Err() error {
	return nil
}

func (s *scriptedStream) run(ctx context.Context, text string) {
	defer close(s.results)

	words := strings.Fields(text)
	if len(words) > 1 {
		interim := entities.Transcript{Text: strings.Join(words[:len(words)/2+1], " ")}
		select {
		case s.results <- interim:
		case <-ctx.Done():
			return
		}
	}

	select {
	case s.results <- entities.Transcript{Text: text, IsFinal: true}:
	case <-ctx.Done():
	}
}
