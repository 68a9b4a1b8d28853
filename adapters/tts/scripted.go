package tts

import (
	"context"

	"go.uber.org/zap"

	"github.com/satriahrh/wicara/domain/repositories"
)

// ScriptedTextToSpeech is a keyless synthesizer for development and tests.
// Each sentence becomes one audio chunk whose payload is the sentence's
// UTF-8 bytes, which keeps dev clients easy to eyeball.
type ScriptedTextToSpeech struct {
	logger *zap.Logger
}

// Ensure ScriptedTextToSpeech implements the TextToSpeech interface
var _ repositories.TextToSpeech = (*ScriptedTextToSpeech)(nil)

// NewScriptedTextToSpeech creates a new scripted text-to-speech service
func NewScriptedTextToSpeech(logger *zap.Logger) *ScriptedTextToSpeech {
	return &ScriptedTextToSpeech{logger: logger}
}

// Synthesize converts each incoming sentence into one scripted audio chunk.
func (s *ScriptedTextToSpeech) Synthesize(ctx context.Context, text <-chan string) (repositories.SpeechStream, error) {
	stream := newSpeechStream()
	go func() {
		defer close(stream.chunks)
		count := 0
		for {
			select {
			case sentence, ok := <-text:
				if !ok {
					s.logger.Debug("Scripted synthesis finished", zap.Int("sentences", count))
					return
				}
				if sentence == "" {
					continue
				}
				count++
				if !stream.send(ctx, []byte(sentence)) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return stream, nil
}
