package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/wicara/domain/entities"
	"github.com/satriahrh/wicara/domain/repositories"
)

// scriptedChunkWords is how many words ride in one scripted reply chunk.
const scriptedChunkWords = 4

// ScriptedLanguageModel is a keyless model for development and tests. It
// echoes the user's words back in a canned reply, streamed in small chunks
// to exercise the same path a real model does.
type ScriptedLanguageModel struct {
	logger *zap.Logger
}

// Ensure ScriptedLanguageModel implements the LanguageModel interface
var _ repositories.LanguageModel = (*ScriptedLanguageModel)(nil)

// NewScriptedLanguageModel creates a new scripted language model
func NewScriptedLanguageModel(logger *zap.Logger) *ScriptedLanguageModel {
	return &ScriptedLanguageModel{logger: logger}
}

// GenerateReply streams a canned reply derived from userText.
func (m *ScriptedLanguageModel) GenerateReply(ctx context.Context, history []entities.Message, userText string) (repositories.ReplyStream, error) {
	var reply string
	switch {
	case strings.TrimSpace(userText) == "":
		reply = "Halo! Apa yang ingin kamu ceritakan hari ini?"
	case len(history) > 0:
		reply = fmt.Sprintf("Aku masih mendengarkan. Kamu bilang %q. Lalu bagaimana?", userText)
	default:
		reply = fmt.Sprintf("Terima kasih sudah bercerita! Aku senang mendengar %q. Apa lagi yang ingin kamu ceritakan?", userText)
	}

	m.logger.Debug("Scripted reply",
		zap.Int("historyLength", len(history)),
		zap.String("reply", reply))

	stream := &scriptedReplyStream{chunks: make(chan string, 8)}
	go stream.run(ctx, reply)
	return stream, nil
}

type scriptedReplyStream struct {
	chunks chan string
}

func (s *scriptedReplyStream) Chunks() <-chan string {
	return s.chunks
}

func (s *scriptedReplyStream) Err() error {
	return nil
}

func (s *scriptedReplyStream) run(ctx context.Context, reply string) {
	defer close(s.chunks)

	words := strings.Fields(reply)
	for start := 0; start < len(words); start += scriptedChunkWords {
		end := start + scriptedChunkWords
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[start:end], " ")
		if end < len(words) {
			chunk += " "
		}
		select {
		case s.chunks <- chunk:
		case <-ctx.Done():
			return
		}
	}
}
