package repositories

import (
	"context"

	"github.com/satriahrh/wicara/domain/entities"
)

// LanguageModel abstracts any chat/LLM provider
type LanguageModel interface {
	// GenerateReply streams the model's reply to userText given the
	// bounded conversation history. Chunks arrive incrementally; the
	// stream closes at end of reply. Cancelling ctx releases the
	// upstream call within a bounded grace period.
	GenerateReply(ctx context.Context, history []entities.Message, userText string) (ReplyStream, error)
}

// ReplyStream is a lazy sequence of reply text chunks.
type ReplyStream interface {
	// Chunks yields reply text units in order, then closes.
	Chunks() <-chan string
	// Err reports the terminal failure, if any. Valid once Chunks is
	// closed. A failure after partial output still voids the whole
	// reply; callers must not synthesize a partial stream that errored.
	Err() error
}
