package repositories

import "context"

// TextToSpeech abstracts speech synthesis services
type TextToSpeech interface {
	// Synthesize converts reply text to audio. The text channel carries
	// sentence-sized units and is closed by the caller at end of reply.
	// Streaming implementations synthesize as text arrives; batch
	// implementations may drain the channel first. Consumers observe no
	// difference beyond latency.
	Synthesize(ctx context.Context, text <-chan string) (SpeechStream, error)
}

// SpeechStream is a lazy sequence of synthesized audio chunks.
type SpeechStream interface {
	// Chunks yields audio payloads in order and closes when synthesis
	// completes.
	Chunks() <-chan []byte
	// Err reports the terminal failure, if any. Valid once Chunks is
	// closed.
	Err() error
}
