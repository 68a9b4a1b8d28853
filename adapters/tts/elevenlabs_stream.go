package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/wicara/domain/repositories"
)

const wsHandshakeTimeout = 10 * time.Second

// chunkLengthSchedule tunes how eagerly the service emits audio. Smaller
// leading values trade some prosody for latency on the first chunk.
var chunkLengthSchedule = []int{120, 160, 250, 290}

// ElevenLabsStreamingTTS implements TextToSpeech against the Eleven Labs
// stream-input WebSocket endpoint. Sentences are synthesized as they
// arrive, so the first audio chunk does not wait for the full reply. One
// WebSocket session serves one reply.
type ElevenLabsStreamingTTS struct {
	config ElevenLabsConfig
	logger *zap.Logger
}

// Ensure ElevenLabsStreamingTTS implements the TextToSpeech interface
var _ repositories.TextToSpeech = (*ElevenLabsStreamingTTS)(nil)

// NewElevenLabsStreamingTTS creates a new streaming Eleven Labs TTS instance
func NewElevenLabsStreamingTTS(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsStreamingTTS, error) {
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}

	return &ElevenLabsStreamingTTS{
		config: applyElevenLabsDefaults(config, logger),
		logger: logger,
	}, nil
}

// Synthesize opens a stream-input session and feeds it sentences as they
// arrive on the text channel.
func (e *ElevenLabsStreamingTTS) Synthesize(ctx context.Context, text <-chan string) (repositories.SpeechStream, error) {
	endpoint := fmt.Sprintf("%s/text-to-speech/%s/stream-input?model_id=%s&output_format=%s",
		wsBaseURL(e.config.APIBaseURL), e.config.VoiceID, e.config.ModelID, e.config.OutputFormat)

	headers := http.Header{}
	headers.Set("xi-api-key", e.config.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	// Begin-of-stream message carries the voice settings.
	bos := map[string]interface{}{
		"text": " ",
		"voice_settings": map[string]interface{}{
			"stability":        e.config.Stability,
			"similarity_boost": e.config.Clarity,
		},
		"generation_config": map[string]interface{}{
			"chunk_length_schedule": chunkLengthSchedule,
		},
	}
	if err := conn.WriteJSON(bos); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send BOS: %w", err)
	}

	e.logger.Debug("Streaming synthesis session opened",
		zap.String("voiceID", e.config.VoiceID),
		zap.String("modelID", e.config.ModelID))

	stream := newSpeechStream()
	done := make(chan struct{})

	// ReadMessage does not observe ctx; closing the connection unblocks it.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go writeSentences(ctx, conn, text)
	go readAudio(ctx, conn, stream, done)
	return stream, nil
}

// writeSentences forwards text to the session and ends it with an EOS
// message once the caller closes the channel.
func writeSentences(ctx context.Context, conn *websocket.Conn, text <-chan string) {
	for {
		select {
		case sentence, ok := <-text:
			if !ok {
				// End-of-stream flushes the last partial generation.
				conn.WriteJSON(map[string]string{"text": ""})
				return
			}
			if sentence == "" {
				continue
			}
			message := map[string]interface{}{
				"text":                   sentence + " ",
				"try_trigger_generation": true,
			}
			if err := conn.WriteJSON(message); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func readAudio(ctx context.Context, conn *websocket.Conn, stream *speechStream, done chan struct{}) {
	defer close(stream.chunks)
	defer close(done)
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				stream.fail(ctx.Err())
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			stream.fail(fmt.Errorf("failed to read synthesis response: %w", err))
			return
		}

		var response struct {
			Audio   string `json:"audio"`
			IsFinal bool   `json:"isFinal"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(message, &response); err != nil {
			continue
		}
		if response.Error != "" {
			stream.fail(fmt.Errorf("eleven labs synthesis error: %s", response.Error))
			return
		}
		if response.Audio != "" {
			audioData, err := base64.StdEncoding.DecodeString(response.Audio)
			if err != nil {
				stream.fail(fmt.Errorf("failed to decode audio: %w", err))
				return
			}
			if !stream.send(ctx, audioData) {
				return
			}
		}
		if response.IsFinal {
			return
		}
	}
}

// wsBaseURL turns the configured HTTP base URL into its WebSocket form.
func wsBaseURL(apiBaseURL string) string {
	return "ws" + strings.TrimPrefix(apiBaseURL, "http")
}
