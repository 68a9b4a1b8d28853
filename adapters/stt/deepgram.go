package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/wicara/domain/entities"
	"github.com/satriahrh/wicara/domain/repositories"
)

const (
	defaultDeepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultDeepgramModel    = "nova-2"

	// deepgramSendBytes caps one binary frame of utterance audio.
	deepgramSendBytes = 8 * 1024
)

// DeepgramConfig holds configuration for the DeepgramSpeechToText adapter
// Required fields:
// - APIKey: Your Deepgram API key
// Optional fields with defaults:
// - Endpoint: The listen endpoint (default: "wss://api.deepgram.com/v1/listen")
// - Model: The recognition model (default: "nova-2")
type DeepgramConfig struct {
	APIKey   string
	Endpoint string
	Model    string
}

// NewDeepgramConfigFromEnv creates a new DeepgramConfig from environment variables
func NewDeepgramConfigFromEnv() DeepgramConfig {
	return DeepgramConfig{
		APIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		Endpoint: os.Getenv("DEEPGRAM_ENDPOINT"),
		Model:    os.Getenv("DEEPGRAM_MODEL"),
	}
}

// DeepgramSpeechToText implements SpeechToText against the Deepgram
// streaming API. Each utterance is recognized over its own WebSocket
// session: audio goes up in binary frames, a CloseStream message flushes
// the remaining results, and the server closes the socket.
type DeepgramSpeechToText struct {
	apiKey   string
	endpoint string
	model    string
	logger   *zap.Logger
}

// Ensure DeepgramSpeechToText implements the SpeechToText interface
var _ repositories.SpeechToText = (*DeepgramSpeechToText)(nil)

// NewDeepgramSpeechToText creates a new Deepgram recognizer
func NewDeepgramSpeechToText(config DeepgramConfig, logger *zap.Logger) (*DeepgramSpeechToText, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("deepgram API key is required")
	}

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = defaultDeepgramEndpoint
	}

	model := config.Model
	if model == "" {
		model = defaultDeepgramModel
		logger.Info("Using default Deepgram model", zap.String("model", model))
	}

	return &DeepgramSpeechToText{
		apiKey:   config.APIKey,
		endpoint: endpoint,
		model:    model,
		logger:   logger,
	}, nil
}

// deepgramResult represents the JSON response from Deepgram.
type deepgramResult struct {
	IsFinal bool `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Transcribe recognizes one closed utterance.
func (d *DeepgramSpeechToText) Transcribe(ctx context.Context, audio []byte, config repositories.AudioConfig) (repositories.TranscriptionStream, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("no audio data received")
	}

	encoding, err := deepgramEncoding(config.Encoding)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("model", d.model)
	query.Set("encoding", encoding)
	query.Set("sample_rate", strconv.Itoa(config.SampleRate))
	query.Set("channels", "1")
	query.Set("language", config.Language)
	query.Set("punctuate", "true")
	query.Set("smart_format", "true")
	query.Set("interim_results", "true")
	endpoint := d.endpoint + "?" + query.Encode()

	header := http.Header{
		"Authorization": {fmt.Sprintf("Token %s", d.apiKey)},
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	d.logger.Debug("Deepgram recognition started",
		zap.Int("audioBytes", len(audio)),
		zap.String("model", d.model))

	out := &deepgramStream{
		results: make(chan entities.Transcript, 8),
		closed:  make(chan struct{}),
	}

	// ReadMessage does not observe ctx; closing the connection unblocks it.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-out.closed:
		}
	}()

	go out.run(ctx, conn, audio)
	return out, nil
}

// deepgramStream adapts one Deepgram WebSocket session to
// TranscriptionStream.
type deepgramStream struct {
	results chan entities.Transcript
	closed  chan struct{}

	mu  sync.Mutex
	err error
}

func (s *deepgramStream) Results() <-chan entities.Transcript {
	return s.results
}

func (s *deepgramStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *deepgramStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *deepgramStream) run(ctx context.Context, conn *websocket.Conn, audio []byte) {
	defer close(s.results)
	defer close(s.closed)
	defer conn.Close()

	go func() {
		for offset := 0; offset < len(audio); offset += deepgramSendBytes {
			end := offset + deepgramSendBytes
			if end > len(audio) {
				end = len(audio)
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, audio[offset:end]); err != nil {
				return
			}
		}
		// Flush pending results and let the server close the session.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	}()

	var finals []string
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				s.fail(ctx.Err())
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.fail(fmt.Errorf("failed to read Deepgram response: %w", err))
				return
			}
			break
		}

		var result deepgramResult
		if err := json.Unmarshal(message, &result); err != nil {
			// Metadata and other non-result messages are ignored.
			continue
		}
		if len(result.Channel.Alternatives) == 0 {
			continue
		}

		text := result.Channel.Alternatives[0].Transcript
		if result.IsFinal {
			if text != "" {
				finals = append(finals, text)
			}
			continue
		}
		if text == "" {
			continue
		}
		select {
		case s.results <- entities.Transcript{Text: text}:
		case <-ctx.Done():
			s.fail(ctx.Err())
			return
		}
	}

	final := entities.Transcript{
		Text:    strings.Join(finals, " "),
		IsFinal: true,
	}
	select {
	case s.results <- final:
	case <-ctx.Done():
		s.fail(ctx.Err())
	}
}

// deepgramEncoding converts string encoding to a Deepgram encoding name
func deepgramEncoding(encoding string) (string, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return "linear16", nil
	case "FLAC":
		return "flac", nil
	case "MULAW":
		return "mulaw", nil
	case "AMR":
		return "amr-nb", nil
	case "AMR_WB":
		return "amr-wb", nil
	case "OGG_OPUS":
		return "opus", nil
	default:
		return "", fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
