package stt

import (
	"context"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/wicara/domain/entities"
	"github.com/satriahrh/wicara/domain/repositories"
)

// streamSendBytes caps the audio content of one streaming request.
const streamSendBytes = 16 * 1024

// GoogleSpeechToText implements SpeechToText for Google Cloud.
// Credentials are resolved from the environment by the Google SDK.
type GoogleSpeechToText struct {
	logger *zap.Logger
}

// Ensure GoogleSpeechToText implements the SpeechToText interface
var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates a Google Cloud speech recognizer
func NewGoogleSpeechToText(logger *zap.Logger) *GoogleSpeechToText {
	return &GoogleSpeechToText{logger: logger}
}

// Transcribe recognizes one closed utterance over a streaming session.
func (g *GoogleSpeechToText) Transcribe(ctx context.Context, audio []byte, config repositories.AudioConfig) (repositories.TranscriptionStream, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("no audio data received")
	}

	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		return nil, err
	}

	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	// Send initial configuration
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        encoding,
					SampleRateHertz: int32(config.SampleRate),
					LanguageCode:    config.Language,
				},
				InterimResults:  true,
				SingleUtterance: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	g.logger.Debug("Google recognition started",
		zap.Int("audioBytes", len(audio)),
		zap.String("encoding", config.Encoding),
		zap.Int("sampleRate", config.SampleRate))

	out := &googleStream{results: make(chan entities.Transcript, 8)}
	go out.run(ctx, client, stream, audio)
	return out, nil
}

// googleStream adapts a StreamingRecognize session to TranscriptionStream.
type googleStream struct {
	results chan entities.Transcript

	mu  sync.Mutex
	err error
}

func (s *googleStream) Results() <-chan entities.Transcript {
	return s.results
}

func (s *googleStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *googleStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *googleStream) run(ctx context.Context, client *speech.Client, stream speechpb.Speech_StreamingRecognizeClient, audio []byte) {
	defer close(s.results)
	defer client.Close()

	// The whole utterance is already buffered, so sending and receiving
	// overlap only to keep the gRPC flow window open.
	go func() {
		for offset := 0; offset < len(audio); offset += streamSendBytes {
			end := offset + streamSendBytes
			if end > len(audio) {
				end = len(audio)
			}
			if err := stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: audio[offset:end],
				},
			}); err != nil {
				// Recv surfaces the stream failure.
				return
			}
		}
		stream.CloseSend()
	}()

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.fail(fmt.Errorf("failed to receive response: %w", err))
			return
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			transcript := entities.Transcript{
				Text:    result.Alternatives[0].Transcript,
				IsFinal: result.IsFinal,
			}
			select {
			case s.results <- transcript:
			case <-ctx.Done():
				s.fail(ctx.Err())
				return
			}
			if result.IsFinal {
				return
			}
		}
	}
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
