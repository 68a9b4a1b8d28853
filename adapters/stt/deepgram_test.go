package stt

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/wicara/domain/entities"
	"github.com/satriahrh/wicara/domain/repositories"
)

var testAudioConfig = repositories.AudioConfig{
	SampleRate: 16000,
	Encoding:   "LINEAR16",
	Language:   "id-ID",
}

type deepgramFake struct {
	t       *testing.T
	interim []string
	finals  []string

	mu         sync.Mutex
	audioBytes int
}

func (f *deepgramFake) receivedAudioBytes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioBytes
}

func (f *deepgramFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if got, want := r.Header.Get("Authorization"), "Token test-key"; got != want {
		f.t.Errorf("Authorization = %q, want %q", got, want)
	}
	if got, want := r.URL.Query().Get("encoding"), "linear16"; got != want {
		f.t.Errorf("encoding = %q, want %q", got, want)
	}
	if got, want := r.URL.Query().Get("interim_results"), "true"; got != want {
		f.t.Errorf("interim_results = %q, want %q", got, want)
	}

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType == websocket.BinaryMessage {
			f.mu.Lock()
			f.audioBytes += len(message)
			f.mu.Unlock()
			continue
		}
		if strings.Contains(string(message), "CloseStream") {
			break
		}
	}

	for _, text := range f.interim {
		conn.WriteJSON(deepgramPayload(text, false))
	}
	for _, text := range f.finals {
		conn.WriteJSON(deepgramPayload(text, true))
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func deepgramPayload(text string, isFinal bool) map[string]interface{} {
	return map[string]interface{}{
		"is_final": isFinal,
		"channel": map[string]interface{}{
			"alternatives": []map[string]interface{}{
				{"transcript": text, "confidence": 0.93},
			},
		},
	}
}

func newDeepgramUnderTest(t *testing.T, handler http.Handler) *DeepgramSpeechToText {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := DeepgramConfig{
		APIKey:   "test-key",
		Endpoint: "ws" + strings.TrimPrefix(server.URL, "http"),
	}
	adapter, err := NewDeepgramSpeechToText(config, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewDeepgramSpeechToText() error = %v", err)
	}
	return adapter
}

func collectTranscripts(t *testing.T, stream repositories.TranscriptionStream) []entities.Transcript {
	t.Helper()
	var got []entities.Transcript
	timeout := time.After(5 * time.Second)
	for {
		select {
		case transcript, ok := <-stream.Results():
			if !ok {
				return got
			}
			got = append(got, transcript)
		case <-timeout:
			t.Fatalf("timed out waiting for transcripts, have %d", len(got))
		}
	}
}

func TestDeepgramStreamsInterimThenFinal(t *testing.T) {
	fake := &deepgramFake{t: t, interim: []string{"halo"}, finals: []string{"Halo dunia."}}
	adapter := newDeepgramUnderTest(t, fake)

	stream, err := adapter.Transcribe(context.Background(), bytes.Repeat([]byte{1}, 20000), testAudioConfig)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	got := collectTranscripts(t, stream)
	if err := stream.Err(); err != nil {
		t.Fatalf("stream.Err() = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d transcripts, want 2: %v", len(got), got)
	}
	if got[0].IsFinal || got[0].Text != "halo" {
		t.Errorf("interim = %+v, want non-final %q", got[0], "halo")
	}
	if !got[1].IsFinal || got[1].Text != "Halo dunia." {
		t.Errorf("final = %+v, want final %q", got[1], "Halo dunia.")
	}
	if got := fake.receivedAudioBytes(); got != 20000 {
		t.Errorf("server received %d audio bytes, want 20000", got)
	}
}

func TestDeepgramJoinsFinalSegments(t *testing.T) {
	fake := &deepgramFake{t: t, finals: []string{"Halo dunia.", "Apa kabar?"}}
	adapter := newDeepgramUnderTest(t, fake)

	stream, err := adapter.Transcribe(context.Background(), bytes.Repeat([]byte{1}, 2048), testAudioConfig)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	got := collectTranscripts(t, stream)
	if len(got) != 1 {
		t.Fatalf("got %d transcripts, want 1: %v", len(got), got)
	}
	if want := "Halo dunia. Apa kabar?"; got[0].Text != want || !got[0].IsFinal {
		t.Errorf("final = %+v, want final %q", got[0], want)
	}
}

func TestDeepgramEmptyRecognitionYieldsEmptyFinal(t *testing.T) {
	fake := &deepgramFake{t: t}
	adapter := newDeepgramUnderTest(t, fake)

	stream, err := adapter.Transcribe(context.Background(), bytes.Repeat([]byte{0}, 2048), testAudioConfig)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	got := collectTranscripts(t, stream)
	if err := stream.Err(); err != nil {
		t.Fatalf("stream.Err() = %v", err)
	}
	if len(got) != 1 || !got[0].IsFinal || got[0].Text != "" {
		t.Errorf("got %v, want one empty final transcript", got)
	}
}

func TestDeepgramAbnormalCloseReportsError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop the connection without a close handshake.
		conn.UnderlyingConn().Close()
	})
	adapter := newDeepgramUnderTest(t, handler)

	stream, err := adapter.Transcribe(context.Background(), bytes.Repeat([]byte{1}, 512), testAudioConfig)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	collectTranscripts(t, stream)
	if stream.Err() == nil {
		t.Fatal("stream.Err() = nil, want error after abnormal close")
	}
}

func TestDeepgramRequiresAPIKey(t *testing.T) {
	if _, err := NewDeepgramSpeechToText(DeepgramConfig{}, zaptest.NewLogger(t)); err == nil {
		t.Fatal("NewDeepgramSpeechToText() accepted empty API key")
	}
}

func TestDeepgramRejectsEmptyAudio(t *testing.T) {
	adapter := newDeepgramUnderTest(t, http.NotFoundHandler())
	if _, err := adapter.Transcribe(context.Background(), nil, testAudioConfig); err == nil {
		t.Fatal("Transcribe() accepted empty audio")
	}
}

func TestDeepgramRejectsUnknownEncoding(t *testing.T) {
	adapter := newDeepgramUnderTest(t, http.NotFoundHandler())
	config := repositories.AudioConfig{SampleRate: 16000, Encoding: "MP3", Language: "id-ID"}
	if _, err := adapter.Transcribe(context.Background(), []byte{1}, config); err == nil {
		t.Fatal("Transcribe() accepted unsupported encoding")
	}
}
