package websocket

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/wicara/adapters/llm"
	"github.com/satriahrh/wicara/adapters/stt"
	"github.com/satriahrh/wicara/adapters/tts"
	"github.com/satriahrh/wicara/internal/vad"
	"github.com/satriahrh/wicara/usecase"
)

func testPipelineConfig() usecase.Config {
	return usecase.Config{
		TranscribeTimeout:  2 * time.Second,
		GenerateTimeout:    2 * time.Second,
		SynthesizeTimeout:  2 * time.Second,
		MaxContextMessages: 8,
		FrameBufferCap:     64,
		EventBufferCap:     256,
		VAD: vad.Config{
			EnergyThreshold: 500,
			OnsetFrames:     3,
			SilenceTimeout:  200 * time.Millisecond,
			MaxUtterance:    10 * time.Second,
		},
	}
}

// newTestServer wires the scripted adapters behind a real upgrade
// endpoint so tests exercise the full transport path.
func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	orch, err := usecase.NewOrchestrator(
		stt.NewScriptedSpeechToText(logger),
		llm.NewScriptedLanguageModel(logger),
		tts.NewScriptedTextToSpeech(logger),
		testPipelineConfig(),
		logger,
	)
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	hub := NewHub(orch, time.Minute, logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		return HandleWebSocket(hub, c, "device-test", logger)
	})

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server, hub
}

func dialTestServer(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket connection failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func voicedFrame() []byte {
	frame := make([]byte, 640)
	for i := 0; i < len(frame); i += 2 {
		binary.LittleEndian.PutUint16(frame[i:], uint16(int16(4000)))
	}
	return frame
}

func silentFrame() []byte {
	return make([]byte, 640)
}

func writeFrames(t *testing.T, ws *websocket.Conn, frame []byte, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
	}
}

// speakUtterance streams a voiced burst long enough for a multi-word
// scripted transcript, followed by enough silence to cross the
// segmenter's timeout.
func speakUtterance(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	writeFrames(t, ws, voicedFrame(), 20)
	writeFrames(t, ws, silentFrame(), 1)
	time.Sleep(300 * time.Millisecond)
	writeFrames(t, ws, silentFrame(), 3)
}

// readEvent decodes the next text frame as a pipeline event.
func readEvent(t *testing.T, ws *websocket.Conn) usecase.Event {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	messageType, payload, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if messageType != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", messageType)
	}
	var event usecase.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("event unmarshal failed: %v", err)
	}
	return event
}

// collectTurn reads events until the pipeline settles back into
// listening after producing audio.
func collectTurn(t *testing.T, ws *websocket.Conn) []usecase.Event {
	t.Helper()
	var events []usecase.Event
	sawAudio := false
	for {
		event := readEvent(t, ws)
		events = append(events, event)
		if event.Type == usecase.EventAudioChunk {
			sawAudio = true
		}
		if sawAudio && event.Type == usecase.EventState && string(event.Value) == "listening" {
			return events
		}
		if len(events) > 200 {
			t.Fatalf("no turn completion after %d events", len(events))
		}
	}
}

func TestConversationRoundTrip(t *testing.T) {
	server, _ := newTestServer(t)
	ws := dialTestServer(t, server)

	first := readEvent(t, ws)
	if first.Type != usecase.EventState || string(first.Value) != "listening" {
		t.Fatalf("first event = %s/%s, want state/listening", first.Type, first.Value)
	}

	speakUtterance(t, ws)
	events := collectTurn(t, ws)

	var finals, interims, replies, audio int
	finalIndex, firstReplyIndex, firstAudioIndex := -1, -1, -1
	for i, event := range events {
		switch event.Type {
		case usecase.EventTranscript:
			if event.IsFinal {
				finals++
				finalIndex = i
			} else {
				interims++
			}
		case usecase.EventReplyChunk:
			replies++
			if firstReplyIndex == -1 {
				firstReplyIndex = i
			}
		case usecase.EventAudioChunk:
			audio++
			if firstAudioIndex == -1 {
				firstAudioIndex = i
			}
			if len(event.Data) == 0 && !event.IsFinal {
				t.Error("audio chunk carried no data")
			}
		case usecase.EventError:
			t.Errorf("unexpected error event: %s %s", event.Code, event.Message)
		}
	}

	if finals != 1 {
		t.Errorf("final transcripts = %d, want 1", finals)
	}
	if interims < 1 {
		t.Errorf("interim transcripts = %d, want at least 1", interims)
	}
	if replies < 1 {
		t.Errorf("reply chunks = %d, want at least 1", replies)
	}
	if audio < 1 {
		t.Errorf("audio chunks = %d, want at least 1", audio)
	}
	if finalIndex > firstReplyIndex {
		t.Errorf("final transcript at %d after first reply chunk at %d", finalIndex, firstReplyIndex)
	}
	if firstReplyIndex > firstAudioIndex {
		t.Errorf("first reply chunk at %d after first audio chunk at %d", firstReplyIndex, firstAudioIndex)
	}
}

func TestStopClosesConnection(t *testing.T) {
	server, hub := newTestServer(t)
	ws := dialTestServer(t, server)

	readEvent(t, ws) // initial state

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	// The server winds the conversation down and sends a close frame.
	for {
		ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Errorf("close error = %v, want normal closure", err)
			}
			break
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.ActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ActiveSessions = %d, want 0", hub.ActiveSessions())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPauseSuppressesCapture(t *testing.T) {
	server, _ := newTestServer(t)
	ws := dialTestServer(t, server)

	readEvent(t, ws) // initial state

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"pause"}`)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	speakUtterance(t, ws)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"resume"}`)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	speakUtterance(t, ws)

	// Exactly one turn comes back. Had the paused speech leaked through,
	// its turn would complete first and more events would follow.
	events := collectTurn(t, ws)
	finals := 0
	for _, event := range events {
		if event.Type == usecase.EventTranscript && event.IsFinal {
			finals++
		}
	}
	if finals != 1 {
		t.Errorf("final transcripts = %d, want 1", finals)
	}

	ws.SetReadDeadline(time.Now().Add(700 * time.Millisecond))
	if _, payload, err := ws.ReadMessage(); err == nil {
		t.Fatalf("unexpected trailing event: %s", payload)
	}
}

func TestEndUtteranceCutsSilenceWait(t *testing.T) {
	server, _ := newTestServer(t)
	ws := dialTestServer(t, server)

	readEvent(t, ws) // initial state

	// Voiced audio only; without the control the segmenter would sit on
	// the open utterance until the silence timeout.
	writeFrames(t, ws, voicedFrame(), 5)
	time.Sleep(50 * time.Millisecond)
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"end_utterance"}`)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	events := collectTurn(t, ws)
	sawFinal := false
	for _, event := range events {
		if event.Type == usecase.EventTranscript && event.IsFinal {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Error("no final transcript after end_utterance")
	}
}

func TestMalformedControlIsIgnored(t *testing.T) {
	server, _ := newTestServer(t)
	ws := dialTestServer(t, server)

	readEvent(t, ws) // initial state

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{not json`)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"reboot"}`)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	// The connection must survive both; a full turn still works.
	speakUtterance(t, ws)
	events := collectTurn(t, ws)
	if len(events) == 0 {
		t.Fatal("no events after malformed controls")
	}
}

func TestReapIdleClosesQuietConversations(t *testing.T) {
	logger := zaptest.NewLogger(t)
	orch, err := usecase.NewOrchestrator(
		stt.NewScriptedSpeechToText(logger),
		llm.NewScriptedLanguageModel(logger),
		tts.NewScriptedTextToSpeech(logger),
		testPipelineConfig(),
		logger,
	)
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}

	hub := NewHub(orch, time.Millisecond, logger)
	conv := orch.StartConversation(context.Background(), "device-idle")
	client := &Client{
		hub:    hub,
		conv:   conv,
		send:   make(chan WriteData, 1),
		logger: logger,
	}
	hub.clients[conv.SessionID()] = client

	time.Sleep(20 * time.Millisecond)
	hub.reapIdle()

	select {
	case <-conv.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("idle conversation not closed by reap")
	}
}
