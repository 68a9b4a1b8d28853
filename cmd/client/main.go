// Dev client: authenticates a device, streams a WAV file (or a synthetic
// tone) over the conversation WebSocket, and prints the events that come
// back. Useful for poking at a running server without real hardware.
package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/wicara/usecase"
)

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "server base URL")
		serial    = flag.String("serial", "WICARA001", "device serial number")
		secret    = flag.String("secret", "secret123", "device secret key")
		wavPath   = flag.String("wav", "", "WAV file to stream; synthetic tone when empty")
		frameMs   = flag.Int("frame-ms", 20, "frame duration in milliseconds")
		listenFor = flag.Duration("listen-for", 10*time.Second, "how long to wait for the reply before stopping")
	)
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	token, err := authenticate(*serverURL, *serial, *secret)
	if err != nil {
		logger.Fatal("Device authentication failed", zap.Error(err))
	}
	logger.Info("Device authenticated")

	wsURL := "ws" + strings.TrimPrefix(*serverURL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		logger.Fatal("WebSocket connection failed", zap.Error(err))
	}
	defer conn.Close()

	done := make(chan struct{})
	go printEvents(conn, done)

	sampleRate := 16000
	var audio []byte
	if *wavPath != "" {
		audio, sampleRate, err = readWAV(*wavPath)
		if err != nil {
			logger.Fatal("Failed to read WAV file", zap.String("path", *wavPath), zap.Error(err))
		}
		logger.Info("Streaming WAV file",
			zap.String("path", *wavPath),
			zap.Int("sample_rate", sampleRate),
			zap.Int("bytes", len(audio)))
	} else {
		audio = syntheticTone(sampleRate, 2*time.Second)
		logger.Info("Streaming synthetic tone", zap.Int("bytes", len(audio)))
	}

	frameBytes := sampleRate * 2 * *frameMs / 1000
	if err := streamFrames(conn, audio, frameBytes, time.Duration(*frameMs)*time.Millisecond); err != nil {
		logger.Fatal("Failed to stream audio", zap.Error(err))
	}

	// Force the utterance closed rather than feeding trailing silence.
	if err := sendControl(conn, "end_utterance"); err != nil {
		logger.Fatal("Failed to send end_utterance", zap.Error(err))
	}

	select {
	case <-done:
		logger.Info("Server closed the connection")
		return
	case <-time.After(*listenFor):
	}

	if err := sendControl(conn, "stop"); err != nil {
		logger.Fatal("Failed to send stop", zap.Error(err))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("No close frame after stop")
	}
	logger.Info("Session ended")
}

// authenticate trades the serial number and secret key for a JWT.
func authenticate(serverURL, serial, secret string) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"serial_number": serial,
		"secret_key":    secret,
	})
	resp, err := http.Post(serverURL+"/api/v1/device/auth", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("auth status %d: %s", resp.StatusCode, body)
	}

	var auth struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", err
	}
	return auth.Token, nil
}

func streamFrames(conn *websocket.Conn, audio []byte, frameBytes int, pace time.Duration) error {
	ticker := time.NewTicker(pace)
	defer ticker.Stop()

	for offset := 0; offset < len(audio); offset += frameBytes {
		end := offset + frameBytes
		if end > len(audio) {
			end = len(audio)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[offset:end]); err != nil {
			return err
		}
		<-ticker.C
	}
	return nil
}

func sendControl(conn *websocket.Conn, control string) error {
	return conn.WriteJSON(map[string]string{"type": control})
}

// printEvents dumps the server's event stream to stdout until the
// connection closes.
func printEvents(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var event usecase.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			fmt.Printf("?? %s\n", payload)
			continue
		}

		switch event.Type {
		case usecase.EventTranscript:
			kind := "interim"
			if event.IsFinal {
				kind = "final"
			}
			fmt.Printf("transcript (%s): %s\n", kind, event.Text)
		case usecase.EventReplyChunk:
			fmt.Printf("reply_chunk: %s\n", event.Text)
		case usecase.EventAudioChunk:
			fmt.Printf("audio_chunk: %d bytes (final=%v)\n", len(event.Data), event.IsFinal)
		case usecase.EventError:
			fmt.Printf("error [%s]: %s\n", event.Code, event.Message)
		case usecase.EventState:
			fmt.Printf("state: %s\n", event.Value)
		default:
			fmt.Printf("%s\n", payload)
		}
	}
}

// syntheticTone builds voiced-looking PCM: a 440 Hz sine loud enough to
// trip the segmenter's energy threshold.
func syntheticTone(sampleRate int, duration time.Duration) []byte {
	samples := int(float64(sampleRate) * duration.Seconds())
	audio := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		value := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(audio[i*2:], uint16(value))
	}
	return audio
}

// readWAV extracts the PCM payload and sample rate from a RIFF/WAVE file.
func readWAV(path string) ([]byte, int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	sampleRate := 0
	offset := 12
	for offset+8 <= len(raw) {
		chunkID := string(raw[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(raw[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(raw) {
			return nil, 0, fmt.Errorf("truncated %s chunk", chunkID)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, fmt.Errorf("short fmt chunk")
			}
			audioFormat := binary.LittleEndian.Uint16(raw[body : body+2])
			bitsPerSample := binary.LittleEndian.Uint16(raw[body+14 : body+16])
			if audioFormat != 1 || bitsPerSample != 16 {
				return nil, 0, fmt.Errorf("want 16-bit PCM, got format %d with %d bits", audioFormat, bitsPerSample)
			}
			sampleRate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
		case "data":
			if sampleRate == 0 {
				return nil, 0, fmt.Errorf("data chunk before fmt chunk")
			}
			return raw[body : body+chunkSize], sampleRate, nil
		}

		// Chunks are word-aligned.
		offset = body + chunkSize + chunkSize%2
	}

	return nil, 0, fmt.Errorf("no data chunk found")
}
