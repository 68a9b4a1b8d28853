package vad

import (
	"encoding/binary"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/wicara/domain/entities"
)

const testFrameDuration = 20 * time.Millisecond

// frameGen fabricates a frame stream with a marching clock, 20 ms apart.
type frameGen struct {
	seq uint64
	now time.Time
}

func newFrameGen() *frameGen {
	return &frameGen{now: time.Unix(1700000000, 0)}
}

func (g *frameGen) next(data []byte) entities.AudioFrame {
	g.seq++
	g.now = g.now.Add(testFrameDuration)
	return entities.AudioFrame{Seq: g.seq, Data: data, ReceivedAt: g.now}
}

// pcmFrame builds 20 ms of 16 kHz little-endian PCM at a flat amplitude.
func pcmFrame(amplitude int16) []byte {
	const samples = 320
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(amplitude))
	}
	return data
}

func voicedFrame() []byte { return pcmFrame(4000) }
func silentFrame() []byte { return pcmFrame(0) }

func feed(t *testing.T, s *Segmenter, g *frameGen, data []byte, count int) []Event {
	t.Helper()
	var events []Event
	for i := 0; i < count; i++ {
		events = append(events, s.ProcessFrame(g.next(data))...)
	}
	return events
}

func countType(events []Event, typ EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestOnsetRequiresConsecutiveVoicedFrames(t *testing.T) {
	s := NewSegmenter("sess-1", DefaultConfig(), zap.NewNop())
	g := newFrameGen()

	var events []Event
	// Two voiced frames, broken by silence, never reach the onset of 3.
	for i := 0; i < 5; i++ {
		events = append(events, feed(t, s, g, voicedFrame(), 2)...)
		events = append(events, feed(t, s, g, silentFrame(), 1)...)
	}

	if len(events) != 0 {
		t.Errorf("expected no boundary events for sub-onset bursts, got %d", len(events))
	}
}

func TestNoSpeechEndBelowSilenceTimeout(t *testing.T) {
	s := NewSegmenter("sess-1", DefaultConfig(), zap.NewNop())
	g := newFrameGen()

	var events []Event
	events = append(events, feed(t, s, g, voicedFrame(), 50)...) // 1 s speech
	// Three pauses of 800 ms, each under the 1200 ms timeout.
	for i := 0; i < 3; i++ {
		events = append(events, feed(t, s, g, silentFrame(), 40)...)
		events = append(events, feed(t, s, g, voicedFrame(), 50)...)
	}

	if got := countType(events, EventSpeechStart); got != 1 {
		t.Errorf("speech starts = %d, want 1", got)
	}
	if got := countType(events, EventSpeechEnd); got != 0 {
		t.Errorf("speech ends = %d, want 0 (no silence gap reached the timeout)", got)
	}
}

func TestVoicedThenSilenceEmitsExactlyOneSpeechEnd(t *testing.T) {
	s := NewSegmenter("sess-1", DefaultConfig(), zap.NewNop())
	g := newFrameGen()

	var events []Event
	events = append(events, feed(t, s, g, voicedFrame(), 150)...) // 3 s speech
	events = append(events, feed(t, s, g, silentFrame(), 65)...)  // 1.3 s silence

	if got := countType(events, EventSpeechStart); got != 1 {
		t.Errorf("speech starts = %d, want 1", got)
	}
	if got := countType(events, EventSpeechEnd); got != 1 {
		t.Fatalf("speech ends = %d, want exactly 1", got)
	}

	var closed *entities.Utterance
	for _, ev := range events {
		if ev.Type == EventSpeechEnd {
			closed = ev.Utterance
		}
	}
	if closed.Status != entities.UtteranceClosed {
		t.Errorf("utterance status = %s, want %s", closed.Status, entities.UtteranceClosed)
	}
	// All 150 voiced frames (640 bytes each) must be captured, including
	// the onset debounce frames.
	if len(closed.Audio) < 150*640 {
		t.Errorf("utterance audio = %d bytes, want >= %d", len(closed.Audio), 150*640)
	}
}

func TestExplicitEndUtteranceIsIdempotent(t *testing.T) {
	s := NewSegmenter("sess-1", DefaultConfig(), zap.NewNop())
	g := newFrameGen()

	events := feed(t, s, g, voicedFrame(), 10)
	if got := countType(events, EventSpeechStart); got != 1 {
		t.Fatalf("speech starts = %d, want 1", got)
	}

	utterance, ok := s.EndUtterance()
	if !ok {
		t.Fatal("EndUtterance() on an open utterance returned ok=false")
	}
	if utterance.Status != entities.UtteranceClosed {
		t.Errorf("utterance status = %s, want %s", utterance.Status, entities.UtteranceClosed)
	}

	if _, ok := s.EndUtterance(); ok {
		t.Error("second EndUtterance() with no new audio must be a no-op")
	}
}

func TestContinuedSpeechAfterExplicitEndIsInterrupt(t *testing.T) {
	s := NewSegmenter("sess-1", DefaultConfig(), zap.NewNop())
	g := newFrameGen()

	feed(t, s, g, voicedFrame(), 10)
	if _, ok := s.EndUtterance(); !ok {
		t.Fatal("EndUtterance() returned ok=false")
	}

	// The speaker never paused: the next confirmed onset is a
	// continuation that interrupts the in-flight turn.
	events := feed(t, s, g, voicedFrame(), 5)
	if got := countType(events, EventSpeechInterrupt); got != 1 {
		t.Errorf("speech interrupts = %d, want 1", got)
	}
	if got := countType(events, EventSpeechStart); got != 0 {
		t.Errorf("speech starts = %d, want 0 for an unbroken voiced run", got)
	}
}

func TestSilenceAfterExplicitEndYieldsFreshStart(t *testing.T) {
	s := NewSegmenter("sess-1", DefaultConfig(), zap.NewNop())
	g := newFrameGen()

	feed(t, s, g, voicedFrame(), 10)
	if _, ok := s.EndUtterance(); !ok {
		t.Fatal("EndUtterance() returned ok=false")
	}

	feed(t, s, g, silentFrame(), 5)
	events := feed(t, s, g, voicedFrame(), 5)
	if got := countType(events, EventSpeechStart); got != 1 {
		t.Errorf("speech starts = %d, want 1 after intervening silence", got)
	}
	if got := countType(events, EventSpeechInterrupt); got != 0 {
		t.Errorf("speech interrupts = %d, want 0 after intervening silence", got)
	}
}

func TestMaxUtteranceForcesClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUtterance = 2 * time.Second
	s := NewSegmenter("sess-1", cfg, zap.NewNop())
	g := newFrameGen()

	events := feed(t, s, g, voicedFrame(), 150) // 3 s without silence
	if got := countType(events, EventSpeechEnd); got != 1 {
		t.Errorf("speech ends = %d, want 1 forced by the max-utterance cap", got)
	}
}

func TestResetCancelsOpenUtterance(t *testing.T) {
	s := NewSegmenter("sess-1", DefaultConfig(), zap.NewNop())
	g := newFrameGen()

	feed(t, s, g, voicedFrame(), 10)

	utterance, ok := s.Reset()
	if !ok {
		t.Fatal("Reset() with an open utterance returned ok=false")
	}
	if utterance.Status != entities.UtteranceCancelled {
		t.Errorf("utterance status = %s, want %s", utterance.Status, entities.UtteranceCancelled)
	}

	if _, ok := s.Reset(); ok {
		t.Error("Reset() with nothing open must return ok=false")
	}

	// A fresh onset after reset is a start, not an interrupt.
	events := feed(t, s, g, voicedFrame(), 5)
	if got := countType(events, EventSpeechStart); got != 1 {
		t.Errorf("speech starts = %d, want 1 after reset", got)
	}
}

func TestRMS(t *testing.T) {
	if got := rms(pcmFrame(0)); got != 0 {
		t.Errorf("rms(silence) = %f, want 0", got)
	}
	if got := rms(pcmFrame(4000)); got < 3999 || got > 4001 {
		t.Errorf("rms(flat 4000) = %f, want ~4000", got)
	}
	if got := rms([]byte{0x01}); got != 0 {
		t.Errorf("rms(single byte) = %f, want 0", got)
	}
}
