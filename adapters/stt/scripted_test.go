package stt

import (
	"bytes"
	"context"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestScriptedTranscriptionBySize(t *testing.T) {
	tests := []struct {
		name      string
		audioSize int
		want      string
	}{
		{"short burst", 512, "Hai"},
		{"one phrase", 20000, "Halo, kamu bisa mendengarku?"},
		{"longer span", 60000, "Terima kasih sudah mendengarkan."},
		{"full story", 120000, "Halo, apa kabar? Aku ingin bercerita tentang hari ini."},
	}

	adapter := NewScriptedSpeechToText(zaptest.NewLogger(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, err := adapter.Transcribe(context.Background(), bytes.Repeat([]byte{1}, tt.audioSize), testAudioConfig)
			if err != nil {
				t.Fatalf("Transcribe() error = %v", err)
			}

			got := collectTranscripts(t, stream)
			if len(got) == 0 {
				t.Fatal("no transcripts received")
			}
			final := got[len(got)-1]
			if !final.IsFinal {
				t.Errorf("last transcript not final: %+v", final)
			}
			if final.Text != tt.want {
				t.Errorf("final text = %q, want %q", final.Text, tt.want)
			}
			for _, interim := range got[:len(got)-1] {
				if interim.IsFinal {
					t.Errorf("interim flagged final: %+v", interim)
				}
			}
		})
	}
}

func TestScriptedRejectsEmptyAudio(t *testing.T) {
	adapter := NewScriptedSpeechToText(zaptest.NewLogger(t))
	if _, err := adapter.Transcribe(context.Background(), nil, testAudioConfig); err == nil {
		t.Fatal("Transcribe() accepted empty audio")
	}
}
