package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/wicara/domain/entities"
	"github.com/satriahrh/wicara/domain/repositories"
)

func collectChunks(t *testing.T, stream repositories.ReplyStream) []string {
	t.Helper()
	var got []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-stream.Chunks():
			if !ok {
				return got
			}
			got = append(got, chunk)
		case <-timeout:
			t.Fatalf("timed out waiting for chunks, have %d", len(got))
		}
	}
}

func completionChunk(t *testing.T, content string) string {
	t.Helper()
	payload := map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion.chunk",
		"model":   defaultOpenAIModel,
		"choices": []map[string]interface{}{
			{"index": 0, "delta": map[string]string{"content": content}},
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal chunk: %v", err)
	}
	return string(encoded)
}

func newOpenAIUnderTest(t *testing.T, handler http.Handler) *OpenAILanguageModel {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := NewOpenAILanguageModel(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL + "/v1",
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewOpenAILanguageModel() error = %v", err)
	}
	return adapter
}

func TestOpenAIStreamsDeltas(t *testing.T) {
	var gotRequest openai.ChatCompletionRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got, want := r.Header.Get("Authorization"), "Bearer test-key"; got != want {
			t.Errorf("Authorization = %q, want %q", got, want)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", completionChunk(t, "Halo! "))
		fmt.Fprintf(w, "data: %s\n\n", completionChunk(t, "Apa kabar?"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	adapter := newOpenAIUnderTest(t, handler)

	history := []entities.Message{
		{Role: entities.MessageRoleUser, Content: "halo"},
		{Role: entities.MessageRoleAssistant, Content: "Halo juga."},
	}
	stream, err := adapter.GenerateReply(context.Background(), history, "apa kabar")
	if err != nil {
		t.Fatalf("GenerateReply() error = %v", err)
	}

	got := collectChunks(t, stream)
	if err := stream.Err(); err != nil {
		t.Fatalf("stream.Err() = %v", err)
	}
	if want := []string{"Halo! ", "Apa kabar?"}; strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("chunks = %v, want %v", got, want)
	}

	if len(gotRequest.Messages) != 4 {
		t.Fatalf("request carried %d messages, want 4", len(gotRequest.Messages))
	}
	if gotRequest.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("first message role = %q, want system", gotRequest.Messages[0].Role)
	}
	if gotRequest.Messages[2].Role != openai.ChatMessageRoleAssistant {
		t.Errorf("history assistant role = %q, want assistant", gotRequest.Messages[2].Role)
	}
	last := gotRequest.Messages[3]
	if last.Role != openai.ChatMessageRoleUser || last.Content != "apa kabar" {
		t.Errorf("last message = %+v, want user %q", last, "apa kabar")
	}
	if !gotRequest.Stream {
		t.Error("request did not ask for streaming")
	}
}

func TestOpenAIMidStreamFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", completionChunk(t, "Halo"))
		fmt.Fprint(w, "data: {malformed\n\n")
	})
	adapter := newOpenAIUnderTest(t, handler)

	stream, err := adapter.GenerateReply(context.Background(), nil, "halo")
	if err != nil {
		t.Fatalf("GenerateReply() error = %v", err)
	}

	got := collectChunks(t, stream)
	if stream.Err() == nil {
		t.Fatal("stream.Err() = nil, want mid-stream failure")
	}
	if len(got) != 1 || got[0] != "Halo" {
		t.Errorf("chunks before failure = %v, want [Halo]", got)
	}
}

func TestOpenAIRequestFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"upstream down"}}`, http.StatusInternalServerError)
	})
	adapter := newOpenAIUnderTest(t, handler)

	if _, err := adapter.GenerateReply(context.Background(), nil, "halo"); err == nil {
		t.Fatal("GenerateReply() succeeded against a failing backend")
	}
}

func TestOpenAIRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAILanguageModel(OpenAIConfig{}, zaptest.NewLogger(t)); err == nil {
		t.Fatal("NewOpenAILanguageModel() accepted empty API key")
	}
}
