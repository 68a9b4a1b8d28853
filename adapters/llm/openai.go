package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/wicara/domain/entities"
	"github.com/satriahrh/wicara/domain/repositories"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig holds configuration for the OpenAILanguageModel adapter
// Required fields:
// - APIKey: Your OpenAI API key
// Optional fields with defaults:
// - BaseURL: API base URL override, mainly for tests
// - Model: The model ID to use (default: "gpt-4o-mini")
// - MaxTokens: Reply length cap (default: 256)
// - SystemPrompt: Persona and style instruction
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	SystemPrompt string
}

// NewOpenAIConfigFromEnv creates a new OpenAIConfig from environment variables
func NewOpenAIConfigFromEnv() OpenAIConfig {
	config := OpenAIConfig{
		APIKey:       os.Getenv("OPENAI_API_KEY"),
		Model:        os.Getenv("OPENAI_MODEL"),
		SystemPrompt: os.Getenv("OPENAI_SYSTEM_PROMPT"),
	}

	if maxTokensStr := os.Getenv("OPENAI_MAX_TOKENS"); maxTokensStr != "" {
		if maxTokens, err := strconv.Atoi(maxTokensStr); err == nil && maxTokens > 0 {
			config.MaxTokens = maxTokens
		}
	}

	return config
}

// OpenAILanguageModel implements the LanguageModel interface using the
// OpenAI chat completions API
type OpenAILanguageModel struct {
	client       *openai.Client
	logger       *zap.Logger
	model        string
	maxTokens    int
	systemPrompt string
}

// Ensure OpenAILanguageModel implements the LanguageModel interface
var _ repositories.LanguageModel = (*OpenAILanguageModel)(nil)

// NewOpenAILanguageModel creates a new OpenAI language model instance
func NewOpenAILanguageModel(config OpenAIConfig, logger *zap.Logger) (*OpenAILanguageModel, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	model := config.Model
	if model == "" {
		model = defaultOpenAIModel
		logger.Info("Using default model", zap.String("model", model))
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxOutputTokens
	}

	systemPrompt := config.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	return &OpenAILanguageModel{
		client:       openai.NewClientWithConfig(clientConfig),
		logger:       logger,
		model:        model,
		maxTokens:    maxTokens,
		systemPrompt: systemPrompt,
	}, nil
}

// GenerateReply streams a reply to userText given the conversation history.
func (o *OpenAILanguageModel) GenerateReply(ctx context.Context, history []entities.Message, userText string) (repositories.ReplyStream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: o.systemPrompt,
	})
	for _, message := range history {
		role := openai.ChatMessageRoleUser
		if message.Role == entities.MessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: message.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userText,
	})

	request := openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: o.maxTokens,
		Stream:    true,
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion stream: %w", err)
	}

	o.logger.Debug("OpenAI generation started",
		zap.String("model", o.model),
		zap.Int("historyLength", len(history)))

	out := &openaiStream{chunks: make(chan string, 8)}
	go out.run(ctx, stream)
	return out, nil
}

// openaiStream adapts a ChatCompletionStream to ReplyStream.
type openaiStream struct {
	chunks chan string

	mu  sync.Mutex
	err error
}

func (s *openaiStream) Chunks() <-chan string {
	return s.chunks
}

func (s *openaiStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *openaiStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *openaiStream) run(ctx context.Context, stream *openai.ChatCompletionStream) {
	defer close(s.chunks)
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			s.fail(fmt.Errorf("failed to receive completion: %w", err))
			return
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		select {
		case s.chunks <- delta:
		case <-ctx.Done():
			s.fail(ctx.Err())
			return
		}
	}
}
