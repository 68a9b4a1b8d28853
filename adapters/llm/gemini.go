package llm

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/wicara/domain/entities"
	"github.com/satriahrh/wicara/domain/repositories"
)

const (
	defaultGeminiModel     = "gemini-2.0-flash"
	defaultTemperature     = 0.7
	defaultTopP            = 0.95
	defaultTopK            = 40
	defaultMaxOutputTokens = 256
)

// defaultSystemPrompt keeps replies speakable. Synthesis reads the text
// verbatim, so markup and long enumerations are out.
const defaultSystemPrompt = "You are a friendly voice assistant. Your replies are " +
	"spoken aloud, so answer in short conversational sentences without " +
	"markup, lists, or emoji."

// geminiSafetySettings is the hardcoded safety posture for generated replies.
var geminiSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
}

// GeminiConfig holds configuration for the GeminiLanguageModel adapter
// Required fields:
// - APIKey: Your Google AI API key
// Optional fields with defaults:
// - Model: The model ID to use (default: "gemini-2.0-flash")
// - Temperature: Sampling temperature between 0 and 1 (default: 0.7)
// - TopP: Nucleus sampling value between 0 and 1 (default: 0.95)
// - TopK: Top-k sampling value (default: 40)
// - MaxOutputTokens: Reply length cap (default: 256)
// - SystemPrompt: Persona and style instruction
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int
	SystemPrompt    string
}

// NewGeminiConfigFromEnv creates a new GeminiConfig from environment variables
func NewGeminiConfigFromEnv() GeminiConfig {
	config := GeminiConfig{
		APIKey:       os.Getenv("GEMINI_API_KEY"),
		Model:        os.Getenv("GEMINI_MODEL"),
		SystemPrompt: os.Getenv("GEMINI_SYSTEM_PROMPT"),
	}

	if temperatureStr := os.Getenv("GEMINI_TEMPERATURE"); temperatureStr != "" {
		if temperature, err := strconv.ParseFloat(temperatureStr, 32); err == nil {
			config.Temperature = float32(temperature)
		}
	}

	if maxTokensStr := os.Getenv("GEMINI_MAX_OUTPUT_TOKENS"); maxTokensStr != "" {
		if maxTokens, err := strconv.Atoi(maxTokensStr); err == nil && maxTokens > 0 {
			config.MaxOutputTokens = maxTokens
		}
	}

	return config
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}

	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}

	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}

	if config.TopK < 0 {
		return fmt.Errorf("topK must be positive, got %f", config.TopK)
	}

	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("maxOutputTokens must be positive, got %d", config.MaxOutputTokens)
	}

	return nil
}

// GeminiLanguageModel implements the LanguageModel interface using Google's
// Gemini API
type GeminiLanguageModel struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	temperature     float32
	topP            float32
	topK            float32
	maxOutputTokens int
	systemPrompt    string
}

// Ensure GeminiLanguageModel implements the LanguageModel interface
var _ repositories.LanguageModel = (*GeminiLanguageModel)(nil)

// NewGeminiLanguageModel creates a new Gemini language model instance
func NewGeminiLanguageModel(config GeminiConfig, logger *zap.Logger) (*GeminiLanguageModel, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default model", zap.String("model", model))
	}

	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	topP := config.TopP
	if topP == 0 {
		topP = defaultTopP
	}

	topK := config.TopK
	if topK == 0 {
		topK = defaultTopK
	}

	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}

	systemPrompt := config.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	return &GeminiLanguageModel{
		client:          client,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		topP:            topP,
		topK:            topK,
		maxOutputTokens: maxOutputTokens,
		systemPrompt:    systemPrompt,
	}, nil
}

// GenerateReply streams a reply to userText given the conversation history.
func (g *GeminiLanguageModel) GenerateReply(ctx context.Context, history []entities.Message, userText string) (repositories.ReplyStream, error) {
	contents := make([]*genai.Content, 0, len(history)+2)

	// The system instruction rides as the first user message.
	contents = append(contents, genai.NewContentFromText(g.systemPrompt, genai.RoleUser))
	for _, message := range history {
		role := genai.RoleUser
		if message.Role == entities.MessageRoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(message.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(userText, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		SafetySettings:  geminiSafetySettings,
		Temperature:     genai.Ptr(g.temperature),
		TopP:            genai.Ptr(g.topP),
		TopK:            genai.Ptr(g.topK),
		MaxOutputTokens: int32(g.maxOutputTokens),
	}

	g.logger.Debug("Gemini generation started",
		zap.String("model", g.model),
		zap.Int("historyLength", len(history)))

	stream := &geminiStream{chunks: make(chan string, 8)}
	go stream.run(ctx, g.client, g.model, contents, config)
	return stream, nil
}

// geminiStream adapts a GenerateContentStream iterator to ReplyStream.
type geminiStream struct {
	chunks chan string

	mu  sync.Mutex
	err error
}

func (s *geminiStream) Chunks() <-chan string {
	return s.chunks
}

func (s *geminiStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *geminiStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *geminiStream) run(ctx context.Context, client *genai.Client, model string, contents []*genai.Content, config *genai.GenerateContentConfig) {
	defer close(s.chunks)

	for response, err := range client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			s.fail(fmt.Errorf("failed to generate content: %w", err))
			return
		}
		if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
			continue
		}
		for _, part := range response.Candidates[0].Content.Parts {
			if part.Text == "" {
				continue
			}
			select {
			case s.chunks <- part.Text:
			case <-ctx.Done():
				s.fail(ctx.Err())
				return
			}
		}
	}
}
