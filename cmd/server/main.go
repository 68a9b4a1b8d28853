package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/wicara/adapters/llm"
	"github.com/satriahrh/wicara/adapters/memory"
	"github.com/satriahrh/wicara/adapters/mongo"
	"github.com/satriahrh/wicara/adapters/stt"
	"github.com/satriahrh/wicara/adapters/tts"
	"github.com/satriahrh/wicara/domain/repositories"
	"github.com/satriahrh/wicara/internal/api"
	"github.com/satriahrh/wicara/internal/auth"
	"github.com/satriahrh/wicara/internal/config"
	"github.com/satriahrh/wicara/internal/websocket"
	"github.com/satriahrh/wicara/usecase"
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	speechToText, err := buildSpeechToText(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize transcription adapter", zap.Error(err))
	}
	languageModel, err := buildLanguageModel(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize generation adapter", zap.Error(err))
	}
	textToSpeech, err := buildTextToSpeech(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize synthesis adapter", zap.Error(err))
	}

	orchestrator, err := usecase.NewOrchestrator(speechToText, languageModel, textToSpeech, cfg.Pipeline, logger)
	if err != nil {
		logger.Fatal("Invalid pipeline configuration", zap.Error(err))
	}

	deviceRepo, closeDevices := buildDeviceRepository(logger)
	defer closeDevices()

	authenticator, err := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTTokenTTL)
	if err != nil {
		logger.Fatal("Failed to initialize authenticator", zap.Error(err))
	}

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	hub := websocket.NewHub(orchestrator, cfg.SessionIdleTimeout, logger)
	go hub.Run()

	api.InitRoutes(e, hub, deviceRepo, authenticator, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("stt_provider", cfg.STTProvider),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.String("tts_provider", cfg.TTSProvider))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func buildSpeechToText(cfg config.Config, logger *zap.Logger) (repositories.SpeechToText, error) {
	switch cfg.STTProvider {
	case config.STTGoogle:
		return stt.NewGoogleSpeechToText(logger), nil
	case config.STTDeepgram:
		return stt.NewDeepgramSpeechToText(stt.NewDeepgramConfigFromEnv(), logger)
	default:
		return stt.NewScriptedSpeechToText(logger), nil
	}
}

func buildLanguageModel(cfg config.Config, logger *zap.Logger) (repositories.LanguageModel, error) {
	switch cfg.LLMProvider {
	case config.LLMGemini:
		return llm.NewGeminiLanguageModel(llm.NewGeminiConfigFromEnv(), logger)
	case config.LLMOpenAI:
		return llm.NewOpenAILanguageModel(llm.NewOpenAIConfigFromEnv(), logger)
	default:
		return llm.NewScriptedLanguageModel(logger), nil
	}
}

func buildTextToSpeech(cfg config.Config, logger *zap.Logger) (repositories.TextToSpeech, error) {
	switch cfg.TTSProvider {
	case config.TTSElevenLabs:
		return tts.NewElevenLabsTTS(tts.NewElevenLabsConfigFromEnv(), logger)
	case config.TTSElevenLabsStream:
		return tts.NewElevenLabsStreamingTTS(tts.NewElevenLabsConfigFromEnv(), logger)
	default:
		return tts.NewScriptedTextToSpeech(logger), nil
	}
}

// buildDeviceRepository picks Mongo when a URI is configured and falls
// back to the seeded in-memory registry for development.
func buildDeviceRepository(logger *zap.Logger) (repositories.DeviceRepository, func()) {
	if os.Getenv("MONGODB_URI") == "" {
		logger.Info("MONGODB_URI not set, using in-memory device registry")
		return memory.NewDevDeviceRepository(logger), func() {}
	}

	client, err := mongo.NewClient(logger)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	closeClient := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(ctx); err != nil {
			logger.Error("Failed to close MongoDB connection", zap.Error(err))
		}
	}
	return mongo.NewDeviceRepository(client.Database), closeClient
}
