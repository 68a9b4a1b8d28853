// Package config binds server-level settings from environment variables.
// Adapter credentials stay with their adapters (NewXConfigFromEnv); this
// package covers everything the composition root needs before it can
// choose adapters and start serving.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/satriahrh/wicara/domain/repositories"
	"github.com/satriahrh/wicara/internal/vad"
	"github.com/satriahrh/wicara/usecase"
)

// Provider names accepted by the STT_PROVIDER, LLM_PROVIDER, and
// TTS_PROVIDER environment variables.
const (
	STTGoogle   = "google"
	STTDeepgram = "deepgram"

	LLMGemini = "gemini"
	LLMOpenAI = "openai"

	TTSElevenLabs       = "elevenlabs"
	TTSElevenLabsStream = "elevenlabs_stream"

	// Scripted selects the keyless in-process adapter for any of the
	// three stages. It is the default so a fresh checkout serves
	// conversations without credentials.
	Scripted = "scripted"
)

const (
	defaultPort               = "8080"
	defaultSessionIdleTimeout = 5 * time.Minute
)

// Config holds the server-level configuration.
//
// Required environment variables:
// - JWT_SECRET: HMAC secret for device token signing
//
// Optional environment variables:
// - PORT: HTTP listen port (default: 8080)
// - JWT_TOKEN_TTL: device token lifetime, Go duration (default: 24h)
// - STT_PROVIDER: google | deepgram | scripted (default: scripted)
// - LLM_PROVIDER: gemini | openai | scripted (default: scripted)
// - TTS_PROVIDER: elevenlabs | elevenlabs_stream | scripted (default: scripted)
// - SESSION_IDLE_TIMEOUT: idle conversation reaping, Go duration (default: 5m)
// - TRANSCRIBE_TIMEOUT, GENERATE_TIMEOUT, SYNTHESIZE_TIMEOUT: per-stage
//   deadlines, Go durations (defaults: 10s, 30s, 30s)
// - MAX_CONTEXT_MESSAGES: history window for generation (default: 20)
// - BARGE_IN_POLICY: immediate | after_audio | disabled (default: after_audio)
// - FRAME_BUFFER_CAP, EVENT_BUFFER_CAP: channel capacities (defaults: 256, 512)
// - VAD_ENERGY_THRESHOLD: RMS speech threshold (default: 500)
// - VAD_ONSET_FRAMES: consecutive voiced frames to open (default: 3)
// - VAD_SILENCE_TIMEOUT: trailing silence to close, Go duration (default: 1.2s)
// - VAD_MAX_UTTERANCE: utterance hard cap, Go duration (default: 30s)
// - AUDIO_SAMPLE_RATE, AUDIO_ENCODING, AUDIO_LANGUAGE: inbound audio
//   format (defaults: 16000, LINEAR16, en-US)
type Config struct {
	Port               string
	JWTSecret          string
	JWTTokenTTL        time.Duration
	STTProvider        string
	LLMProvider        string
	TTSProvider        string
	SessionIdleTimeout time.Duration

	Pipeline usecase.Config
}

// Load reads the configuration from the environment. Malformed optional
// values fall back to their defaults; Validate catches the rest.
func Load() Config {
	cfg := Config{
		Port:               envString("PORT", defaultPort),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTTokenTTL:        envDuration("JWT_TOKEN_TTL", 0),
		STTProvider:        envString("STT_PROVIDER", Scripted),
		LLMProvider:        envString("LLM_PROVIDER", Scripted),
		TTSProvider:        envString("TTS_PROVIDER", Scripted),
		SessionIdleTimeout: envDuration("SESSION_IDLE_TIMEOUT", defaultSessionIdleTimeout),
	}

	cfg.Pipeline = usecase.Config{
		TranscribeTimeout:  envDuration("TRANSCRIBE_TIMEOUT", 0),
		GenerateTimeout:    envDuration("GENERATE_TIMEOUT", 0),
		SynthesizeTimeout:  envDuration("SYNTHESIZE_TIMEOUT", 0),
		MaxContextMessages: envInt("MAX_CONTEXT_MESSAGES", 0),
		BargeIn:            usecase.BargeInPolicy(os.Getenv("BARGE_IN_POLICY")),
		FrameBufferCap:     envInt("FRAME_BUFFER_CAP", 0),
		EventBufferCap:     envInt("EVENT_BUFFER_CAP", 0),
		VAD: vad.Config{
			EnergyThreshold: envFloat("VAD_ENERGY_THRESHOLD", 0),
			OnsetFrames:     envInt("VAD_ONSET_FRAMES", 0),
			SilenceTimeout:  envDuration("VAD_SILENCE_TIMEOUT", 0),
			MaxUtterance:    envDuration("VAD_MAX_UTTERANCE", 0),
		},
		Audio: repositories.AudioConfig{
			SampleRate: envInt("AUDIO_SAMPLE_RATE", 0),
			Encoding:   os.Getenv("AUDIO_ENCODING"),
			Language:   os.Getenv("AUDIO_LANGUAGE"),
		},
	}

	return cfg
}

// Validate checks the server-level fields. Pipeline settings are
// validated separately when the orchestrator is built, so a bad
// BARGE_IN_POLICY still fails startup, just one step later.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}

	switch c.STTProvider {
	case STTGoogle, STTDeepgram, Scripted:
	default:
		return fmt.Errorf("unknown STT provider %q", c.STTProvider)
	}
	switch c.LLMProvider {
	case LLMGemini, LLMOpenAI, Scripted:
	default:
		return fmt.Errorf("unknown LLM provider %q", c.LLMProvider)
	}
	switch c.TTSProvider {
	case TTSElevenLabs, TTSElevenLabsStream, Scripted:
	default:
		return fmt.Errorf("unknown TTS provider %q", c.TTSProvider)
	}

	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("session idle timeout must be positive, got %v", c.SessionIdleTimeout)
	}

	return nil
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
