package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderHash      = "hash"

	SessionsMemory = "memory"
	SessionsSQLite = "sqlite"
)

type Config struct {
	LLMProvider       string
	EmbeddingProvider string
	GeminiAPIKey      string
	OpenAIAPIKey      string
	AnthropicAPIKey   string
	ChatModel         string
	EmbeddingModel    string

	DatabaseURL    string
	SessionBackend string
	HTTPPort       string
	LogLevel       string
	LogFile        string

	ProfilePath  string
	ExamplesPath string

	RetrievalK        int
	HistoryWindow     int
	GenerationTimeout time.Duration
	EmbeddingTimeout  time.Duration
	MaxTokens         int
	Temperature       float64
	EmbedRatePerSec   float64
	EmbedConcurrency  int
}

// Load reads the configuration from the environment, after applying a .env file
// when one exists.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv builds and validates a Config from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		LLMProvider:       strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
		EmbeddingProvider: strings.ToLower(getEnv("EMBEDDING_PROVIDER", ProviderGemini)),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		ChatModel:         getEnv("CHAT_MODEL", ""),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", ""),

		DatabaseURL:    getEnv("DATABASE_URL", "persona.db"),
		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", SessionsMemory)),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		LogFile:        getEnv("LOG_FILE", ""),

		ProfilePath:  getEnv("PROFILE_PATH", "data/personal_info.json"),
		ExamplesPath: getEnv("CONVERSATION_EXAMPLES_PATH", "data/conversation_examples.json"),

		RetrievalK:        getEnvAsInt("RETRIEVAL_K", 5),
		HistoryWindow:     getEnvAsInt("HISTORY_WINDOW", 10),
		GenerationTimeout: getEnvAsDuration("GENERATION_TIMEOUT", 30*time.Second),
		EmbeddingTimeout:  getEnvAsDuration("EMBEDDING_TIMEOUT", 10*time.Second),
		MaxTokens:         getEnvAsInt("MAX_TOKENS", 500),
		Temperature:       getEnvAsFloat("TEMPERATURE", 0.7),
		EmbedRatePerSec:   getEnvAsFloat("EMBED_RATE_PER_SEC", 25),
		EmbedConcurrency:  getEnvAsInt("EMBED_CONCURRENCY", 4),
	}
	return cfg, cfg.Validate()
}

// Validate checks provider names and that every selected provider has its key.
func (c Config) Validate() error {
	var errs []error

	switch c.LLMProvider {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		if c.apiKey(c.LLMProvider) == "" {
			errs = append(errs, fmt.Errorf("%s environment variable is required for LLM_PROVIDER=%s", keyVar(c.LLMProvider), c.LLMProvider))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider))
	}

	switch c.EmbeddingProvider {
	case ProviderHash:
	case ProviderGemini, ProviderOpenAI:
		if c.apiKey(c.EmbeddingProvider) == "" {
			errs = append(errs, fmt.Errorf("%s environment variable is required for EMBEDDING_PROVIDER=%s", keyVar(c.EmbeddingProvider), c.EmbeddingProvider))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported EMBEDDING_PROVIDER %q", c.EmbeddingProvider))
	}

	switch c.SessionBackend {
	case SessionsMemory, SessionsSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported SESSION_BACKEND %q", c.SessionBackend))
	}

	if c.RetrievalK < 0 {
		errs = append(errs, errors.New("RETRIEVAL_K cannot be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) apiKey(provider string) string {
	switch provider {
	case ProviderGemini:
		return c.GeminiAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	}
	return ""
}

func keyVar(provider string) string {
	return strings.ToUpper(provider) + "_API_KEY"
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
