package llm

import (
	"context"
	"fmt"
	"log/slog"

	"persona.dev/recruiter-persona/internal/config"
	"persona.dev/recruiter-persona/internal/core"
	"persona.dev/recruiter-persona/internal/utils"
)

// Backends is the embedder and generator selected by configuration.
type Backends struct {
	Embedder  core.Embedder
	Generator core.Generator
	closers   []func() error
}

// Close releases any client connections.
func (b *Backends) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewBackends builds the configured providers. A Gemini client is shared when it
// serves both roles.
func NewBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}
	var gemini *Gemini
	getGemini := func() (*Gemini, error) {
		if gemini != nil {
			return gemini, nil
		}
		g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.ChatModel, cfg.EmbeddingModel, logger)
		if err != nil {
			return nil, err
		}
		gemini = g
		b.closers = append(b.closers, g.Close)
		return g, nil
	}

	switch cfg.LLMProvider {
	case config.ProviderGemini:
		g, err := getGemini()
		if err != nil {
			return nil, err
		}
		b.Generator = g
	case config.ProviderOpenAI:
		b.Generator = NewOpenAI(cfg.OpenAIAPIKey, cfg.ChatModel, cfg.EmbeddingModel)
	case config.ProviderAnthropic:
		b.Generator = NewAnthropic(cfg.AnthropicAPIKey, cfg.ChatModel)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}

	switch cfg.EmbeddingProvider {
	case config.ProviderGemini:
		g, err := getGemini()
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Embedder = g
	case config.ProviderOpenAI:
		b.Embedder = NewOpenAI(cfg.OpenAIAPIKey, cfg.ChatModel, cfg.EmbeddingModel)
	case config.ProviderHash:
		b.Embedder = utils.NewHashEmbedder(0)
	default:
		_ = b.Close()
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.EmbeddingProvider)
	}

	logger.Info("model backends ready", "llm", cfg.LLMProvider, "embeddings", b.Embedder.Name())
	return b, nil
}
