// Package llm adapts hosted model APIs to the core Embedder and Generator interfaces.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"persona.dev/recruiter-persona/internal/core"
	"persona.dev/recruiter-persona/internal/store"
)

const (
	defaultGeminiChatModel      = "gemini-1.5-flash-latest"
	defaultGeminiEmbeddingModel = "text-embedding-004"
)

// ErrNoUserTurn is returned when a prompt does not end with a user message.
var ErrNoUserTurn = errors.New("prompt must end with a user message")

// Gemini serves both embeddings and chat completions from one client.
type Gemini struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
	logger         *slog.Logger
}

func NewGemini(ctx context.Context, apiKey, chatModel, embeddingModel string, logger *slog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if chatModel == "" {
		chatModel = defaultGeminiChatModel
	}
	if embeddingModel == "" {
		embeddingModel = defaultGeminiEmbeddingModel
	}
	return &Gemini{
		client:         client,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		logger:         logger.With("component", "gemini"),
	}, nil
}

func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("failed to close GenAI client: %w", err)
	}
	g.logger.Debug("GenAI client closed")
	return nil
}

func (g *Gemini) Name() string { return "gemini/" + g.embeddingModel }

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt core.Prompt, params core.SamplingParams) (string, error) {
	system, history, err := geminiContents(prompt)
	if err != nil {
		return "", err
	}

	model := g.client.GenerativeModel(g.chatModel)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	maxTokens, temp := params.MaxTokens, params.Temperature
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	chat := model.StartChat()
	last := history[len(history)-1]
	chat.History = history[:len(history)-1]

	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini response had no candidates")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		} else {
			g.logger.Debug("ignoring non-text response part", "type", fmt.Sprintf("%T", part))
		}
	}
	return out.String(), nil
}

// geminiContents maps a prompt onto Gemini's user/model turns. System messages in
// the window are folded into the system instruction.
func geminiContents(prompt core.Prompt) (string, []*genai.Content, error) {
	system := []string{}
	if prompt.System != "" {
		system = append(system, prompt.System)
	}

	var history []*genai.Content
	for _, m := range prompt.Messages {
		switch m.Role {
		case store.RoleSystem:
			system = append(system, m.Content)
			continue
		case store.RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}

	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return "", nil, ErrNoUserTurn
	}
	return strings.Join(system, "\n\n"), history, nil
}
