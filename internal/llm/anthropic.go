package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"persona.dev/recruiter-persona/internal/core"
	"persona.dev/recruiter-persona/internal/store"
)

const defaultAnthropicModel = anthropic.ModelClaude3_5Sonnet20241022

// Anthropic generates replies with the Messages API. It has no embedding
// endpoint, so it is paired with another Embedder.
type Anthropic struct {
	client *anthropic.Client
	model  anthropic.Model
}

func NewAnthropic(apiKey, model string, opts ...option.RequestOption) *Anthropic {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := anthropic.NewClient(opts...)
	m := anthropic.Model(model)
	if model == "" {
		m = defaultAnthropicModel
	}
	return &Anthropic{client: &client, model: m}
}

func (a *Anthropic) Generate(ctx context.Context, prompt core.Prompt, params core.SamplingParams) (string, error) {
	system, messages := anthropicMessages(prompt)
	if len(messages) == 0 {
		return "", ErrNoUserTurn
	}

	req := anthropic.MessageNewParams{
		Model:       a.model,
		Messages:    messages,
		MaxTokens:   int64(params.MaxTokens),
		Temperature: anthropic.Float(float64(params.Temperature)),
	}
	if len(system) > 0 {
		req.System = system
	}

	resp, err := a.client.Messages.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.AsText().Text)
		}
	}
	if out.Len() == 0 {
		return "", errors.New("anthropic response had no text content")
	}
	return out.String(), nil
}

func anthropicMessages(prompt core.Prompt) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	if prompt.System != "" {
		system = append(system, anthropic.TextBlockParam{Text: prompt.System})
	}
	var messages []anthropic.MessageParam
	for _, m := range prompt.Messages {
		switch m.Role {
		case store.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case store.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, messages
}
