package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"persona.dev/recruiter-persona/internal/core"
	"persona.dev/recruiter-persona/internal/store"
)

const (
	defaultOpenAIChatModel      = openai.ChatModelGPT4oMini
	defaultOpenAIEmbeddingModel = "text-embedding-3-small"
)

// OpenAI wraps the Chat Completions and Embeddings APIs.
type OpenAI struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
}

func NewOpenAI(apiKey, chatModel, embeddingModel string, opts ...option.RequestOption) *OpenAI {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return NewOpenAIFromClient(&client, chatModel, embeddingModel)
}

func NewOpenAIFromClient(client *openai.Client, chatModel, embeddingModel string) *OpenAI {
	if chatModel == "" {
		chatModel = defaultOpenAIChatModel
	}
	if embeddingModel == "" {
		embeddingModel = defaultOpenAIEmbeddingModel
	}
	return &OpenAI{client: client, chatModel: chatModel, embeddingModel: embeddingModel}
}

func (o *OpenAI) Name() string { return "openai/" + o.embeddingModel }

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(o.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding data received from openai")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (o *OpenAI) Generate(ctx context.Context, prompt core.Prompt, params core.SamplingParams) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            openAIMessages(prompt),
		Model:               openai.ChatModel(o.chatModel),
		MaxCompletionTokens: openai.Int(int64(params.MaxTokens)),
		Temperature:         openai.Float(float64(params.Temperature)),
		PresencePenalty:     openai.Float(float64(params.PresencePenalty)),
		FrequencyPenalty:    openai.Float(float64(params.FrequencyPenalty)),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai response had no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIMessages(prompt core.Prompt) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt.Messages)+1)
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	for _, m := range prompt.Messages {
		switch m.Role {
		case store.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case store.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	return messages
}
