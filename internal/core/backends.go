package core

import (
	"context"
	"time"

	"persona.dev/recruiter-persona/internal/store"
)

// Embedder turns text into a vector. Name identifies the model so a change of
// embedding backend invalidates stored vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// Generator produces the persona's reply for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt, params SamplingParams) (string, error)
}

type PromptMessage struct {
	Role    store.Role
	Content string
}

// Prompt is the generation-ready input: one system block followed by the
// bounded conversation window, oldest first.
type Prompt struct {
	System   string
	Messages []PromptMessage
}

type SamplingParams struct {
	MaxTokens        int32
	Temperature      float32
	PresencePenalty  float32
	FrequencyPenalty float32
}

func DefaultSamplingParams() SamplingParams {
	return SamplingParams{
		MaxTokens:        500,
		Temperature:      0.7,
		PresencePenalty:  0.1,
		FrequencyPenalty: 0.1,
	}
}

type callResult[T any] struct {
	val T
	err error
}

// callWithTimeout runs fn with a deadline and returns as soon as either fn finishes
// or the deadline passes, even if fn ignores its context.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan callResult[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- callResult[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
