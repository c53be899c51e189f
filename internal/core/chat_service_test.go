package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persona.dev/recruiter-persona/internal/store"
	"persona.dev/recruiter-persona/internal/utils"
)

func newTestChatService(t *testing.T, gen Generator, opts ...ChatOption) (*ChatService, *store.MemorySessionStore) {
	t.Helper()
	ctx := context.Background()

	ix := newTestIndex(utils.NewHashEmbedder(0))
	_, err := ix.Ingest(ctx, BuildChunks(jordanProfile()))
	require.NoError(t, err)

	sessions := store.NewMemorySessionStore()
	opts = append([]ChatOption{WithChatLogger(discardLogger())}, opts...)
	return NewChatService(sessions, ix, gen, jordanConfig(), opts...), sessions
}

func TestChatService_IntroductionWithoutSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestChatService(t, failingGenerator())

	res, err := svc.HandleTurn(ctx, "", "tell me about yourself")
	require.NoError(t, err)
	require.NotEmpty(t, res.SessionID)
	assert.Contains(t, res.Reply, "Jordan")
	assert.True(t, strings.Contains(res.Reply, "Python") || strings.Contains(res.Reply, "ML"))
	assert.Equal(t, 2, res.Metadata.MessageCount)
	assert.False(t, res.Metadata.Timestamp.IsZero())

	history, err := svc.GetHistory(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, store.RoleUser, history[0].Role)
	assert.Equal(t, "tell me about yourself", history[0].Content)
	assert.Equal(t, store.RoleAssistant, history[1].Role)
	assert.Equal(t, res.Reply, history[1].Content)
}

func TestChatService_SponsorshipFallback(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestChatService(t, failingGenerator())

	res, err := svc.HandleTurn(ctx, "", "what about visa sponsorship?")
	require.NoError(t, err)
	assert.True(t, res.Metadata.Degraded)
	assert.Equal(t, IntentSponsorship, res.Metadata.Intent)
	assert.Contains(t, res.Reply, "Authorized to work in the US")
	generic, _ := NewFallbackResponder().Respond(jordanConfig(), "hello")
	assert.NotEqual(t, generic, res.Reply)

	history, err := svc.GetHistory(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "fallback", history[1].Metadata["source"])
	assert.Equal(t, "sponsorship", history[1].Metadata["intent"])
}

func TestChatService_SearchFindsRelocation(t *testing.T) {
	svc, _ := newTestChatService(t, failingGenerator())

	hits := svc.Search(context.Background(), "relocation", 3)
	require.NotEmpty(t, hits)
	require.LessOrEqual(t, len(hits), 3)

	var found bool
	for _, h := range hits {
		if h.ID == "work_authorization:legal_status" {
			found = true
			assert.Contains(t, h.Text, "relocation")
			assert.Equal(t, "work_authorization", h.Metadata["type"])
		}
	}
	assert.True(t, found, "relocation chunk not in top 3: %+v", hits)
}

func TestChatService_AlwaysFailingGeneratorRecordsTwoMessagesPerTurn(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestChatService(t, failingGenerator())

	id, err := svc.StartSession(ctx)
	require.NoError(t, err)

	inputs := []string{"hello", "what are your skills?", "salary?", "when can you start?"}
	for i, in := range inputs {
		res, err := svc.HandleTurn(ctx, id, in)
		require.NoError(t, err)
		assert.NotEmpty(t, res.Reply)
		assert.Equal(t, id, res.SessionID)
		assert.Equal(t, 2*(i+1), res.Metadata.MessageCount)
	}
	history, err := svc.GetHistory(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 2*len(inputs))
}

func TestChatService_GeneratorSuccess(t *testing.T) {
	ctx := context.Background()
	var captured Prompt
	var params SamplingParams
	gen := generatorFunc(func(_ context.Context, p Prompt, sp SamplingParams) (string, error) {
		captured, params = p, sp
		return "  I'm open to relocating for the right role.  \n", nil
	})
	svc, _ := newTestChatService(t, gen)

	res, err := svc.HandleTurn(ctx, "", "Would you consider relocation?")
	require.NoError(t, err)
	assert.Equal(t, "I'm open to relocating for the right role.", res.Reply)
	assert.False(t, res.Metadata.Degraded)
	assert.Empty(t, res.Metadata.Intent)
	assert.Contains(t, res.Metadata.RetrievedChunks, "work_authorization:legal_status")

	require.Len(t, captured.Messages, 1)
	assert.Equal(t, store.RoleUser, captured.Messages[0].Role)
	assert.Contains(t, captured.System, "Relevant background")
	assert.Equal(t, DefaultSamplingParams(), params)
}

func TestChatService_EmptyGeneratorOutputFallsBack(t *testing.T) {
	gen := generatorFunc(func(context.Context, Prompt, SamplingParams) (string, error) { return " \n ", nil })
	svc, _ := newTestChatService(t, gen)

	res, err := svc.HandleTurn(context.Background(), "", "what salary do you expect?")
	require.NoError(t, err)
	assert.True(t, res.Metadata.Degraded)
	assert.Equal(t, IntentCompensation, res.Metadata.Intent)
}

func TestChatService_GenerationTimeoutFallsBack(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, _ Prompt, _ SamplingParams) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	svc, _ := newTestChatService(t, gen, WithGenerationTimeout(20*time.Millisecond))

	start := time.Now()
	res, err := svc.HandleTurn(context.Background(), "", "tell me about yourself")
	require.NoError(t, err)
	assert.True(t, res.Metadata.Degraded)
	assert.Contains(t, res.Reply, "Jordan")
	assert.Less(t, time.Since(start), time.Second)
}

func TestChatService_NilGeneratorFallsBack(t *testing.T) {
	svc, _ := newTestChatService(t, nil)
	res, err := svc.HandleTurn(context.Background(), "", "why are you looking for a new role?")
	require.NoError(t, err)
	assert.Equal(t, IntentReasonLeaving, res.Metadata.Intent)
}

func TestChatService_UnknownSessionIsSurfaced(t *testing.T) {
	ctx := context.Background()
	called := false
	gen := generatorFunc(func(context.Context, Prompt, SamplingParams) (string, error) {
		called = true
		return "hi", nil
	})
	svc, sessions := newTestChatService(t, gen)

	_, err := svc.HandleTurn(ctx, "does-not-exist", "hello")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	assert.False(t, called)
	assert.Zero(t, sessions.Len())

	_, err = svc.GetHistory(ctx, "does-not-exist")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestChatService_EmptyMessage(t *testing.T) {
	svc, sessions := newTestChatService(t, failingGenerator())
	_, err := svc.HandleTurn(context.Background(), "", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, sessions.Len())
}

func TestChatService_HistoryWindowBoundsPrompt(t *testing.T) {
	ctx := context.Background()
	var sizes []int
	var mu sync.Mutex
	gen := generatorFunc(func(_ context.Context, p Prompt, _ SamplingParams) (string, error) {
		mu.Lock()
		sizes = append(sizes, len(p.Messages))
		mu.Unlock()
		return "ok", nil
	})
	svc, _ := newTestChatService(t, gen, WithHistoryWindow(3))

	id, err := svc.StartSession(ctx)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := svc.HandleTurn(ctx, id, fmt.Sprintf("question %d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, []int{1, 3, 3, 3}, sizes)

	history, err := svc.GetHistory(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 8)
}

func TestChatService_ConcurrentTurnsOnOneSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestChatService(t, failingGenerator())
	id, err := svc.StartSession(ctx)
	require.NoError(t, err)

	const turns = 16
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.HandleTurn(ctx, id, fmt.Sprintf("turn %d", i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	history, err := svc.GetHistory(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 2*turns)

	session, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, session.LastUpdatedAt.Before(session.CreatedAt))
}

// appendHook runs after each successful append to the wrapped store.
type appendHook struct {
	store.SessionStore
	after func(msg store.Message)
}

func (h *appendHook) Append(ctx context.Context, sessionID string, msg store.Message) error {
	if err := h.SessionStore.Append(ctx, sessionID, msg); err != nil {
		return err
	}
	h.after(msg)
	return nil
}

func TestChatService_OverlappingTurnsEachEndOnTheirOwnQuestion(t *testing.T) {
	ctx := context.Background()

	var (
		inGenerateA = make(chan struct{})
		releaseA    = make(chan struct{})
		recordedA   = make(chan struct{})
		mu          sync.Mutex
		promptB     Prompt
	)
	gen := generatorFunc(func(_ context.Context, p Prompt, _ SamplingParams) (string, error) {
		last := p.Messages[len(p.Messages)-1].Content
		if last == "question A" {
			close(inGenerateA)
			<-releaseA
			return "answer A", nil
		}
		mu.Lock()
		promptB = p
		mu.Unlock()
		return "answer B", nil
	})

	// B's question lands, then A's answer lands before B reads the history.
	sessions := &appendHook{SessionStore: store.NewMemorySessionStore()}
	sessions.after = func(msg store.Message) {
		switch msg.Content {
		case "question B":
			close(releaseA)
			<-recordedA
		case "answer A":
			close(recordedA)
		}
	}

	ix := newTestIndex(utils.NewHashEmbedder(0))
	_, err := ix.Ingest(ctx, BuildChunks(jordanProfile()))
	require.NoError(t, err)
	svc := NewChatService(sessions, ix, gen, jordanConfig(), WithChatLogger(discardLogger()))

	id, err := svc.StartSession(ctx)
	require.NoError(t, err)

	doneA := make(chan *TurnResult, 1)
	go func() {
		res, err := svc.HandleTurn(ctx, id, "question A")
		assert.NoError(t, err)
		doneA <- res
	}()
	<-inGenerateA

	resB, err := svc.HandleTurn(ctx, id, "question B")
	require.NoError(t, err)
	resA := <-doneA

	assert.False(t, resA.Metadata.Degraded)
	assert.False(t, resB.Metadata.Degraded)
	assert.Equal(t, "answer B", resB.Reply)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, promptB.Messages, 2)
	assert.Equal(t, PromptMessage{Role: store.RoleUser, Content: "question A"}, promptB.Messages[0])
	assert.Equal(t, PromptMessage{Role: store.RoleUser, Content: "question B"}, promptB.Messages[1])

	history, err := svc.GetHistory(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}
