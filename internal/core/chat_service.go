package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"persona.dev/recruiter-persona/internal/persona"
	"persona.dev/recruiter-persona/internal/store"
)

const defaultGenerationTimeout = 30 * time.Second

// ErrEmptyMessage is returned when a turn carries no text.
var ErrEmptyMessage = errors.New("message cannot be empty")

// TurnMetadata describes a completed turn.
type TurnMetadata struct {
	MessageCount    int       `json:"message_count"`
	Timestamp       time.Time `json:"timestamp"`
	Degraded        bool      `json:"degraded"`
	Intent          Intent    `json:"intent,omitempty"`
	RetrievedChunks []string  `json:"retrieved_chunks,omitempty"`
}

type TurnResult struct {
	Reply     string       `json:"response"`
	SessionID string       `json:"session_id"`
	Metadata  TurnMetadata `json:"metadata"`
}

// SearchHit is one ranked knowledge-search result.
type SearchHit struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"score"`
}

// ChatService drives a conversation turn end to end. Backend failures never
// fail a turn; only an unknown session id does.
type ChatService struct {
	sessions  store.SessionStore
	index     *KnowledgeIndex
	generator Generator
	persona   persona.Config
	assembler PromptAssembler
	fallback  *FallbackResponder
	logger    *slog.Logger
	now       func() time.Time

	retrievalK int
	genTimeout time.Duration
	sampling   SamplingParams
}

type ChatOption func(*ChatService)

func WithRetrievalK(k int) ChatOption {
	return func(s *ChatService) { s.retrievalK = k }
}

func WithHistoryWindow(n int) ChatOption {
	return func(s *ChatService) { s.assembler.HistoryWindow = n }
}

func WithGenerationTimeout(d time.Duration) ChatOption {
	return func(s *ChatService) { s.genTimeout = d }
}

func WithSamplingParams(p SamplingParams) ChatOption {
	return func(s *ChatService) { s.sampling = p }
}

func WithChatLogger(logger *slog.Logger) ChatOption {
	return func(s *ChatService) { s.logger = logger }
}

func WithChatClock(now func() time.Time) ChatOption {
	return func(s *ChatService) { s.now = now }
}

func NewChatService(sessions store.SessionStore, index *KnowledgeIndex, generator Generator, cfg persona.Config, opts ...ChatOption) *ChatService {
	s := &ChatService{
		sessions:   sessions,
		index:      index,
		generator:  generator,
		persona:    cfg,
		assembler:  PromptAssembler{HistoryWindow: DefaultHistoryWindow},
		fallback:   NewFallbackResponder(),
		logger:     slog.Default(),
		now:        time.Now,
		retrievalK: DefaultRetrievalK,
		genTimeout: defaultGenerationTimeout,
		sampling:   DefaultSamplingParams(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "chat_service")
	return s
}

func (s *ChatService) StartSession(ctx context.Context) (string, error) {
	id, err := s.sessions.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info("session started", "session_id", id)
	return id, nil
}

// HandleTurn records text as a user message, answers it and records the answer.
// An empty sessionID starts a new session; an unknown one yields
// store.ErrSessionNotFound.
func (s *ChatService) HandleTurn(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	if sessionID == "" {
		id, err := s.StartSession(ctx)
		if err != nil {
			return nil, err
		}
		sessionID = id
	}

	turnID := uuid.NewString()
	user := store.Message{
		Role:      store.RoleUser,
		Content:   text,
		Timestamp: s.now(),
		Metadata:  map[string]any{"turn_id": turnID},
	}
	if err := s.record(ctx, sessionID, user); err != nil {
		return nil, err
	}

	history, err := s.historyThrough(ctx, sessionID, user)
	if err != nil {
		return nil, err
	}

	retrieved := s.index.Query(ctx, text, s.retrievalK)

	prompt := s.assembler.Build(s.persona, retrieved, history)

	reply, genErr := s.generate(ctx, prompt)
	meta := TurnMetadata{RetrievedChunks: chunkIDs(retrieved)}
	source := "generator"
	if genErr != nil {
		s.logger.Warn("generation failed, using fallback responder", "session_id", sessionID, "error", genErr)
		reply, meta.Intent = s.fallback.Respond(s.persona, text)
		meta.Degraded = true
		source = "fallback"
	}

	now := s.now()
	assistant := store.Message{
		Role:      store.RoleAssistant,
		Content:   reply,
		Timestamp: now,
		Metadata: map[string]any{
			"turn_id":   turnID,
			"source":    source,
			"retrieved": meta.RetrievedChunks,
		},
	}
	if meta.Intent != "" {
		assistant.Metadata["intent"] = string(meta.Intent)
	}
	if err := s.record(ctx, sessionID, assistant); err != nil {
		return nil, err
	}

	meta.MessageCount = len(history) + 1
	if sess, err := s.sessions.Get(ctx, sessionID); err == nil {
		meta.MessageCount = len(sess.Messages)
		now = sess.LastUpdatedAt
	}
	meta.Timestamp = now

	s.logger.Info("turn completed", "session_id", sessionID, "degraded", meta.Degraded, "retrieved", len(retrieved))
	return &TurnResult{Reply: reply, SessionID: sessionID, Metadata: meta}, nil
}

// historyThrough returns the session history up to and including user, the
// message this turn just recorded. Overlapping turns on the same session may have
// appended after it; those messages belong to a later context and are cut off.
func (s *ChatService) historyThrough(ctx context.Context, sessionID string, user store.Message) ([]store.Message, error) {
	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, err
		}
		s.logger.Warn("failed to read session history, continuing with the current message only", "session_id", sessionID, "error", err)
		return []store.Message{user}, nil
	}

	turnID, _ := user.Metadata["turn_id"].(string)
	for i := len(history) - 1; i >= 0; i-- {
		if id, _ := history[i].Metadata["turn_id"].(string); id == turnID && history[i].Role == store.RoleUser {
			return history[:i+1], nil
		}
	}
	// not stored; record already logged why
	return append(history, user), nil
}

// record appends m, surfacing only a missing session. Other storage errors are
// logged so the turn can still complete.
func (s *ChatService) record(ctx context.Context, sessionID string, m store.Message) error {
	err := s.sessions.Append(ctx, sessionID, m)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrSessionNotFound) {
		return err
	}
	s.logger.Error("failed to store message", "session_id", sessionID, "role", m.Role, "error", err)
	return nil
}

func (s *ChatService) generate(ctx context.Context, prompt Prompt) (string, error) {
	if s.generator == nil {
		return "", errors.New("no generation backend configured")
	}
	out, err := callWithTimeout(ctx, s.genTimeout, func(ctx context.Context) (string, error) {
		return s.generator.Generate(ctx, prompt, s.sampling)
	})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("generation backend returned an empty reply")
	}
	return out, nil
}

// Search ranks the knowledge base against query.
func (s *ChatService) Search(ctx context.Context, query string, limit int) []SearchHit {
	results := s.index.Query(ctx, query, limit)
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			ID:       r.Chunk.ID,
			Text:     r.Chunk.Text,
			Metadata: r.Chunk.Metadata(),
			Score:    r.Score,
		})
	}
	return hits
}

func (s *ChatService) GetHistory(ctx context.Context, sessionID string) ([]store.Message, error) {
	return s.sessions.History(ctx, sessionID)
}

func (s *ChatService) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// Persona exposes the configuration the service speaks with.
func (s *ChatService) Persona() persona.Config {
	return s.persona
}

func chunkIDs(results []RetrievalResult) []string {
	if len(results) == 0 {
		return nil
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Chunk.ID
	}
	return ids
}
