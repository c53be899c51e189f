package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"persona.dev/recruiter-persona/internal/config"
	"persona.dev/recruiter-persona/internal/core"
	"persona.dev/recruiter-persona/internal/llm"
	"persona.dev/recruiter-persona/internal/persona"
	"persona.dev/recruiter-persona/internal/store"
)

// app holds the wired service and everything that has to be closed on exit.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *store.SQLiteStore
	backends *llm.Backends
	index    *core.KnowledgeIndex
	chat     *core.ChatService
	chunks   []store.KnowledgeChunk
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	db, err := store.NewSQLiteStore(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	backends, err := llm.NewBackends(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	profile := persona.LoadProfile(cfg.ProfilePath, logger)
	examples := persona.LoadExamples(cfg.ExamplesPath, logger)
	personaCfg := persona.NewConfig(profile, examples)

	index := core.NewKnowledgeIndex(backends.Embedder,
		core.WithRepository(db),
		core.WithIndexLogger(logger),
		core.WithEmbedTimeout(cfg.EmbeddingTimeout),
		core.WithEmbedConcurrency(cfg.EmbedConcurrency),
		core.WithEmbedRateLimit(cfg.EmbedRatePerSec),
	)

	var sessions store.SessionStore = store.NewMemorySessionStore()
	if cfg.SessionBackend == config.SessionsSQLite {
		sessions = db
	}

	sampling := core.DefaultSamplingParams()
	sampling.MaxTokens = int32(cfg.MaxTokens)
	sampling.Temperature = float32(cfg.Temperature)

	chat := core.NewChatService(sessions, index, backends.Generator, personaCfg,
		core.WithChatLogger(logger),
		core.WithRetrievalK(cfg.RetrievalK),
		core.WithHistoryWindow(cfg.HistoryWindow),
		core.WithGenerationTimeout(cfg.GenerationTimeout),
		core.WithSamplingParams(sampling),
	)

	logger.Info("persona loaded", "name", personaCfg.DisplayName(), "examples", len(personaCfg.Examples), "sessions", cfg.SessionBackend)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		backends: backends,
		index:    index,
		chat:     chat,
		chunks:   core.BuildChunks(profile),
	}, nil
}

// bootstrap restores persisted embeddings and re-ingests when the profile or the
// embedding model changed. Failures leave the service running without retrieval.
func (a *app) bootstrap(ctx context.Context, force bool) error {
	if err := a.index.Load(ctx); err != nil {
		a.logger.Warn("could not restore knowledge index", "error", err)
	}
	if force {
		if err := a.index.Clear(ctx); err != nil {
			return err
		}
	}

	stats, err := a.index.Ingest(ctx, a.chunks)
	if err != nil {
		if errors.Is(err, core.ErrNoEmbeddings) {
			a.logger.Warn("knowledge ingestion produced no embeddings, retrieval disabled until the next ingest", "chunks", len(a.chunks))
			return nil
		}
		return err
	}
	a.logger.Info("knowledge index ready", "chunks", a.index.Len(), "skipped", stats.Skipped, "failed", stats.Failed)
	return nil
}

func (a *app) Close() {
	if err := a.backends.Close(); err != nil {
		a.logger.Warn("error closing model backends", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("error closing database", "error", err)
	}
}
