package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"persona.dev/recruiter-persona/internal/store"
	"persona.dev/recruiter-persona/internal/utils"
)

const (
	DefaultRetrievalK       = 5
	defaultEmbedTimeout     = 10 * time.Second
	defaultEmbedConcurrency = 4
)

// ErrNoEmbeddings is returned by Ingest when not a single chunk could be embedded.
var ErrNoEmbeddings = errors.New("no chunk could be embedded")

type RetrievalResult struct {
	Chunk store.KnowledgeChunk
	Score float64
}

type indexEntry struct {
	chunk     store.KnowledgeChunk
	position  int
	embedding []float32
}

// IngestStats describes the outcome of one Ingest call.
type IngestStats struct {
	Skipped  bool
	Embedded int
	Failed   int
}

// KnowledgeIndex answers nearest-neighbour queries over the persona's chunks.
// Queries run concurrently; an ingest builds the new entry set aside and swaps it
// in under the write lock, so a query never sees a partially populated index.
type KnowledgeIndex struct {
	embedder     Embedder
	repo         store.ChunkRepository
	logger       *slog.Logger
	embedTimeout time.Duration
	concurrency  int
	limiter      *rate.Limiter
	minScore     float64
	hasMinScore  bool

	ingestMu sync.Mutex

	mu          sync.RWMutex
	entries     []indexEntry
	fingerprint string
}

type IndexOption func(*KnowledgeIndex)

// WithRepository persists the ingested set so restarts can skip re-embedding.
func WithRepository(repo store.ChunkRepository) IndexOption {
	return func(ix *KnowledgeIndex) { ix.repo = repo }
}

func WithIndexLogger(logger *slog.Logger) IndexOption {
	return func(ix *KnowledgeIndex) { ix.logger = logger }
}

func WithEmbedTimeout(d time.Duration) IndexOption {
	return func(ix *KnowledgeIndex) { ix.embedTimeout = d }
}

func WithEmbedConcurrency(n int) IndexOption {
	return func(ix *KnowledgeIndex) {
		if n > 0 {
			ix.concurrency = n
		}
	}
}

// WithEmbedRateLimit caps embedding calls made during ingestion. perSecond <= 0 disables it.
func WithEmbedRateLimit(perSecond float64) IndexOption {
	return func(ix *KnowledgeIndex) {
		if perSecond <= 0 {
			ix.limiter = nil
			return
		}
		ix.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithMinScore drops results scoring below min.
func WithMinScore(min float64) IndexOption {
	return func(ix *KnowledgeIndex) {
		ix.minScore = min
		ix.hasMinScore = true
	}
}

func NewKnowledgeIndex(embedder Embedder, opts ...IndexOption) *KnowledgeIndex {
	ix := &KnowledgeIndex{
		embedder:     embedder,
		logger:       slog.Default(),
		embedTimeout: defaultEmbedTimeout,
		concurrency:  defaultEmbedConcurrency,
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger = ix.logger.With("component", "knowledge_index")
	return ix
}

// Fingerprint identifies a chunk set as embedded by a given model. Any change to
// chunk content or to the embedding model changes it.
func Fingerprint(embedderName string, chunks []store.KnowledgeChunk) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", embedderName)
	for _, c := range chunks {
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\n", c.ID, c.SectionType, c.SectionLabel, c.SourceTag, c.Text)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Load restores a previously persisted chunk set. It is a no-op without a repository.
func (ix *KnowledgeIndex) Load(ctx context.Context) error {
	if ix.repo == nil {
		return nil
	}
	ix.ingestMu.Lock()
	defer ix.ingestMu.Unlock()

	fp, stored, err := ix.repo.LoadChunks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load persisted chunks: %w", err)
	}
	entries := make([]indexEntry, 0, len(stored))
	for _, sc := range stored {
		entries = append(entries, indexEntry{chunk: sc.Chunk, position: sc.Position, embedding: sc.Embedding})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].position < entries[j].position })

	ix.mu.Lock()
	ix.entries = entries
	ix.fingerprint = fp
	ix.mu.Unlock()

	ix.logger.Info("loaded persisted knowledge chunks", "count", len(entries))
	return nil
}

// Ingest embeds and stores chunks. It does nothing when the index already holds
// the same chunk set for the same embedder. If only some chunks embed, the
// fingerprint is withheld so the next Ingest retries.
func (ix *KnowledgeIndex) Ingest(ctx context.Context, chunks []store.KnowledgeChunk) (IngestStats, error) {
	ix.ingestMu.Lock()
	defer ix.ingestMu.Unlock()

	fp := Fingerprint(ix.embedder.Name(), chunks)

	ix.mu.RLock()
	current, populated := ix.fingerprint, len(ix.entries) > 0
	ix.mu.RUnlock()

	if populated && current == fp {
		ix.logger.Info("knowledge index up to date, skipping ingestion", "chunks", len(chunks))
		return IngestStats{Skipped: true}, nil
	}

	ix.logger.Info("ingesting knowledge chunks", "chunks", len(chunks), "embedder", ix.embedder.Name())

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for i, c := range chunks {
		g.Go(func() error {
			if ix.limiter != nil {
				if err := ix.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			vec, err := callWithTimeout(gctx, ix.embedTimeout, func(ctx context.Context) ([]float32, error) {
				return ix.embedder.Embed(ctx, c.Text)
			})
			if err != nil {
				ix.logger.Warn("failed to embed chunk, skipping", "chunk_id", c.ID, "error", err)
				return nil
			}
			if len(vec) == 0 {
				ix.logger.Warn("embedder returned an empty vector, skipping", "chunk_id", c.ID)
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return IngestStats{}, fmt.Errorf("ingestion aborted: %w", err)
	}

	var stats IngestStats
	entries := make([]indexEntry, 0, len(chunks))
	for i, c := range chunks {
		if vectors[i] == nil {
			stats.Failed++
			continue
		}
		stats.Embedded++
		entries = append(entries, indexEntry{chunk: c, position: i, embedding: vectors[i]})
	}
	if len(chunks) > 0 && stats.Embedded == 0 {
		return stats, ErrNoEmbeddings
	}
	if stats.Failed > 0 {
		fp = ""
	}

	if ix.repo != nil {
		stored := make([]store.IndexedChunk, len(entries))
		for i, e := range entries {
			stored[i] = store.IndexedChunk{Chunk: e.chunk, Position: e.position, Embedding: e.embedding}
		}
		if err := ix.repo.ReplaceChunks(ctx, fp, stored); err != nil {
			ix.logger.Warn("failed to persist knowledge chunks, index is memory only", "error", err)
		}
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.fingerprint = fp
	ix.mu.Unlock()

	ix.logger.Info("knowledge ingestion complete", "embedded", stats.Embedded, "failed", stats.Failed)
	return stats, nil
}

// Clear empties the index and its persisted copy, forcing the next Ingest to re-embed.
func (ix *KnowledgeIndex) Clear(ctx context.Context) error {
	ix.ingestMu.Lock()
	defer ix.ingestMu.Unlock()

	ix.mu.Lock()
	ix.entries = nil
	ix.fingerprint = ""
	ix.mu.Unlock()

	if ix.repo != nil {
		if err := ix.repo.ClearChunks(ctx); err != nil {
			return fmt.Errorf("failed to clear persisted chunks: %w", err)
		}
	}
	return nil
}

// Len reports the number of indexed chunks.
func (ix *KnowledgeIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Query returns at most k chunks ordered by decreasing similarity to text, ties
// in ingestion order. Any backend failure yields an empty result.
func (ix *KnowledgeIndex) Query(ctx context.Context, text string, k int) []RetrievalResult {
	results := []RetrievalResult{}
	if k <= 0 || strings.TrimSpace(text) == "" {
		return results
	}

	ix.mu.RLock()
	entries := ix.entries
	ix.mu.RUnlock()

	if len(entries) == 0 {
		ix.logger.Debug("no knowledge chunks available for retrieval")
		return results
	}

	queryVec, err := callWithTimeout(ctx, ix.embedTimeout, func(ctx context.Context) ([]float32, error) {
		return ix.embedder.Embed(ctx, text)
	})
	if err != nil {
		ix.logger.Warn("failed to embed query, continuing without context", "error", err)
		return results
	}

	scored := make([]RetrievalResult, 0, len(entries))
	for _, e := range entries {
		if len(e.embedding) == 0 {
			continue
		}
		score, err := utils.CosineSimilarity(queryVec, e.embedding)
		if err != nil {
			ix.logger.Debug("skipping chunk during similarity scoring", "chunk_id", e.chunk.ID, "error", err)
			continue
		}
		if ix.hasMinScore && score < ix.minScore {
			continue
		}
		scored = append(scored, RetrievalResult{Chunk: e.chunk, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	ix.logger.Debug("retrieved knowledge chunks", "count", len(scored))
	return scored
}
