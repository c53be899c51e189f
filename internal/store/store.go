package store

import (
	"context"
	"errors"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore holds per-conversation message history.
// Append must never interleave or drop concurrent messages for the same session.
type SessionStore interface {
	Create(ctx context.Context) (string, error)
	Append(ctx context.Context, sessionID string, msg Message) error
	// History returns the full history in append order. It does not truncate.
	History(ctx context.Context, sessionID string) ([]Message, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
}

// ChunkRepository persists an ingested chunk set and the fingerprint it was built from.
type ChunkRepository interface {
	LoadChunks(ctx context.Context) (fingerprint string, chunks []IndexedChunk, err error)
	ReplaceChunks(ctx context.Context, fingerprint string, chunks []IndexedChunk) error
	ClearChunks(ctx context.Context) error
}
