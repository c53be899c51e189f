package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const fingerprintKey = "chunk_fingerprint"

// SQLiteStore persists the knowledge index and, optionally, conversation history.
// It satisfies both ChunkRepository and SessionStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	// appendLocks serialises appends per session id.
	appendLocks sync.Map
}

func NewSQLiteStore(dataSourceName string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", withPragmas(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dataSourceName, ":memory:") {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger.With("component", "sqlite"), now: time.Now}
	if err = s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_busy_timeout=5000&_foreign_keys=on"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS knowledge_chunks (
        id TEXT PRIMARY KEY,
        position INTEGER NOT NULL,
        content TEXT NOT NULL,
        section_type TEXT NOT NULL,
        section_label TEXT NOT NULL,
        source_tag TEXT,
        embedding_json TEXT -- JSON array of float32
    );

    CREATE TABLE IF NOT EXISTS index_meta (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY, -- UUID
        created_at DATETIME NOT NULL,
        last_updated_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        seq INTEGER NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
        content TEXT NOT NULL,
        timestamp DATETIME NOT NULL,
        metadata_json TEXT,
        UNIQUE (session_id, seq),
        FOREIGN KEY (session_id) REFERENCES sessions (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Chunk methods

func (s *SQLiteStore) LoadChunks(ctx context.Context) (string, []IndexedChunk, error) {
	var fingerprint string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", fingerprintKey).Scan(&fingerprint)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("failed to read index fingerprint: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, position, content, section_type, section_label, source_tag, embedding_json FROM knowledge_chunks ORDER BY position ASC")
	if err != nil {
		return "", nil, fmt.Errorf("failed to query knowledge_chunks: %w", err)
	}
	defer rows.Close()

	var chunks []IndexedChunk
	for rows.Next() {
		var (
			ic            IndexedChunk
			sectionType   string
			sourceTag     sql.NullString
			embeddingJSON sql.NullString
		)
		if err := rows.Scan(&ic.Chunk.ID, &ic.Position, &ic.Chunk.Text, &sectionType, &ic.Chunk.SectionLabel, &sourceTag, &embeddingJSON); err != nil {
			return "", nil, fmt.Errorf("failed to scan knowledge_chunk row: %w", err)
		}
		ic.Chunk.SectionType = SectionType(sectionType)
		ic.Chunk.SourceTag = sourceTag.String
		if embeddingJSON.String != "" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &ic.Embedding); err != nil {
				s.logger.Warn("dropping unreadable embedding", "chunk_id", ic.Chunk.ID, "error", err)
				ic.Embedding = nil
			}
		}
		chunks = append(chunks, ic)
	}
	if err := rows.Err(); err != nil {
		return "", nil, fmt.Errorf("failed to iterate knowledge_chunks: %w", err)
	}
	return fingerprint, chunks, nil
}

// ReplaceChunks swaps the stored chunk set and fingerprint in a single transaction.
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, fingerprint string, chunks []IndexedChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin chunk transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM knowledge_chunks"); err != nil {
		return fmt.Errorf("failed to delete knowledge_chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO knowledge_chunks (id, position, content, section_type, section_label, source_tag, embedding_json) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare knowledge_chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, ic := range chunks {
		embeddingBytes, err := json.Marshal(ic.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding for %s: %w", ic.Chunk.ID, err)
		}
		_, err = stmt.ExecContext(ctx, ic.Chunk.ID, ic.Position, ic.Chunk.Text, string(ic.Chunk.SectionType), ic.Chunk.SectionLabel, nullString(ic.Chunk.SourceTag), string(embeddingBytes))
		if err != nil {
			return fmt.Errorf("failed to insert knowledge_chunk %s: %w", ic.Chunk.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO index_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", fingerprintKey, fingerprint); err != nil {
		return fmt.Errorf("failed to store index fingerprint: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ClearChunks(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM knowledge_chunks"); err != nil {
		return fmt.Errorf("failed to delete knowledge_chunks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM index_meta WHERE key = ?", fingerprintKey); err != nil {
		return fmt.Errorf("failed to delete index fingerprint: %w", err)
	}
	return nil
}

// Session methods

func (s *SQLiteStore) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	now := s.now()
	_, err := s.db.ExecContext(ctx, "INSERT INTO sessions (id, created_at, last_updated_at) VALUES (?, ?, ?)", id, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) sessionLock(sessionID string) *sync.Mutex {
	mu, _ := s.appendLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, msg Message) error {
	// unknown ids must not leave a lock behind
	if err := s.sessionExists(ctx, sessionID); err != nil {
		return err
	}
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin append transaction: %w", err)
	}
	defer tx.Rollback()

	var lastUpdated time.Time
	err = tx.QueryRowContext(ctx, "SELECT last_updated_at FROM sessions WHERE id = ?", sessionID).Scan(&lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	var nextSeq int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?", sessionID).Scan(&nextSeq); err != nil {
		return fmt.Errorf("failed to read message sequence: %w", err)
	}

	now := s.now()
	if now.Before(lastUpdated) {
		now = lastUpdated
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}

	var metadataJSON sql.NullString
	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal message metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO messages (session_id, seq, role, content, timestamp, metadata_json) VALUES (?, ?, ?, ?, ?, ?)",
		sessionID, nextSeq, string(msg.Role), msg.Content, msg.Timestamp, metadataJSON)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE sessions SET last_updated_at = ? WHERE id = ?", now, sessionID); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) sessionExists(ctx context.Context, sessionID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = ?", sessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]Message, error) {
	if err := s.sessionExists(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.messages(ctx, sessionID)
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess := Session{ID: sessionID}
	err := s.db.QueryRowContext(ctx, "SELECT created_at, last_updated_at FROM sessions WHERE id = ?", sessionID).Scan(&sess.CreatedAt, &sess.LastUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	msgs, err := s.messages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return &sess, nil
}

func (s *SQLiteStore) messages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT role, content, timestamp, metadata_json FROM messages WHERE session_id = ? ORDER BY seq ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var (
			msg          Message
			role         string
			metadataJSON sql.NullString
		)
		if err := rows.Scan(&role, &msg.Content, &msg.Timestamp, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Role = Role(role)
		if metadataJSON.Valid {
			if err := json.Unmarshal([]byte(metadataJSON.String), &msg.Metadata); err != nil {
				s.logger.Warn("dropping unreadable message metadata", "session_id", sessionID, "error", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
