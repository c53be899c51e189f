package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance
var _ SessionStore = (*MemorySessionStore)(nil)

func TestMemorySessionStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()

	id, err := s.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sess, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.Empty(t, sess.Messages)
	assert.Equal(t, sess.CreatedAt, sess.LastUpdatedAt)
}

func TestMemorySessionStore_UniqueIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := s.Create(ctx)
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestMemorySessionStore_RegeneratesCollidingID(t *testing.T) {
	ctx := context.Background()
	ids := []string{"a", "a", "b"}
	s := NewMemorySessionStore(WithIDGenerator(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))

	first, err := s.Create(ctx)
	require.NoError(t, err)
	second, err := s.Create(ctx)
	require.NoError(t, err)

	assert.Equal(t, "a", first)
	assert.Equal(t, "b", second)
}

func TestMemorySessionStore_UnknownSession(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()

	err := s.Append(ctx, "missing", Message{Role: RoleUser, Content: "hi"})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = s.History(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, s.Len())
}

func TestMemorySessionStore_HistoryPreservesAppendOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()
	id, _ := s.Create(ctx)

	for i := 0; i < 25; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		require.NoError(t, s.Append(ctx, id, Message{Role: role, Content: fmt.Sprintf("m%d", i)}))
	}

	history, err := s.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 25)
	for i, m := range history {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.Content)
		assert.False(t, m.Timestamp.IsZero())
	}
}

func TestMemorySessionStore_LastUpdatedIsMonotonic(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(time.Minute), base.Add(-time.Hour), base.Add(2 * time.Minute)}
	s := NewMemorySessionStore(WithClock(func() time.Time {
		now := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return now
	}))

	id, _ := s.Create(ctx)
	require.NoError(t, s.Append(ctx, id, Message{Role: RoleUser, Content: "one"}))
	sess, _ := s.Get(ctx, id)
	assert.Equal(t, base.Add(time.Minute), sess.LastUpdatedAt)

	// clock goes backwards
	require.NoError(t, s.Append(ctx, id, Message{Role: RoleAssistant, Content: "two"}))
	sess, _ = s.Get(ctx, id)
	assert.Equal(t, base.Add(time.Minute), sess.LastUpdatedAt)

	require.NoError(t, s.Append(ctx, id, Message{Role: RoleUser, Content: "three"}))
	sess, _ = s.Get(ctx, id)
	assert.Equal(t, base.Add(2*time.Minute), sess.LastUpdatedAt)
}

func TestMemorySessionStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()
	id, _ := s.Create(ctx)
	require.NoError(t, s.Append(ctx, id, Message{Role: RoleUser, Content: "hi", Metadata: map[string]any{"k": "v"}}))

	history, _ := s.History(ctx, id)
	history[0].Content = "changed"
	history[0].Metadata["k"] = "changed"

	again, _ := s.History(ctx, id)
	assert.Equal(t, "hi", again[0].Content)
	assert.Equal(t, "v", again[0].Metadata["k"])
}

func TestMemorySessionStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()
	shared, _ := s.Create(ctx)
	other, _ := s.Create(ctx)

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = s.Append(ctx, shared, Message{Role: RoleUser, Content: fmt.Sprintf("w%d-%d", w, i)})
				_ = s.Append(ctx, other, Message{Role: RoleUser, Content: "x"})
			}
		}(w)
	}
	wg.Wait()

	history, err := s.History(ctx, shared)
	require.NoError(t, err)
	require.Len(t, history, writers*perWriter)

	// per-writer order survives interleaving
	next := make(map[int]int)
	for _, m := range history {
		var w, i int
		_, err := fmt.Sscanf(m.Content, "w%d-%d", &w, &i)
		require.NoError(t, err)
		assert.Equal(t, next[w], i)
		next[w]++
	}

	otherHistory, _ := s.History(ctx, other)
	assert.Len(t, otherHistory, writers*perWriter)
}
