package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetUnknownSession(t *testing.T) {
	store := NewMemoryStore()

	rec, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryStore_UpdateCreatesAndMerges(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	intent := "OrderQuery"
	require.NoError(t, store.Update(ctx, "s1", Updates{LastIntent: &intent}))

	summary := "用户询问了订单状态"
	require.NoError(t, store.Update(ctx, "s1", Updates{Summary: &summary}))

	rec, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, rec)

	// Merge semantics: the earlier field survives the later partial update.
	assert.Equal(t, "OrderQuery", rec.LastIntent)
	assert.Equal(t, summary, rec.ConversationSummary)
}

func TestMemoryStore_AppendTurnTrimsHistory(t *testing.T) {
	store := NewMemoryStore(WithMaxHistory(3))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendTurn(ctx, "s1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
	}

	rec, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Len(t, rec.History, 3)
	assert.Equal(t, "q2", rec.History[0].User)
	assert.Equal(t, "q4", rec.History[2].User)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "s1", "hello", "hi"))

	rec, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	rec.History[0].User = "mutated"
	rec.LastIntent = "mutated"

	fresh, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "hello", fresh.History[0].User)
	assert.Empty(t, fresh.LastIntent)
}

func TestMemoryStore_Clear(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "s1", "q", "a"))
	require.NoError(t, store.Clear(ctx, "s1"))

	rec, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	store := NewMemoryStore(WithTTL(10 * time.Millisecond))
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "s1", "q", "a"))
	time.Sleep(20 * time.Millisecond)

	rec, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryStore_EvictsOldestHalfAtCapacity(t *testing.T) {
	store := NewMemoryStore(WithMaxSessions(4))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, store.AppendTurn(ctx, fmt.Sprintf("s%d", i), "q", "a"))
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 4, store.Size())

	require.NoError(t, store.AppendTurn(ctx, "s4", "q", "a"))
	assert.Equal(t, 3, store.Size())

	// The two least recently updated sessions are gone.
	rec, err := store.Get(ctx, "s0")
	require.NoError(t, err)
	assert.Nil(t, rec)
	rec, err = store.Get(ctx, "s3")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestMemoryStore_CleanupExpired(t *testing.T) {
	store := NewMemoryStore(WithTTL(10 * time.Millisecond))
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "old", "q", "a"))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, store.AppendTurn(ctx, "fresh", "q", "a"))

	removed, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Size())
}

func TestCleanupJob_Defaults(t *testing.T) {
	job := NewCleanupJob(NewMemoryStore(), CleanupConfig{})
	assert.Equal(t, DefaultCleanupInterval, job.config.Interval)
}

func TestCleanupJob_RunOnce(t *testing.T) {
	store := NewMemoryStore(WithTTL(time.Millisecond))
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "s1", "q", "a"))
	time.Sleep(5 * time.Millisecond)

	job := NewCleanupJob(store, CleanupConfig{Interval: time.Hour})
	removed, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
