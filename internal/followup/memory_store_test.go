package followup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	due := &ScheduledEmail{LeadEmail: "jane@example.com", SequenceID: "nurture", Step: 1, SendAt: now.Add(-time.Minute)}
	later := &ScheduledEmail{LeadEmail: "jane@example.com", SequenceID: "nurture", Step: 2, SendAt: now.Add(time.Hour)}
	require.NoError(t, store.Create(ctx, due))
	require.NoError(t, store.Create(ctx, later))

	claimed, err := store.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, 1, claimed[0].Attempts)

	again, err := store.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed rows must not be claimed twice")

	assert.ErrorIs(t, store.MarkSent(ctx, due.ID), ErrNotFound, "queued rows must begin sending first")
	assert.ErrorIs(t, store.BeginSend(ctx, due.ID, 2), ErrNotFound, "wrong claim")
	require.NoError(t, store.BeginSend(ctx, due.ID, 1))
	assert.ErrorIs(t, store.BeginSend(ctx, due.ID, 1), ErrNotFound, "claim is single use")
	require.NoError(t, store.MarkSent(ctx, due.ID))
	assert.ErrorIs(t, store.MarkSent(ctx, due.ID), ErrNotFound)

	n, err := store.CancelForEmail(ctx, "JANE@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := store.ListByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, StatusSent, rows[0].Status)
	assert.NotNil(t, rows[0].SentAt)
	assert.Equal(t, StatusCancelled, rows[1].Status)
}

func TestMemoryStoreReleaseStale(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := time.Now().UTC()
	store.now = func() time.Time { return clock }

	e := &ScheduledEmail{LeadEmail: "a@example.com", SendAt: clock.Add(-time.Second)}
	require.NoError(t, store.Create(ctx, e))
	_, err := store.ClaimDue(ctx, clock, 1)
	require.NoError(t, err)

	clock = clock.Add(20 * time.Minute)
	n, err := store.ReleaseStale(ctx, clock.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	claimed, err := store.ClaimDue(ctx, clock, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 2, claimed[0].Attempts)
}

func TestMemoryStoreReleaseStaleSkipsSending(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := time.Now().UTC()
	store.now = func() time.Time { return clock }

	e := &ScheduledEmail{LeadEmail: "a@example.com", SendAt: clock.Add(-time.Second)}
	require.NoError(t, store.Create(ctx, e))
	claimed, err := store.ClaimDue(ctx, clock, 1)
	require.NoError(t, err)
	require.NoError(t, store.BeginSend(ctx, claimed[0].ID, claimed[0].Attempts))

	clock = clock.Add(time.Hour)
	n, err := store.ReleaseStale(ctx, clock.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
}
