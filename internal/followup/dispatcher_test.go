package followup

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agency-leads/pkg/logging"
)

func TestDispatcherPublishesDueJobs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(10)
	now := time.Now().UTC()

	require.NoError(t, store.Create(ctx, &ScheduledEmail{LeadEmail: "a@example.com", SequenceID: "nurture", Step: 1, SendAt: now.Add(-time.Minute), Variables: map[string]string{"firstName": "A"}}))
	require.NoError(t, store.Create(ctx, &ScheduledEmail{LeadEmail: "b@example.com", SequenceID: "nurture", Step: 1, SendAt: now.Add(time.Hour)}))

	d := NewDispatcher(store, queue, DispatcherConfig{Logger: logging.Discard()})
	n, err := d.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs, err := queue.Receive(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var job Job
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Body), &job))
	assert.Equal(t, "a@example.com", job.LeadEmail)
	assert.Equal(t, "A", job.Variables["firstName"])
}

type failingQueue struct{ *MemoryQueue }

func (failingQueue) Send(context.Context, string) error { return errors.New("queue unavailable") }

func TestDispatcherLeavesRowsQueuedOnEnqueueFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, &ScheduledEmail{LeadEmail: "a@example.com", SendAt: time.Now().Add(-time.Minute)}))

	d := NewDispatcher(store, failingQueue{NewMemoryQueue(1)}, DispatcherConfig{Logger: logging.Discard()})
	n, err := d.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rows, err := store.ListByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, rows[0].Status)
}

func TestDispatcherRunStopsOnCancel(t *testing.T) {
	d := NewDispatcher(NewMemoryStore(), NewMemoryQueue(1), DispatcherConfig{Interval: 10 * time.Millisecond, Logger: logging.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
