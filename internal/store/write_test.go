package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueue_InsertsPendingItemAndQueuedEvent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.Enqueue(ctx, NewItem{
		ID: 7, UserID: 3, DeviceID: 4, BookID: 5, Format: "MOBI", CreatedAt: testNow,
	}, map[string]any{"book_id": 5, "device_id": 4, "format": "MOBI"})
	require.NoError(t, err)

	item, err := s.Item(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, QueueItem{
		ID: 7, UserID: 3, DeviceID: 4, BookID: 5, Format: "MOBI",
		Status: StatusPending, Attempts: 0, NextRunAt: testNow,
		CreatedAt: testNow, UpdatedAt: testNow,
	}, item)

	events, err := s.Events(ctx, 7)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventQueued, events[0].Type)
	assert.JSONEq(t, `{"book_id":5,"device_id":4,"format":"MOBI"}`, string(events[0].Details))
	assert.Equal(t, testNow, events[0].CreatedAt)
}

func TestEnqueue_DuplicateIDFails(t *testing.T) {
	s := createTestStore(t)
	enqueueTestItem(t, s, 1, testNow)

	err := s.Enqueue(context.Background(), NewItem{ID: 1, UserID: 1, DeviceID: 1, BookID: 1, Format: "EPUB", CreatedAt: testNow}, nil)
	require.Error(t, err)

	events, err := s.Events(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, events, 1, "failed insert must not add an event")
}

func TestEnqueue_RejectsUnknownFormat(t *testing.T) {
	s := createTestStore(t)

	err := s.Enqueue(context.Background(), NewItem{ID: 1, UserID: 1, DeviceID: 1, BookID: 1, Format: "PDF", CreatedAt: testNow}, nil)
	require.Error(t, err)

	_, err = s.Item(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaim_OnlyFromPending(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	enqueueTestItem(t, s, 1, testNow)

	claimed, err := s.Claim(ctx, 1, testNow, map[string]string{"worker_id": "w1"})
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = s.Claim(ctx, 1, testNow, nil)
	require.NoError(t, err)
	assert.False(t, claimed, "PROCESSING item cannot be claimed again")

	item, err := s.Item(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, item.Status)

	events, err := s.Events(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventQueued, EventProcessing}, eventTypes(events))
	assert.JSONEq(t, `{"worker_id":"w1"}`, string(events[1].Details))
}

func TestClaim_UnknownItem(t *testing.T) {
	s := createTestStore(t)

	claimed, err := s.Claim(context.Background(), 42, testNow, nil)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestClaim_ConcurrentClaimersExactlyOneWins(t *testing.T) {
	s := createTestStore(t)
	enqueueTestItem(t, s, 1, testNow)

	const claimers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claimed, err := s.Claim(context.Background(), 1, testNow, nil)
			if assert.NoError(t, err) && claimed {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	events, err := s.Events(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventQueued, EventProcessing}, eventTypes(events))
}

func TestComplete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	enqueueTestItem(t, s, 1, testNow)
	claimTestItem(t, s, 1, testNow)

	done := testNow.Add(time.Second)
	require.NoError(t, s.Complete(ctx, 1, 1, done, map[string]string{"message_id": "m-1"}))

	item, err := s.Item(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, item.Status)
	assert.Equal(t, 1, item.Attempts)
	assert.Equal(t, done, item.UpdatedAt)
	assert.Empty(t, item.LastError)
}

func TestRetry_ReturnsToPending(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	enqueueTestItem(t, s, 1, testNow)
	claimTestItem(t, s, 1, testNow)

	next := testNow.Add(2 * time.Minute)
	require.NoError(t, s.Retry(ctx, 1, 1, next, "Throttling: slow down", testNow, nil))

	item, err := s.Item(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, 1, item.Attempts)
	assert.Equal(t, next, item.NextRunAt)
	assert.Equal(t, "Throttling: slow down", item.LastError)

	// Not due until next.
	due, err := s.Due(ctx, testNow.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.Due(ctx, next, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestRetry_AttemptsNeverDecrease(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	enqueueTestItem(t, s, 1, testNow)
	claimTestItem(t, s, 1, testNow)
	require.NoError(t, s.Retry(ctx, 1, 2, testNow, "timeout", testNow, nil))
	claimTestItem(t, s, 1, testNow)

	err := s.Retry(ctx, 1, 1, testNow, "timeout", testNow, nil)
	assert.True(t, IsTransitionConflict(err))
}

func TestFail(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	enqueueTestItem(t, s, 1, testNow)
	claimTestItem(t, s, 1, testNow)

	require.NoError(t, s.Fail(ctx, 1, 1, "Invalid address", testNow, map[string]string{"reason": "Invalid address"}))

	item, err := s.Item(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, item.Status)
	assert.Equal(t, "Invalid address", item.LastError)

	events, err := s.Events(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventQueued, EventProcessing, EventFailed}, eventTypes(events))
}

func TestTransitions_RequireProcessing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	enqueueTestItem(t, s, 1, testNow)

	// Still PENDING: no transition out of PROCESSING is possible.
	err := s.Complete(ctx, 1, 1, testNow, nil)
	require.Error(t, err)
	assert.True(t, IsTransitionConflict(err))

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, int64(1), te.QueueID)
	assert.Equal(t, StatusCompleted, te.To)
}

func TestTransitions_TerminalStatesAreFinal(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	enqueueTestItem(t, s, 1, testNow)
	claimTestItem(t, s, 1, testNow)
	require.NoError(t, s.Complete(ctx, 1, 1, testNow, nil))

	claimed, err := s.Claim(ctx, 1, testNow, nil)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.True(t, IsTransitionConflict(s.Fail(ctx, 1, 2, "late", testNow, nil)))
	assert.True(t, IsTransitionConflict(s.Retry(ctx, 1, 2, testNow, "late", testNow, nil)))

	item, err := s.Item(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, item.Status)
	assert.True(t, item.Status.Terminal())

	events, err := s.Events(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventQueued, EventProcessing, EventCompleted}, eventTypes(events))
}

func TestMarshalDetails(t *testing.T) {
	out, err := marshalDetails(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", out)

	out, err = marshalDetails(map[string]string{"error": "a < b & c"})
	require.NoError(t, err)
	assert.Equal(t, `{"error":"a < b & c"}`, out)
}
