package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
)

func batch(id string) model.Batch {
	return model.Batch{
		BatchID: id,
		BoardID: "main",
		Metrics: []model.ParticipantMetric{{ParticipantID: "team-1", Score: 10}},
	}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if err := q.Enqueue(ctx, batch("b1")); err != nil {
		t.Fatalf("expected enqueue to succeed: %v", err)
	}
	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	out := q.Dequeue(ctx)
	got := <-out
	if got.BatchID != "b1" || len(got.Metrics) != 1 {
		t.Errorf("unexpected batch %+v", got)
	}
	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for i := range 2 {
		if err := q.Enqueue(ctx, batch(fmt.Sprintf("b%d", i))); err != nil {
			t.Fatalf("expected enqueue %d to succeed: %v", i, err)
		}
	}
	if err := q.Enqueue(ctx, batch("overflow")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if q.Capacity() != 2 {
		t.Errorf("expected capacity 2, got %d", q.Capacity())
	}
}

func TestInMemoryQueue_FIFO(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()
	for i := range 5 {
		_ = q.Enqueue(ctx, batch(fmt.Sprintf("b%d", i)))
	}

	out := q.Dequeue(ctx)
	for i := range 5 {
		got := <-out
		if want := fmt.Sprintf("b%d", i); got.BatchID != want {
			t.Errorf("expected %s, got %s", want, got.BatchID)
		}
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()
	_ = q.Enqueue(ctx, batch("before-close"))

	if err := q.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second close should be a no-op: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if err := q.Enqueue(ctx, batch("after-close")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// queued batches drain before the channel closes
	out := q.Dequeue(ctx)
	if got := <-out; got.BatchID != "before-close" {
		t.Errorf("expected queued batch to drain, got %q", got.BatchID)
	}
	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected dequeue channel to close")
		}
	case <-time.After(time.Second):
		t.Error("dequeue channel not closed")
	}
}

func TestInMemoryQueue_ContextCancel(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	out := q.Dequeue(ctx)
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected no batch after cancel")
		}
	case <-time.After(time.Second):
		t.Error("dequeue channel not closed after cancel")
	}

	if err := q.Enqueue(ctx, batch("late")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
