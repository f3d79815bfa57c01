package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/leadrank/internal/domain/model"
)

func job(id string) Job {
	return model.ImportJob{
		ID:      id,
		OwnerID: "owner-1",
		Leads:   []model.LeadDraft{{Name: "Dr. Sarah Mitchell"}},
	}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if err := q.TryEnqueue(ctx, job("import-1")); err != nil {
		t.Fatalf("expected enqueue to succeed: %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.ID != "import-1" || len(got.Leads) != 1 {
		t.Errorf("unexpected job %+v", got)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	_ = q.TryEnqueue(ctx, job("a"))
	_ = q.TryEnqueue(ctx, job("b"))
	if err := q.TryEnqueue(ctx, job("c")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if q.Capacity() != 2 {
		t.Errorf("expected capacity 2, got %d", q.Capacity())
	}
}

func TestInMemoryQueue_CloseDrains(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = q.TryEnqueue(ctx, job(fmt.Sprintf("j-%d", i)))
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second close should be a no-op: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if err := q.TryEnqueue(ctx, job("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	var ids []string
	for j := range q.Dequeue(ctx) {
		ids = append(ids, j.ID)
	}
	if len(ids) != 3 || ids[0] != "j-0" || ids[2] != "j-2" {
		t.Errorf("expected pending jobs in order, got %v", ids)
	}
}

func TestInMemoryQueue_DequeueStopsOnCancel(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	ch := q.Dequeue(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected no job after cancel")
		}
	case <-time.After(time.Second):
		t.Error("dequeue channel not closed after cancel")
	}
}

func TestInMemoryQueue_ConcurrentProducers(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()
	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if err := q.TryEnqueue(ctx, job(fmt.Sprintf("%d-%d", p, i))); err != nil {
					t.Errorf("enqueue failed: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()
	if l := q.Len(ctx); l != 500 {
		t.Errorf("expected 500 jobs, got %d", l)
	}
}
