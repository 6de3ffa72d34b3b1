package retry

import (
	"container/list"
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// PendingEmbed is one memory awaiting an embedding retry.
type PendingEmbed struct {
	MemoryID int64
	Content  string
}

// OpportunisticQueue is the back-pressure-free retry queue described by the
// resource model: on every successful save, at most a handful of previously
// failed embeddings are retried inline before control returns to the caller.
// A token-bucket limiter (golang.org/x/time/rate) bounds how many of those
// opportunistic retries can run per unit time, independent of the per-call
// classification/backoff in backoff.go.
type OpportunisticQueue struct {
	mu        sync.Mutex
	items     *list.List
	limiter   *rate.Limiter
	maxPerRun int
}

// NewOpportunisticQueue creates a queue that releases at most maxPerRun
// entries per call to Drain, additionally bounded by a token-bucket limiter
// that refills at perSecond tokens per second and holds at most burst.
func NewOpportunisticQueue(maxPerRun int, perSecond rate.Limit, burst int) *OpportunisticQueue {
	if maxPerRun <= 0 {
		maxPerRun = 3
	}
	return &OpportunisticQueue{
		items:     list.New(),
		limiter:   rate.NewLimiter(perSecond, burst),
		maxPerRun: maxPerRun,
	}
}

// Push enqueues a memory whose embedding previously failed transiently.
func (q *OpportunisticQueue) Push(p PendingEmbed) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.PushBack(p)
}

// Len reports the number of memories currently queued.
func (q *OpportunisticQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Drain pops up to maxPerRun queued items that the limiter currently allows
// and runs process on each. Items whose processing still fails transiently
// are re-queued at the back; permanent failures are dropped.
func (q *OpportunisticQueue) Drain(ctx context.Context, process func(ctx context.Context, p PendingEmbed) error) {
	for i := 0; i < q.maxPerRun; i++ {
		if !q.limiter.Allow() {
			return
		}

		q.mu.Lock()
		front := q.items.Front()
		if front == nil {
			q.mu.Unlock()
			return
		}
		q.items.Remove(front)
		q.mu.Unlock()

		item := front.Value.(PendingEmbed)
		if err := process(ctx, item); err != nil {
			class, _ := Classify(err)
			if class == ClassificationTransient {
				q.Push(item)
			}
			// permanent/unknown: drop, caller already logged the failure.
		}
	}
}
