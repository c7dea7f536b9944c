package ingest

import (
	"context"
	"errors"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// ErrQueueFull is returned when a non-blocking enqueue finds no room.
var ErrQueueFull = errors.New("ingest: queue full")

// Queue runs ingestion jobs on a bounded worker pool. Priority jobs
// (sources a live query is waiting on) drain before backlog jobs.
type Queue struct {
	worker   *Worker
	high     chan models.Source
	backlog  chan models.Source
	wakeup   chan struct{}
	capacity int

	mu      sync.Mutex
	started bool
}

// NewQueue creates a queue with the given backlog capacity.
func NewQueue(worker *Worker, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{
		worker:   worker,
		high:     make(chan models.Source, capacity),
		backlog:  make(chan models.Source, capacity),
		wakeup:   make(chan struct{}, 1),
		capacity: capacity,
	}
}

// Enqueue adds a source to the backlog without blocking.
func (q *Queue) Enqueue(src models.Source) error {
	select {
	case q.backlog <- src:
		q.wake()
		return nil
	default:
		return ErrQueueFull
	}
}

// EnqueuePriority adds a source to the priority lane without blocking.
func (q *Queue) EnqueuePriority(src models.Source) error {
	select {
	case q.high <- src:
		q.wake()
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) wake() {
	select {
	case q.wakeup <- struct{}{}:
	default:
	}
}

// Start launches workers that drain the queue until ctx is cancelled.
// Safe to call once; subsequent calls are no-ops.
func (q *Queue) Start(ctx context.Context, workers int) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		go q.drain(ctx)
	}
}

func (q *Queue) drain(ctx context.Context) {
	for {
		// Priority lane first, then backlog, then park.
		select {
		case src := <-q.high:
			q.run(ctx, src)
			continue
		default:
		}
		select {
		case <-ctx.Done():
			return
		case src := <-q.high:
			q.run(ctx, src)
		case src := <-q.backlog:
			q.run(ctx, src)
		case <-q.wakeup:
		}
	}
}

func (q *Queue) run(ctx context.Context, src models.Source) {
	if _, err := q.worker.Run(ctx, src); err != nil {
		log.Printf("ingest: source %d (%s): %v", src.ID, src.Name, err)
	}
}

// IngestAll runs every source through the worker with bounded
// concurrency, blocking until all complete. Used by the CLI ingest
// command and by enrichment refreshes that need completion before
// retrieval.
func (q *Queue) IngestAll(ctx context.Context, sources []models.Source, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 2
	}
	sem := semaphore.NewWeighted(int64(concurrency))
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			// Failures are logged per-source; one bad feed must not
			// abort the batch.
			if _, err := q.worker.Run(ctx, src); err != nil {
				log.Printf("ingest: source %d (%s): %v", src.ID, src.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
