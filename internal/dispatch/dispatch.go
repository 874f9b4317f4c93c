// Package dispatch hands accepted scans to background workers.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull is returned by Enqueue when every buffer slot is taken.
	ErrQueueFull = errors.New("scan queue is full")

	// ErrQueueClosed is returned by Enqueue once the workers have stopped.
	ErrQueueClosed = errors.New("scan queue is closed")
)

// Job is one scan waiting for execution. It carries the vault key, never
// the credential itself.
type Job struct {
	ScanID      string   `json:"scan_id"`
	VaultKey    string   `json:"vault_key"`
	RegionScope []string `json:"region_scope"`
}

// Dispatcher accepts jobs for asynchronous execution.
type Dispatcher interface {
	Enqueue(ctx context.Context, job Job) error
}

// Handler executes one job. Its error is logged; the job is not retried.
type Handler func(ctx context.Context, job Job) error

// DropFunc is called for every job discarded at shutdown without running.
type DropFunc func(ctx context.Context, job Job)

// Queue is a bounded in-process Dispatcher. Start runs a fixed number of
// workers that drain the buffer until the context passed to Start is
// cancelled.
type Queue struct {
	jobs        chan Job
	handler     Handler
	onDrop      DropFunc
	concurrency int
	logger      zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	running atomic.Int64
}

var _ Dispatcher = (*Queue)(nil)

// NewQueue returns a queue holding up to size pending jobs and running at
// most concurrency jobs at once. Non-positive values default to 64 and 4.
func NewQueue(size, concurrency int, handler Handler, logger zerolog.Logger) *Queue {
	if size <= 0 {
		size = 64
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Queue{
		jobs:        make(chan Job, size),
		handler:     handler,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "dispatch").Logger(),
	}
}

// OnDrop registers fn for jobs the queue discards at shutdown. It must be
// called before Start.
func (q *Queue) OnDrop(fn DropFunc) {
	q.onDrop = fn
}

// Enqueue never blocks: a full buffer is reported as ErrQueueFull.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.jobs <- job:
		q.logger.Debug().Str("scan_id", job.ScanID).Msg("scan enqueued")
		return nil
	default:
		return ErrQueueFull
	}
}

// Start runs the workers and blocks until ctx is cancelled and every
// in-flight job has returned. Jobs still buffered at cancellation are
// dropped with a warning and handed to the OnDrop callback.
func (q *Queue) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			q.work(ctx, worker)
		}(i)
	}
	<-ctx.Done()
	wg.Wait()

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	for {
		select {
		case job := <-q.jobs:
			q.drop(ctx, job)
		default:
			return nil
		}
	}
}

// Running returns the number of jobs currently executing.
func (q *Queue) Running() int64 {
	return q.running.Load()
}

func (q *Queue) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			if ctx.Err() != nil {
				q.drop(ctx, job)
				return
			}
			q.run(ctx, worker, job)
		}
	}
}

func (q *Queue) drop(ctx context.Context, job Job) {
	q.logger.Warn().Str("scan_id", job.ScanID).Msg("dropping queued scan on shutdown")
	if q.onDrop != nil {
		q.onDrop(ctx, job)
	}
}

func (q *Queue) run(ctx context.Context, worker int, job Job) {
	q.running.Add(1)
	defer q.running.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Interface("panic", r).Str("scan_id", job.ScanID).Int("worker", worker).Msg("scan handler panicked")
		}
	}()

	if err := q.handler(ctx, job); err != nil {
		q.logger.Error().Err(err).Str("scan_id", job.ScanID).Int("worker", worker).Msg("scan execution failed")
	}
}
