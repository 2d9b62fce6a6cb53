package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"soup/internal/domain"
	"soup/internal/port"
)

// ErrQueueClosed is returned by Enqueue after Stop.
var ErrQueueClosed = errors.New("embedding queue closed")

type embedJob struct {
	id   string
	text string
}

// QueueOptions configures an EmbedQueue.
type QueueOptions struct {
	Workers     int
	Size        int
	MaxAttempts int           // provider attempts per job; 1 = no retry
	RetryDelay  time.Duration // doubled after every failed attempt
	Logger      *slog.Logger
}

// EmbedQueue computes embeddings for pending phrases on a pool of workers.
// A job whose phrase was removed in the meantime is dropped: the patch
// fails with NotFound and nothing is re-inserted.
type EmbedQueue struct {
	store    port.PhraseStore
	embedder port.Embedder
	opts     QueueOptions
	log      *slog.Logger

	jobs   chan embedJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// held shared by senders; Stop takes it exclusively before draining
	sendMu sync.RWMutex

	mu       sync.Mutex
	idle     *sync.Cond
	inflight int
	started  bool
}

func NewEmbedQueue(store port.PhraseStore, embedder port.Embedder, opts QueueOptions) *EmbedQueue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Size <= 0 {
		opts.Size = 64
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &EmbedQueue{
		store:    store,
		embedder: embedder,
		opts:     opts,
		log:      opts.Logger,
		jobs:     make(chan embedJob, opts.Size),
		ctx:      ctx,
		cancel:   cancel,
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Start launches the workers. Calling it more than once is a no-op.
func (q *EmbedQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Enqueue schedules an embedding job, blocking while the queue is full.
func (q *EmbedQueue) Enqueue(ctx context.Context, id, text string) error {
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()
	if q.ctx.Err() != nil {
		return ErrQueueClosed
	}

	q.begin()
	select {
	case q.jobs <- embedJob{id: id, text: text}:
		return nil
	case <-ctx.Done():
		q.finish()
		return ctx.Err()
	case <-q.ctx.Done():
		q.finish()
		return ErrQueueClosed
	}
}

// Wait blocks until every enqueued job has finished.
func (q *EmbedQueue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.inflight > 0 {
		q.idle.Wait()
	}
}

// Stop cancels in-flight work and waits for the workers to exit. Jobs that
// never ran leave their phrases pending.
func (q *EmbedQueue) Stop() {
	q.cancel()
	// wait out senders already past the closed check
	q.sendMu.Lock()
	q.sendMu.Unlock()
	q.wg.Wait()

	for {
		select {
		case job := <-q.jobs:
			q.log.Debug("embedding job abandoned", "id", job.id)
			q.finish()
		default:
			return
		}
	}
}

func (q *EmbedQueue) begin() {
	q.mu.Lock()
	q.inflight++
	q.mu.Unlock()
}

func (q *EmbedQueue) finish() {
	q.mu.Lock()
	q.inflight--
	if q.inflight == 0 {
		q.idle.Broadcast()
	}
	q.mu.Unlock()
}

func (q *EmbedQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.process(job)
			q.finish()
		}
	}
}

func (q *EmbedQueue) process(job embedJob) {
	delay := q.opts.RetryDelay
	for attempt := 1; ; attempt++ {
		err := embedAndPatch(q.ctx, q.store, q.embedder, job.id, job.text)
		switch {
		case err == nil:
			q.log.Info("phrase embedded", "id", job.id, "attempt", attempt)
			return
		case errors.Is(err, domain.ErrNotFound):
			q.log.Debug("phrase removed before embedding landed", "id", job.id)
			return
		case q.ctx.Err() != nil:
			return
		case attempt >= q.opts.MaxAttempts || !errors.Is(err, domain.ErrProvider):
			q.log.Warn("embedding failed, phrase stays pending", "id", job.id, "attempts", attempt, "error", err)
			return
		}

		q.log.Debug("embedding failed, retrying", "id", job.id, "attempt", attempt, "error", err)
		select {
		case <-time.After(delay):
		case <-q.ctx.Done():
			return
		}
		delay *= 2
	}
}
