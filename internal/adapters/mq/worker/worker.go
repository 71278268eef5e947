// Package worker drains queued metric batches into their boards.
package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
	"github.com/bauman-code-tournament/leaderboard/pkg/logger"
	"github.com/bauman-code-tournament/leaderboard/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultDispatchTimeout = 5 * time.Second
	poolShutdownTimeout    = 30 * time.Second
)

// Dispatcher applies a batch to its board.
type Dispatcher interface {
	Push(ctx context.Context, boardID string, feed []model.ParticipantMetric) error
}

// Queue defines how the pool receives batches.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Batch
}

// ResultFunc observes the outcome of every dispatched batch.
type ResultFunc func(b model.Batch, err error)

// InMemoryWorker dispatches the batches routed to it, one at a time.
type InMemoryWorker struct {
	in              <-chan model.Batch
	dispatcher      Dispatcher
	name            string
	dispatchTimeout time.Duration
	onResult        ResultFunc

	done   chan struct{}
	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from in.
func NewInMemoryWorker(in <-chan model.Batch, dispatcher Dispatcher, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		in:              in,
		dispatcher:      dispatcher,
		name:            "worker",
		dispatchTimeout: defaultDispatchTimeout,
		done:            make(chan struct{}),
		logger:          logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.String("worker", w.name))
	return w
}

// Run processes batches until in is closed or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-w.in:
			if !ok {
				return
			}
			err := w.process(ctx, b)
			if w.onResult != nil {
				w.onResult(b, err)
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, b model.Batch) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	dctx, cancel := context.WithTimeout(ctx, w.dispatchTimeout)
	defer cancel()

	if err := w.dispatcher.Push(dctx, b.BoardID, b.Metrics); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "dispatch")
		w.logger.Error(ctx, "batch dispatch failed",
			logger.String("batch_id", b.BatchID),
			logger.String("board", b.BoardID),
			logger.Error(err))
		return fmt.Errorf("dispatch batch %s: %w", b.BatchID, err)
	}
	w.logger.Debug(ctx, "batch dispatched",
		logger.String("batch_id", b.BatchID),
		logger.String("board", b.BoardID),
		logger.Int("metrics", len(b.Metrics)))
	return nil
}

// Stats are cumulative pool counters.
type Stats struct {
	Workers    int
	Dispatched int64
	Failed     int64
}

// Pool routes batches to a fixed set of workers. All batches of one board
// go to the same worker so they are applied in arrival order.
type Pool struct {
	queue    Queue
	workers  []*InMemoryWorker
	inputs   []chan model.Batch
	routed   chan struct{}
	onResult ResultFunc

	cancel     context.CancelFunc
	started    atomic.Bool
	stopOnce   sync.Once
	dispatched atomic.Int64
	failed     atomic.Int64

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers; a count below one uses the
// number of CPUs.
func NewPool(workerCount int, q Queue, dispatcher Dispatcher, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		queue:  q,
		routed: make(chan struct{}),
		logger: logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := range workerCount {
		in := make(chan model.Batch)
		p.inputs = append(p.inputs, in)
		p.workers = append(p.workers, NewInMemoryWorker(in, dispatcher,
			WithName("worker-"+strconv.Itoa(i)),
			withResult(p.record),
		))
	}
	metrics.UpdateWorkerActiveCount(0)
	return p
}

func (p *Pool) record(b model.Batch, err error) {
	if err != nil {
		p.failed.Add(1)
	} else {
		p.dispatched.Add(1)
	}
	if p.onResult != nil {
		p.onResult(b, err)
	}
}

// Start launches the router and every worker. It returns immediately.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.route(ctx)
	metrics.UpdateWorkerActiveCount(len(p.workers))
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

func (p *Pool) route(ctx context.Context) {
	defer close(p.routed)
	defer func() {
		for _, in := range p.inputs {
			close(in)
		}
	}()
	for b := range p.queue.Dequeue(ctx) {
		select {
		case p.inputs[p.shard(b.BoardID)] <- b:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) shard(boardID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(boardID))
	return int(h.Sum32() % uint32(len(p.workers)))
}

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:    len(p.workers),
		Dispatched: p.dispatched.Load(),
		Failed:     p.failed.Load(),
	}
}

// Shutdown closes the queue, lets queued batches drain and waits for the
// workers. When ctx expires first the remaining work is abandoned.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.started.Load() {
		return nil
	}
	var err error
	p.stopOnce.Do(func() {
		defer p.cancel()
		defer metrics.UpdateWorkerActiveCount(0)

		if closer, ok := p.queue.(interface{ Close() error }); ok {
			if cerr := closer.Close(); cerr != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(cerr))
			}
		}

		waitCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
		defer cancel()

		select {
		case <-p.routed:
		case <-waitCtx.Done():
			err = fmt.Errorf("worker pool shutdown: %w", waitCtx.Err())
			return
		}
		for _, w := range p.workers {
			select {
			case <-w.Done():
			case <-waitCtx.Done():
				err = fmt.Errorf("worker pool shutdown: %w", waitCtx.Err())
				return
			}
		}
	})
	return err
}
