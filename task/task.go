// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package task provides the runtime application effects are submitted to.
//
// Submission never blocks: a [Task] is placed on a bounded queue and later
// executed by one of a fixed number of worker goroutines. The submitter's
// trace context travels with the task so spans started by the worker are
// children of the submitting span.
package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/z5labs/tether/internal/noop"
	"github.com/z5labs/tether/internal/otelslog"
	"github.com/z5labs/tether/internal/slogfield"
	"github.com/z5labs/tether/internal/try"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"
)

// Task is a unit of work executed by the Runtime.
type Task func(context.Context) error

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("task: queue is full")

	// ErrNotRunning is returned by Submit once the Runtime has stopped.
	ErrNotRunning = errors.New("task: runtime is not running")
)

// Config is the decodable configuration of a Runtime.
type Config struct {
	Workers   uint `config:"workers"`
	QueueSize uint `config:"queue_size"`
}

type options struct {
	logHandler slog.Handler
	workers    int
	queueSize  int
}

// Option configures a Runtime.
type Option func(*options)

// LogHandler sets the slog.Handler task failures are reported to.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// Workers sets the number of tasks which may execute concurrently.
//
// Default is 16.
func Workers(n uint) Option {
	return func(o *options) {
		if n == 0 {
			return
		}
		o.workers = int(n)
	}
}

// QueueSize sets how many submitted tasks may wait for a worker.
//
// Default is 1024.
func QueueSize(n uint) Option {
	return func(o *options) {
		if n == 0 {
			return
		}
		o.queueSize = int(n)
	}
}

// FromConfig applies every non-zero field of cfg.
func FromConfig(cfg Config) Option {
	return func(o *options) {
		Workers(cfg.Workers)(o)
		QueueSize(cfg.QueueSize)(o)
	}
}

type item struct {
	task Task

	// the otel context needs to be propagated between goroutines
	carrier propagation.MapCarrier
}

// Runtime executes submitted tasks on a pool of workers.
type Runtime struct {
	log        *slog.Logger
	queue      chan *item
	workers    int
	propagator propagation.TextMapPropagator

	// mu orders every enqueue before the final drain
	mu      sync.RWMutex
	stopped bool
}

// New returns a Runtime which starts executing tasks once Run is called.
// Tasks submitted before then wait in the queue.
func New(opts ...Option) *Runtime {
	o := &options{
		logHandler: noop.LogHandler{},
		workers:    16,
		queueSize:  1024,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Runtime{
		log:        otelslog.New(o.logHandler),
		queue:      make(chan *item, o.queueSize),
		workers:    o.workers,
		propagator: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	}
}

// Submit enqueues t without waiting for it to run.
func (rt *Runtime) Submit(ctx context.Context, t Task) error {
	i := &item{
		task:    t,
		carrier: make(propagation.MapCarrier),
	}
	rt.propagator.Inject(ctx, i.carrier)

	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.stopped {
		return ErrNotRunning
	}

	select {
	case rt.queue <- i:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of tasks waiting for a worker.
func (rt *Runtime) Pending() int {
	return len(rt.queue)
}

// Capacity returns how many tasks may wait for a worker before
// Submit reports ErrQueueFull.
func (rt *Runtime) Capacity() int {
	return cap(rt.queue)
}

// Run executes tasks until ctx is cancelled. Tasks still queued at that
// point are executed with a context which is no longer cancelled, and Run
// returns once every task has returned. Task failures are logged, not returned.
func (rt *Runtime) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rt.workers)

	for {
		var i *item
		select {
		case <-gctx.Done():
			rt.stop()
			rt.drain(context.WithoutCancel(ctx), g)
			return g.Wait()
		case i = <-rt.queue:
		}

		propCtx := rt.propagator.Extract(gctx, i.carrier)
		g.Go(rt.execute(propCtx, i.task))
	}
}

func (rt *Runtime) stop() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.stopped = true
}

func (rt *Runtime) drain(ctx context.Context, g *errgroup.Group) {
	for {
		select {
		case i := <-rt.queue:
			g.Go(rt.execute(rt.propagator.Extract(ctx, i.carrier), i.task))
		default:
			return
		}
	}
}

func (rt *Runtime) execute(ctx context.Context, t Task) func() error {
	return func() error {
		spanCtx, span := otel.Tracer("task").Start(ctx, "Runtime.execute")
		defer span.End()

		err := run(spanCtx, t)
		if err != nil {
			span.RecordError(err)
			rt.log.ErrorContext(spanCtx, "task failed", slogfield.Error(err))
		}
		return nil
	}
}

func run(ctx context.Context, t Task) (err error) {
	defer try.Recover(&err)

	return t(ctx)
}
