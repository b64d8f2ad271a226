// Package opexec runs operations on partition stripes: every partition is
// owned by exactly one worker goroutine, so operations for one partition never
// overlap while different partitions proceed in parallel.
package opexec

import (
	"context"
	"fmt"
	"sync"

	"github.com/pg-sharding/partmig/pkg/metrics"
	"github.com/pg-sharding/partmig/pkg/migrlog"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"go.uber.org/atomic"
)

const DefaultQueueSize = 1024

// ErrStopped is returned for work submitted to a stopped executor.
var ErrStopped = migrerror.New(migrerror.MIG_ILLEGAL_STATE, "partition executor is stopped")

type task struct {
	ctx  context.Context
	fn   func(ctx context.Context)
	done chan struct{}
}

type Executor struct {
	stripes []chan *task

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started *atomic.Bool
	stopped *atomic.Bool

	submitted *atomic.Int64
	completed *atomic.Int64
	panicked  *atomic.Int64
}

// New creates an executor with the given number of stripes.
func New(stripes, queueSize int) *Executor {
	if stripes <= 0 {
		stripes = 1
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	e := &Executor{
		stripes:   make([]chan *task, stripes),
		stopCh:    make(chan struct{}),
		started:   atomic.NewBool(false),
		stopped:   atomic.NewBool(false),
		submitted: atomic.NewInt64(0),
		completed: atomic.NewInt64(0),
		panicked:  atomic.NewInt64(0),
	}
	for i := range e.stripes {
		e.stripes[i] = make(chan *task, queueSize)
	}
	return e
}

func (e *Executor) Start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	migrlog.Zero.Debug().Int("stripes", len(e.stripes)).Msg("opexec: starting partition executor")

	e.wg.Add(len(e.stripes))
	for i, ch := range e.stripes {
		go e.worker(i, ch)
	}
}

// Stop terminates workers. Work still queued is abandoned.
func (e *Executor) Stop() {
	if !e.stopped.CompareAndSwap(false, true) {
		return
	}
	close(e.stopCh)
	e.wg.Wait()
	migrlog.Zero.Debug().
		Int64("completed", e.completed.Load()).
		Msg("opexec: partition executor stopped")
}

func (e *Executor) Stripes() int {
	return len(e.stripes)
}

// StripeOf maps a partition to the stripe that owns it.
func (e *Executor) StripeOf(partitionID int32) int {
	return int(uint32(partitionID) % uint32(len(e.stripes)))
}

// Submit queues fn on the stripe owning partitionID and returns a channel
// closed once fn has finished.
func (e *Executor) Submit(ctx context.Context, partitionID int32, fn func(ctx context.Context)) (<-chan struct{}, error) {
	if e.stopped.Load() {
		return nil, ErrStopped
	}
	if !e.started.Load() {
		return nil, migrerror.New(migrerror.MIG_ILLEGAL_STATE, "partition executor is not started")
	}

	t := &task{
		ctx:  ctx,
		fn:   fn,
		done: make(chan struct{}),
	}
	select {
	case e.stripes[e.StripeOf(partitionID)] <- t:
		e.submitted.Inc()
		return t.done, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.stopCh:
		return nil, ErrStopped
	}
}

// Execute runs fn on the partition stripe and waits for it to finish.
func (e *Executor) Execute(ctx context.Context, partitionID int32, fn func(ctx context.Context)) error {
	done, err := e.Submit(ctx, partitionID, fn)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopCh:
		return ErrStopped
	}
}

func (e *Executor) worker(stripe int, ch chan *task) {
	defer e.wg.Done()
	for {
		select {
		case t := <-ch:
			e.run(stripe, t)
		case <-e.stopCh:
			return
		}
	}
}

func (e *Executor) run(stripe int, t *task) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			e.panicked.Inc()
			metrics.RecordOperation(false)
			migrlog.Zero.Error().
				Int("stripe", stripe).
				Str("panic", fmt.Sprint(r)).
				Msg("opexec: operation panicked")
		}
	}()

	t.fn(t.ctx)
	e.completed.Inc()
	metrics.RecordOperation(true)
}

type Stats struct {
	Submitted int64
	Completed int64
	Panicked  int64
}

func (e *Executor) Stats() Stats {
	return Stats{
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Panicked:  e.panicked.Load(),
	}
}
