// Package dispatch implements the keyed, per-group dispatcher used by the
// running-total engine to guarantee FIFO processing within a group while
// letting different groups proceed concurrently (§5 "Implementation
// requirement: dispatch must route events bearing identical group keys to
// the same consumer").
package dispatch

import (
	"context"
	"hash/fnv"

	"github.com/rs/zerolog"
)

// Keyed routes work items to one of a fixed pool of workers by hash of
// their string key, so repeated keys always land on the same worker and
// are processed in the order they were sent.
type Keyed[T any] struct {
	workers []chan T
	handle  func(context.Context, T)
	logger  zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewKeyed builds a dispatcher with workerCount goroutines, each with a
// buffered inbox of queueDepth items. handle is invoked for every item on
// its assigned worker goroutine.
func NewKeyed[T any](workerCount, queueDepth int, handle func(context.Context, T), logger zerolog.Logger) *Keyed[T] {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueDepth < 1 {
		queueDepth = 64
	}
	k := &Keyed[T]{
		workers: make([]chan T, workerCount),
		handle:  handle,
		logger:  logger.With().Str("component", "keyed_dispatcher").Logger(),
		done:    make(chan struct{}),
	}
	for i := range k.workers {
		k.workers[i] = make(chan T, queueDepth)
	}
	return k
}

// Start launches one goroutine per worker channel. Call Stop to shut down
// gracefully: each worker finishes its current item before exiting; items
// still waiting in a worker's inbox are not processed (§5 "Background jobs
// honor a shutdown signal: they finish the current event, persist
// progress, and exit").
func (k *Keyed[T]) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	k.cancel = cancel

	remaining := make(chan struct{}, len(k.workers))
	for i := range k.workers {
		go func(inbox chan T) {
			defer func() { remaining <- struct{}{} }()
			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-inbox:
					if !ok {
						return
					}
					k.handle(ctx, item)
				}
			}
		}(k.workers[i])
	}

	go func() {
		defer close(k.done)
		for range k.workers {
			<-remaining
		}
	}()
}

func (k *Keyed[T]) Stop() {
	if k.cancel != nil {
		k.cancel()
	}
	<-k.done
}

// Submit routes item to the worker owning key. It blocks if that
// worker's inbox is full, applying backpressure rather than dropping
// work.
func (k *Keyed[T]) Submit(ctx context.Context, key string, item T) error {
	worker := k.workers[workerIndex(key, len(k.workers))]
	select {
	case worker <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func workerIndex(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % n
}
