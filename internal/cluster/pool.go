package cluster

import (
	"context"
	"fmt"
	"runtime"
)

// ComputePool runs CPU-bound work on a bounded set of worker goroutines so
// clustering never competes with the cycle's network I/O for scheduling. A
// panicking job is converted into an error on its result channel.
type ComputePool struct {
	jobs chan func()
	done chan struct{}
}

func NewComputePool(workers int) *ComputePool {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	pool := &ComputePool{
		jobs: make(chan func()),
		done: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go pool.worker()
	}
	return pool
}

func (p *ComputePool) worker() {
	for {
		select {
		case job := <-p.jobs:
			job()
		case <-p.done:
			return
		}
	}
}

// Close stops the workers. Jobs already running finish; queued submissions
// waiting for a worker will block forever, so close only after the last cycle.
func (p *ComputePool) Close() {
	close(p.done)
}

type computeOutcome[T any] struct {
	value T
	err   error
}

// runOn executes fn on the pool and blocks until it completes or ctx is done.
// A panic inside fn surfaces as the returned error.
func runOn[T any](ctx context.Context, pool *ComputePool, fn func() T) (T, error) {
	result := make(chan computeOutcome[T], 1)

	job := func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				result <- computeOutcome[T]{value: zero, err: fmt.Errorf("clustering worker panicked: %v", r)}
			}
		}()
		result <- computeOutcome[T]{value: fn()}
	}

	select {
	case pool.jobs <- job:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	select {
	case outcome := <-result:
		return outcome.value, outcome.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
