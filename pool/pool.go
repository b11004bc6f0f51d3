// Package pool provides a bounded reference implementation of core.Pool.
// The dispatcher takes the pool as an injected dependency rather than
// ambient process state; New(1) gives a serial pool for deterministic tests.
package pool

import "golang.org/x/sync/errgroup"

// Pool runs submitted tasks on at most size goroutines. Submit blocks while
// the pool is saturated, which is the backpressure the dispatcher's
// coordinator relies on.
type Pool struct {
	g    errgroup.Group
	size int
}

// New creates a pool running at most size tasks concurrently. Size must be
// at least 1.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{size: size}
	p.g.SetLimit(size)
	return p
}

// Submit schedules task for asynchronous execution
func (p *Pool) Submit(task func()) {
	p.g.Go(func() error {
		task()
		return nil
	})
}

// Size returns the concurrency limit
func (p *Pool) Size() int {
	return p.size
}

// Wait blocks until every submitted task has finished. Call on shutdown; the
// dispatcher performs its own per-tick joins.
func (p *Pool) Wait() {
	_ = p.g.Wait()
}
