package service

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrOverloaded means the generation queue is full; the request is rejected
// up front instead of queueing without bound.
var ErrOverloaded = errors.New("generation capacity exhausted")

// Pool serializes access to the model runtime. The runtime usually serves a
// single stream per process, so sessions acquire one of a small number of
// slots; up to maxQueued callers wait for a free slot and everyone beyond
// that is rejected immediately.
type Pool struct {
	slots     chan struct{}
	queued    atomic.Int64
	maxQueued int64
}

func NewPool(size, maxQueued int) *Pool {
	if size <= 0 {
		size = 1
	}
	if maxQueued < 0 {
		maxQueued = 0
	}
	return &Pool{
		slots:     make(chan struct{}, size),
		maxQueued: int64(maxQueued),
	}
}

// Acquire takes a runtime slot, waiting in the bounded queue if none is
// free. Returns ErrOverloaded when the queue is already at capacity, or the
// context error if the caller goes away while waiting.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	default:
	}

	if p.queued.Add(1) > p.maxQueued {
		p.queued.Add(-1)
		return ErrOverloaded
	}
	defer p.queued.Add(-1)

	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (p *Pool) Release() {
	<-p.slots
}
