package pipeline

import (
	"context"
	"errors"
	"sync"
)

// BaseBlock holds the lifecycle shared by every block: a cancellable context,
// the worker wait group and the accumulated message errors.
type BaseBlock struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	errs      []error
	completed bool
}

// NewBaseBlock creates a BaseBlock bound to parent.
func NewBaseBlock(parent context.Context) *BaseBlock {
	ctx, cancel := context.WithCancel(parent)
	return &BaseBlock{ctx: ctx, cancel: cancel}
}

// Fault records a message-level error. It does not stop the other workers.
func (b *BaseBlock) Fault(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	b.errs = append(b.errs, err)
	b.mu.Unlock()
}

// Cancel stops all workers; messages not yet started are dropped.
func (b *BaseBlock) Cancel() {
	b.cancel()
}

// IsCompleted reports whether Complete has been called.
func (b *BaseBlock) IsCompleted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}

func (b *BaseBlock) markCompleted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.completed {
		return false
	}
	b.completed = true
	return true
}

// Wait blocks until every worker has exited and returns the joined message errors.
func (b *BaseBlock) Wait() error {
	b.wg.Wait()
	b.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.errs...)
}

// Waiter is anything that can be waited on.
type Waiter interface {
	Wait() error
}

// WaitAll waits for every block and joins their errors.
func WaitAll(blocks ...Waiter) error {
	var errs []error
	for _, b := range blocks {
		if err := b.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
