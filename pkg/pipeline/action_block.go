package pipeline

import (
	"context"
	"fmt"
)

// ActionFunc defines the function signature for actions
type ActionFunc[T any] func(ctx context.Context, msg T) error

// ActionBlock executes an action for each posted message on a fixed number of
// workers. A failing or panicking message is recorded and the remaining
// messages keep flowing.
type ActionBlock[T any] struct {
	*BaseBlock
	input   chan T
	action  ActionFunc[T]
	options BlockOptions
}

// NewActionBlock creates a new ActionBlock with the specified action function and options
// Default behavior: sequential processing (1 worker), unbuffered input
func NewActionBlock[T any](ctx context.Context, action ActionFunc[T], opts ...Option) *ActionBlock[T] {
	options := applyOptions(opts)

	b := &ActionBlock[T]{
		BaseBlock: NewBaseBlock(ctx),
		input:     make(chan T, options.BufferSize),
		action:    action,
		options:   options,
	}

	b.wg.Add(options.ConcurrencyDegree)
	for i := 0; i < options.ConcurrencyDegree; i++ {
		go b.process()
	}

	return b
}

// Post hands a message to the block, waiting for a free slot.
// It returns false when the block is completed or cancelled.
func (b *ActionBlock[T]) Post(message T) (ok bool) {
	if b.IsCompleted() {
		return false
	}
	defer func() {
		// Complete raced with us and closed the channel.
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case b.input <- message:
		return true
	case <-b.ctx.Done():
		return false
	}
}

// Complete marks the block as completed and closes the input channel.
// Workers drain what was already posted and exit.
func (b *ActionBlock[T]) Complete() {
	if b.markCompleted() {
		close(b.input)
	}
}

func (b *ActionBlock[T]) process() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-b.input:
			if !ok {
				return
			}
			b.Fault(b.execute(msg))
		}
	}
}

func (b *ActionBlock[T]) execute(msg T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in ActionBlock: %v", r)
		}
	}()
	return b.action(b.ctx, msg)
}
