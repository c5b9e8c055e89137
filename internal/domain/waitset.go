package domain

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
)

// ReadCondition triggers while its source holds samples in any state.
type ReadCondition struct {
	handle   Handle
	source   Triggerable
	deleted  atomic.Bool
	onDelete func()
}

func (c *ReadCondition) Handle() Handle { return c.handle }
func (c *ReadCondition) Kind() Kind     { return KindReadCondition }

// Triggered reports whether the source has samples to take.
func (c *ReadCondition) Triggered() bool {
	return !c.deleted.Load() && c.source.pending() > 0
}

func (c *ReadCondition) Delete() error {
	if !c.deleted.CompareAndSwap(false, true) {
		return errspkg.ErrEntityDeleted
	}
	if c.onDelete != nil {
		c.onDelete()
	}
	return nil
}

// WaitSet blocks until one of its attached conditions triggers.
type WaitSet struct {
	handle   Handle
	mu       sync.Mutex
	conds    []*ReadCondition
	wake     chan struct{}
	done     chan struct{}
	deleted  atomic.Bool
	onDelete func()
}

func newWaitSet(handle Handle, onDelete func()) *WaitSet {
	return &WaitSet{
		handle:   handle,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		onDelete: onDelete,
	}
}

func (w *WaitSet) Handle() Handle { return w.handle }
func (w *WaitSet) Kind() Kind     { return KindWaitSet }

// Attach adds a condition. Attaching the same condition twice is a no-op.
func (w *WaitSet) Attach(cond *ReadCondition) error {
	if w.deleted.Load() || cond == nil || cond.deleted.Load() {
		return errspkg.ErrEntityDeleted
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range w.conds {
		if c == cond {
			return nil
		}
	}
	w.conds = append(w.conds, cond)
	cond.source.watch(w.wake)
	return nil
}

// Detach removes a condition.
func (w *WaitSet) Detach(cond *ReadCondition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, c := range w.conds {
		if c == cond {
			w.conds = append(w.conds[:i], w.conds[i+1:]...)
			cond.source.unwatch(w.wake)
			return
		}
	}
}

// Wait blocks until at least one attached condition triggers and returns
// how many did. It returns 0 and no error when timeout expires; Infinite
// never expires and 0 polls once. Cancelling ctx returns ctx.Err().
func (w *WaitSet) Wait(ctx context.Context, timeout time.Duration) (int, error) {
	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if w.deleted.Load() {
			return 0, errspkg.ErrEntityDeleted
		}
		if n := w.triggered(); n > 0 {
			return n, nil
		}
		if timeout == 0 {
			return 0, nil
		}

		select {
		case <-w.wake:
		case <-expired:
			return w.triggered(), nil
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-w.done:
			return 0, errspkg.ErrEntityDeleted
		}
	}
}

func (w *WaitSet) triggered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, c := range w.conds {
		if c.Triggered() {
			n++
		}
	}
	return n
}

// Delete detaches every condition and wakes pending waiters.
func (w *WaitSet) Delete() error {
	if !w.deleted.CompareAndSwap(false, true) {
		return errspkg.ErrEntityDeleted
	}
	w.mu.Lock()
	for _, c := range w.conds {
		c.source.unwatch(w.wake)
	}
	w.conds = nil
	w.mu.Unlock()
	close(w.done)
	if w.onDelete != nil {
		w.onDelete()
	}
	return nil
}
