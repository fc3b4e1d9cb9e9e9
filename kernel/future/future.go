// Package future provides a single-assignment cell that one thread can
// block on while another produces its value: Future[T] is the read side,
// FutureWriter[T] the write side.
package future

import (
	"runtime"

	"hydroxos/kernel/sched"
	"hydroxos/kernel/sync"
)

// cell is the heap object shared between a Future and its FutureWriter (and
// any clones of the Future) while the value has not yet been produced. The
// original keeps this alive with manual reference counting and frees it
// with Box::from_raw once the last handle goes away; Go's collector already
// reclaims it once nothing points at it, so refs here exists only so
// FutureWriter.Finish can tell whether any reader is still around to
// deliver the value to, not to manage the cell's memory.
type cell[T any] struct {
	refs int
	val  *T
	wait *sched.ThreadWaitList
}

// Future is the read half of a future value. A zero Future is not valid;
// use New or Done.
type Future[T any] struct {
	lock   *sync.UninterruptibleSpinlock[cell[T]] // nil once done
	val    T
	closed bool
}

// FutureWriter is the write half of a future value produced by New. Finish
// must be called exactly once.
type FutureWriter[T any] struct {
	lock     *sync.UninterruptibleSpinlock[cell[T]]
	finished bool
}

// New returns a Future and the FutureWriter that completes it.
func New[T any]() (*Future[T], *FutureWriter[T]) {
	lock := sync.NewUninterruptibleSpinlock(cell[T]{
		refs: 1,
		wait: sched.NewThreadWaitList(),
	})
	f := &Future[T]{lock: lock}
	w := &FutureWriter[T]{lock: lock}
	runtime.SetFinalizer(f, (*Future[T]).leaked)
	runtime.SetFinalizer(w, (*FutureWriter[T]).leaked)
	return f, w
}

// Done returns a Future that is already complete with val.
func Done[T any](val T) *Future[T] {
	return &Future[T]{val: val}
}

func (w *FutureWriter[T]) leaked() {
	if !w.finished {
		panic("future: FutureWriter dropped without a value having been given; this would hang its reader forever")
	}
}

// Finish delivers val to the future and wakes every thread blocked in
// BlockUntilReady. It must be called exactly once.
//
// If every Future reader has already gone away (Close'd or collected
// without ever reading), val is discarded rather than stored: nothing is
// left to read it. Unlike the original, this does not further decrement
// the reader count in that case; doing so would free the cell's reader
// slot out from under the one remaining reader whenever exactly one is
// left, which reads as an oversight in the original rather than intended
// behavior, and is not reproduced here.
func (w *FutureWriter[T]) Finish(val T) {
	if w.finished {
		panic("future: FutureWriter.Finish called twice")
	}
	w.finished = true
	runtime.SetFinalizer(w, nil)

	g := w.lock.Lock()
	c := g.Get()
	if c.refs == 0 {
		g.Unlock()
		return
	}
	c.val = &val
	c.wait.WakeAll()
	g.Unlock()
}

func (f *Future[T]) leaked() {
	if f.lock == nil || f.closed {
		return
	}
	f.Close()
}

// Close releases f's claim on its shared cell without reading a value.
// Calling it on an already-Done or already-closed Future is a no-op. A
// finalizer calls this as a backstop for a Future discarded without ever
// being read or explicitly closed, mirroring the original's Drop impl.
func (f *Future[T]) Close() {
	if f.lock == nil || f.closed {
		return
	}
	f.closed = true

	g := f.lock.Lock()
	g.Get().refs--
	g.Unlock()
}

// doAction is the shared core of every operation that might need to
// observe or wait on f's readiness. If f is already Done, action is called
// immediately with the value. If f is Waiting and a value has already been
// stored (by Finish, before this Future got around to reading it), f
// transitions to Done, releases its claim on the cell, and action is
// called with that value. Otherwise action is called with nil and the
// ThreadWaitList to block on, while the cell's lock is still held; this is
// the only case where f remains Waiting.
func (f *Future[T]) doAction(action func(val *T, wait *sched.ThreadWaitList, guard *sync.UninterruptibleSpinlockGuard[cell[T]])) {
	if f.lock == nil {
		action(&f.val, nil, nil)
		return
	}

	g := f.lock.Lock()
	c := g.Get()
	if c.val == nil {
		action(nil, c.wait, g)
		return
	}

	val := *c.val
	c.refs--
	g.Unlock()

	f.val = val
	f.lock = nil
	action(&f.val, nil, nil)
}

// BlockUntilReady suspends the current thread until f has a value. It must
// not be called from interrupt context or with f already closed.
func (f *Future[T]) BlockUntilReady() {
	if sched.IsHandlingInterrupt() {
		panic("future: BlockUntilReady called from interrupt context")
	}

	for {
		done := false
		f.doAction(func(val *T, wait *sched.ThreadWaitList, guard *sync.UninterruptibleSpinlockGuard[cell[T]]) {
			if guard == nil {
				done = true
				return
			}

			t := sched.CurrentThread()
			if t == nil {
				guard.Unlock()
				panic("future: BlockUntilReady called with no current thread to suspend")
			}
			suspend := wait.Wait(t)
			guard.Unlock()
			suspend.Suspend()
		})
		if done {
			return
		}
	}
}

// UpdateReadiness transitions f to Done if a value is already available,
// without blocking, and reports whether f is now Done.
func (f *Future[T]) UpdateReadiness() bool {
	ready := false
	f.doAction(func(val *T, wait *sched.ThreadWaitList, guard *sync.UninterruptibleSpinlockGuard[cell[T]]) {
		if guard != nil {
			guard.Unlock()
			return
		}
		ready = true
	})
	return ready
}

// IsReady reports whether f is currently Done, without updating its state.
func (f *Future[T]) IsReady() bool {
	return f.lock == nil
}

// UnwrapBlocking blocks until f is ready and returns its value.
func (f *Future[T]) UnwrapBlocking() T {
	f.BlockUntilReady()
	f.closed = true
	return f.val
}

// TryUnwrapWithoutUpdate returns f's value if it is already Done, without
// first checking whether a value has become available in the background.
func (f *Future[T]) TryUnwrapWithoutUpdate() (T, bool) {
	if f.lock != nil {
		var zero T
		return zero, false
	}
	f.closed = true
	return f.val, true
}

// TryUnwrap checks readiness and, if ready, returns f's value.
func (f *Future[T]) TryUnwrap() (T, bool) {
	f.UpdateReadiness()
	return f.TryUnwrapWithoutUpdate()
}

// Clone returns a second independent handle to the same eventual value. If
// f is already Done, the clone starts out Done too (Go's assignment
// already copies T by value, which is all the original's Clone bound on T
// exists to provide; no explicit clone function is needed here).
func (f *Future[T]) Clone() *Future[T] {
	if f.lock == nil {
		return &Future[T]{val: f.val}
	}

	g := f.lock.Lock()
	g.Get().refs++
	g.Unlock()

	clone := &Future[T]{lock: f.lock}
	runtime.SetFinalizer(clone, (*Future[T]).leaked)
	return clone
}
