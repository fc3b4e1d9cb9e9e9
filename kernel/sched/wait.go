package sched

import (
	"runtime"

	"hydroxos/kernel/sync"
)

// waitListInternal is the queue behind a ThreadWaitList: a FIFO of threads
// currently Waiting on it. The original keeps this as a doubly linked list
// threaded through each Thread's own storage, since it must operate without
// any general-purpose allocation. Go's GC removes that constraint, so a
// plain slice of *Thread plays the same role.
type waitListInternal struct {
	queue []*Thread
}

// ThreadWaitList is a per-event queue of blocked threads. It must live at a
// stable address: callers are expected to embed or heap-allocate it once
// and never move it, matching the original's non-movable pin requirement
// (enforced here only by convention, since Go values referenced by pointer
// are never relocated by the collector).
type ThreadWaitList struct {
	internal *sync.UninterruptibleSpinlock[waitListInternal]
}

// NewThreadWaitList returns an empty wait list.
func NewThreadWaitList() *ThreadWaitList {
	return &ThreadWaitList{internal: sync.NewUninterruptibleSpinlock(waitListInternal{})}
}

// Len reports how many threads are currently queued. Exposed for tests and
// diagnostics; like any concurrent queue length it may be stale the instant
// it is returned.
func (l *ThreadWaitList) Len() int {
	g := l.internal.Lock()
	defer g.Unlock()
	return len(g.Get().queue)
}

// ThreadWait is the guard returned by ThreadWaitList.Wait. It holds the
// waiting thread's scheduler lock from the moment the thread is linked onto
// the wait list until Suspend performs the actual context switch, so a
// concurrent wake_* on another CPU can never observe the thread as
// "Waiting and therefore safe to resume" before its CPU state has actually
// been saved.
//
// The caller must call Suspend exactly once. The original enforces this
// with a destructor that panics if the guard is dropped unsuspended; Go has
// no deterministic destructor; Suspend's own double-call check catches the
// common mistake synchronously, and a finalizer is registered as a
// best-effort backstop against the guard being silently discarded.
type ThreadWait struct {
	thread    *Thread
	guard     *sync.UninterruptibleSpinlockGuard[threadState]
	suspended bool
}

func (w *ThreadWait) leaked() {
	if !w.suspended {
		panic("sched: ThreadWait dropped without calling Suspend")
	}
}

// Suspend performs the context switch that actually parks the current
// thread: it must be called with the thread already transitioned to
// Waiting and its lock held, which is exactly the state Wait leaves things
// in.
func (w *ThreadWait) Suspend() {
	if w.suspended {
		panic("sched: ThreadWait.Suspend called twice")
	}
	w.suspended = true
	runtime.SetFinalizer(w, nil)

	suspendCurrent(w.thread, w.guard)
}

// Wait is called by the thread that wants to block on l. It must be called
// by the current thread about itself, with the thread in state Running. It
// transitions the thread to Waiting, links it onto l's tail, and returns a
// guard that still holds the thread's scheduler lock; the caller must call
// guard.Suspend() to complete the block.
func (l *ThreadWaitList) Wait(t *Thread) *ThreadWait {
	g := t.lock.Lock()
	state := g.Get()
	if state.kind != Running {
		g.Unlock()
		panic("sched: ThreadWaitList.Wait called on a thread that is not Running")
	}
	state.kind = Waiting
	state.waitList = l

	ig := l.internal.Lock()
	ig.Get().queue = append(ig.Get().queue, t)
	ig.Unlock()

	w := &ThreadWait{thread: t, guard: g}
	runtime.SetFinalizer(w, (*ThreadWait).leaked)
	return w
}

// WakeOne pops the head of l's queue, if any, and transitions it
// Waiting -> Suspended -> Ready, enqueuing it on its process's ready
// queue. It returns false if l was empty. It panics if the dequeued
// thread's state is not Waiting{list: l}, which would mean l's bookkeeping
// and the thread's own state have diverged.
func (l *ThreadWaitList) WakeOne() bool {
	ig := l.internal.Lock()
	q := ig.Get()
	if len(q.queue) == 0 {
		ig.Unlock()
		return false
	}
	t := q.queue[0]
	q.queue = q.queue[1:]
	ig.Unlock()

	g := t.lock.Lock()
	state := g.Get()
	if state.kind != Waiting || state.waitList != l {
		g.Unlock()
		panic("sched: WakeOne dequeued a thread that was not Waiting on this list")
	}
	state.kind = Suspended
	state.waitList = nil
	g.Unlock()

	t.process.EnqueueReadyThread(t)
	return true
}

// WakeAll repeatedly calls WakeOne until l is empty, returning the count
// woken.
func (l *ThreadWaitList) WakeAll() int {
	n := 0
	for l.WakeOne() {
		n++
	}
	return n
}

// Close panics if l is non-empty. Dropping (in the original, via Drop; here,
// discarding) a non-empty wait list is a bug: it would silently strand
// whichever threads are still queued on it.
func (l *ThreadWaitList) Close() {
	if l.Len() != 0 {
		panic("sched: ThreadWaitList discarded while non-empty")
	}
}
