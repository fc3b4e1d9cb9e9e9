// Package sched implements the scheduling core: threads, processes, the
// ready queue, wait lists, and the context-switch dispatcher that ties them
// to the interrupt frame. It treats the actual register save/restore
// instructions and the raw act of resuming a thread's machine state as an
// arch adapter's concern (see regs_amd64.go); this package owns the state
// machine and queue discipline around that boundary.
package sched

import (
	"sync/atomic"

	"hydroxos/kernel/sync"
)

// ThreadID uniquely identifies a Thread for its lifetime.
type ThreadID uint64

var nextThreadID uint64

func allocThreadID() ThreadID {
	return ThreadID(atomic.AddUint64(&nextThreadID, 1))
}

// ThreadStateKind is the tag of a Thread's current ThreadState.
type ThreadStateKind int

const (
	// Running means the thread is currently executing on the CPU.
	Running ThreadStateKind = iota
	// Ready means the thread is sitting on its process's ready queue.
	Ready
	// Waiting means the thread is blocked on exactly one ThreadWaitList.
	Waiting
	// Suspended means the thread is not runnable and not queued anywhere.
	// This is normally a transient state between Waiting and Ready, or the
	// state a freshly created thread starts in before its first dispatch.
	Suspended
	// Dead means the thread has exited or been killed and its resources
	// are eligible for reclamation.
	Dead
)

func (k ThreadStateKind) String() string {
	switch k {
	case Running:
		return "running"
	case Ready:
		return "ready"
	case Waiting:
		return "waiting"
	case Suspended:
		return "suspended"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// threadState is everything about a Thread that is mutated under its own
// lock: its place in the state machine, which wait list it is on (if any),
// and its saved register state while it is not Running.
//
// The original design keeps each Thread's wait-list membership as a raw
// intrusive {prev, next} pair so the list needs no separate storage. Since
// Go threads are ordinary garbage-collected pointers rather than raw,
// manually-owned ones, ThreadWaitList instead keeps its queue as a plain
// slice of *Thread; threadState only needs to remember which list (if any)
// a Waiting thread belongs to, for WakeOne's sanity check.
type threadState struct {
	kind     ThreadStateKind
	waitList *ThreadWaitList

	basic SavedBasicRegisters
	ext   SavedExtendedRegisters
}

// Thread is a single schedulable unit of execution: an owning reference to
// its Process, a stable identity, a private register save area, and (via
// threadState.waitList) membership in at most one ThreadWaitList.
type Thread struct {
	id      ThreadID
	process *Process

	lock *sync.UninterruptibleSpinlock[threadState]
}

// ID returns the thread's stable identity.
func (t *Thread) ID() ThreadID {
	return t.id
}

// Process returns the process that owns this thread.
func (t *Thread) Process() *Process {
	return t.process
}

// Lock acquires the thread's scheduler lock, returning a guard over its
// mutable state.
func (t *Thread) Lock() *sync.UninterruptibleSpinlockGuard[threadState] {
	return t.lock.Lock()
}

// State reports the thread's current state kind. This is a snapshot: by
// the time the caller observes it, it may already be stale.
func (t *Thread) State() ThreadStateKind {
	g := t.lock.Lock()
	defer g.Unlock()
	return g.Get().kind
}
