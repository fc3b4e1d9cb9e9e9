package sched

import (
	"hydroxos/kernel/irq"
	"hydroxos/kernel/mem/vmm"
	"hydroxos/kernel/sync"
)

// yieldVector is a software-interrupt vector this core reserves for
// voluntary yields: Yield and suspendCurrent both raise it (through
// triggerYieldTrapFn) to transfer control to PerformContextSwitch, rather
// than duplicating the dispatch logic inline at every call site.
const yieldVector = irq.ExceptionNum(0x81)

// timerIRQ is the legacy PIT's interrupt request line, used to preempt the
// current thread at the end of its time slice.
const timerIRQ = irq.IRQNum(0)

var kernelProcess *Process

// inInterrupt is set for the duration of an asynchronous hardware
// interrupt handler (BeginInterrupt/EndInterrupt); the context-switch
// dispatcher requires it to be true, and code that must never block (e.g.
// future.Future.BlockUntilReady) asserts it is false. The kernel runs on a
// single bootstrap CPU, so this is ordinary package state rather than a
// per-core slot.
var inInterrupt bool

// BeginInterrupt marks the start of an asynchronous hardware interrupt
// handler. It panics if called while already handling one: interrupt
// handlers on this core do not nest.
func BeginInterrupt() {
	if inInterrupt {
		panic("sched: BeginInterrupt called while already handling an interrupt")
	}
	inInterrupt = true
}

// EndInterrupt marks the end of an asynchronous hardware interrupt handler.
func EndInterrupt() {
	if !inInterrupt {
		panic("sched: EndInterrupt called without a matching BeginInterrupt")
	}
	inInterrupt = false
}

// IsHandlingInterrupt reports whether the CPU is currently inside an
// asynchronous hardware interrupt handler.
func IsHandlingInterrupt() bool {
	return inInterrupt
}

// currentThread is the thread presently Running on the CPU, or nil while
// idle.
var currentThread *Thread

// CurrentThread returns the thread currently running on the CPU, or nil if
// the CPU is idle.
func CurrentThread() *Thread {
	return currentThread
}

// InitKernelProcess creates the kernel process singleton (if it does not
// already exist) and wires the context-switch dispatcher to the reserved
// yield vector and the timer IRQ. It must be called once during boot, after
// the arch layer has installed its exception/IRQ trampolines, which bracket
// every call into a registered handler with BeginInterrupt/EndInterrupt.
func InitKernelProcess(addressSpace *vmm.AddressSpace) *Process {
	if kernelProcess == nil {
		kernelProcess = NewProcess(addressSpace)
		handleExceptionFn(yieldVector, func(f *irq.Frame, r *irq.Regs) { PerformContextSwitch(f, r) })
		handleIRQFn(timerIRQ, timerTick)
	}
	return kernelProcess
}

// handleExceptionFn and handleIRQFn wrap irq.HandleException/irq.HandleIRQ,
// which install their handlers by patching IDT entry stub assembly. Tests
// substitute no-ops, since there is no IDT to patch on the host running the
// test binary and they only need the dispatcher functions reachable
// directly.
var (
	handleExceptionFn = irq.HandleException
	handleIRQFn       = irq.HandleIRQ
)

// KernelProcess returns the process-wide singleton created by
// InitKernelProcess. It panics if called before InitKernelProcess.
func KernelProcess() *Process {
	if kernelProcess == nil {
		panic("sched: KernelProcess called before InitKernelProcess")
	}
	return kernelProcess
}

// timerTick is the timer IRQ handler: it preempts whatever thread is
// currently running (if any) by marking it Ready before invoking the same
// dispatcher the voluntary-yield path uses.
func timerTick(f *irq.Frame, r *irq.Regs) {
	if t := currentThread; t != nil {
		g := t.lock.Lock()
		g.Get().kind = Ready
		g.Unlock()
	}
	PerformContextSwitch(f, r)
}

// PerformContextSwitch is the dispatcher described by the context-switch
// contract: it must run in interrupt context (either the timer IRQ or the
// reserved yield vector's handler), with frame/regs pointing at the
// interrupted code's saved state.
//
//  1. If a thread was running, and its state has already been changed away
//     from Running (by Yield, ThreadWaitList.Wait, or an exit call before
//     raising the trap), its registers are saved into its own saved state,
//     and it is routed according to its new state: Ready threads go back
//     onto the kernel process's ready queue, Dead threads are reaped,
//     Waiting threads are left exactly where ThreadWaitList.Wait already
//     put them.
//  2. A thread is popped off the kernel process's ready queue. If one is
//     found, it becomes Running and its registers are restored into
//     frame/regs. If none is ready, frame is rewritten to land in the idle
//     loop on return.
//  3. currentThread is updated to match.
func PerformContextSwitch(frame *irq.Frame, regs *irq.Regs) {
	if !IsHandlingInterrupt() {
		panic("sched: PerformContextSwitch called outside interrupt context")
	}

	if old := currentThread; old != nil {
		g := old.lock.Lock()
		state := g.Get()
		if state.kind == Running {
			g.Unlock()
		} else {
			state.basic = SavedBasicRegisters{Frame: *frame, Regs: *regs}
			saveExtendedRegsFn(&state.ext)
			kind := state.kind
			g.Unlock()

			switch kind {
			case Ready:
				old.process.EnqueueReadyThread(old)
			case Dead:
				old.process.reapThread(old)
			case Waiting, Suspended:
				// already off any ready queue; nothing further to do.
			}
		}
	}

	next, nextGuard := kernelProcess.DequeueReadyThread()
	if next != nil {
		state := nextGuard.Get()
		state.kind = Running
		*frame = state.basic.Frame
		*regs = state.basic.Regs
		restoreExtendedRegsFn(&state.ext)
		nextGuard.Unlock()
	} else {
		frame.SetIdle()
	}
	currentThread = next
}

// triggerYieldTrapFn raises the reserved yield vector, transferring control
// to PerformContextSwitch via the registered exception handler. It is
// arch-provided (a plain INT instruction) and mocked in tests, which call
// PerformContextSwitch directly with a synthetic frame instead of relying
// on a real trap.
var triggerYieldTrapFn = triggerYieldTrap

func triggerYieldTrap()

// Yield voluntarily gives up the remainder of the current thread's time
// slice: it becomes Ready and the next ready thread, if any, is dispatched
// in its place. It is a no-op if no thread is currently running.
func Yield() {
	t := currentThread
	if t == nil {
		return
	}

	g := t.lock.Lock()
	g.Get().kind = Ready
	g.Unlock()

	triggerYieldTrapFn()
}

// suspendCurrent is called by ThreadWait.Suspend with the current thread's
// lock already held and its state already Waiting: it raises the same
// yield trap so the dispatcher processes the Waiting case, releasing the
// thread lock only once the trap (and therefore the save side of the
// context switch) has run.
func suspendCurrent(t *Thread, guard *sync.UninterruptibleSpinlockGuard[threadState]) {
	if t != currentThread {
		guard.Unlock()
		panic("sched: suspendCurrent called on a thread that is not current")
	}
	guard.Unlock()
	triggerYieldTrapFn()
}
