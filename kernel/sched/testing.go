package sched

import "hydroxos/kernel/mem/pmm"

// SetYieldTrapForTesting overrides the mechanism Yield and ThreadWait.Suspend
// use to hand control to the context-switch dispatcher, since there is no
// real yield vector to raise on the host running the test binary. It
// returns a restore function; callers should use testing.T.Cleanup.
func SetYieldTrapForTesting(fn func()) (restore func()) {
	orig := triggerYieldTrapFn
	triggerYieldTrapFn = fn
	return func() { triggerYieldTrapFn = orig }
}

// SetStackBackingForTesting overrides how a kernel thread's stack frame is
// turned into a pointer, since physical memory is not identity-mapped on
// the host running the test binary. It returns a restore function; callers
// should use testing.T.Cleanup.
func SetStackBackingForTesting(fn func(pmm.Frame) uintptr) (restore func()) {
	orig := stackFramePtrFn
	stackFramePtrFn = fn
	return func() { stackFramePtrFn = orig }
}

// ResetForTesting clears the kernel process singleton, the current-thread
// pointer, and the in-interrupt flag, so each test using InitKernelProcess
// starts from a clean slate. It returns a restore function; callers should
// use testing.T.Cleanup.
func ResetForTesting() (restore func()) {
	origProcess, origCurrent, origInInterrupt := kernelProcess, currentThread, inInterrupt
	kernelProcess, currentThread, inInterrupt = nil, nil, false
	return func() {
		kernelProcess, currentThread, inInterrupt = origProcess, origCurrent, origInInterrupt
	}
}
