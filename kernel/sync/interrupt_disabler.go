// Package sync provides the locking primitives that are safe to use from
// code an interrupt handler might also touch: a reentrant interrupt
// disabler and a spinlock built on top of it. Ordinary mutexes are unsafe
// here because a handler that fires while the lock is held would deadlock
// against itself.
package sync

import "hydroxos/kernel/cpu"

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	interruptsEnabledFn = cpu.InterruptsEnabled
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
)

// interruptDisablerState tracks how many InterruptDisablers are currently
// held on this core, and whether interrupts were enabled before the first
// one was created. The kernel runs on a single core, so this is ordinary
// package state rather than a per-core/thread-local slot.
var interruptDisablerState struct {
	held       int
	wasEnabled bool
}

// InterruptDisabler is a guard that keeps interrupts disabled on the local
// core for as long as it exists. Creating nested InterruptDisablers is
// allowed: only the outermost one actually toggles the interrupt flag.
type InterruptDisabler struct {
	_ [0]func() // not comparable, not copyable by value in spirit
}

// NewInterruptDisabler disables interrupts (if they were not already
// disabled by an outer InterruptDisabler) and returns a guard. The caller
// must call Drop exactly once.
func NewInterruptDisabler() InterruptDisabler {
	if interruptDisablerState.held == 0 {
		interruptDisablerState.wasEnabled = interruptsEnabledFn()
		disableInterruptsFn()
	}
	interruptDisablerState.held++
	return InterruptDisabler{}
}

// NumInterruptDisablersHeld returns how many InterruptDisablers are
// currently held on this core.
func NumInterruptDisablersHeld() int {
	return interruptDisablerState.held
}

// InterruptsWereEnabled reports whether interrupts were enabled when the
// outermost currently-held InterruptDisabler was created. Panics if none
// are held.
func InterruptsWereEnabled() bool {
	if interruptDisablerState.held == 0 {
		panic("sync: InterruptsWereEnabled called with no InterruptDisabler held")
	}
	return interruptDisablerState.wasEnabled
}

// ForceRemainDisabled arranges for interrupts to stay disabled even after
// the last currently-held InterruptDisabler is dropped.
func ForceRemainDisabled() {
	interruptDisablerState.wasEnabled = false
}

// Drop releases this guard, re-enabling interrupts if this was the
// outermost guard and interrupts were enabled before it was created.
func (d InterruptDisabler) Drop() {
	if interruptsEnabledFn() {
		panic("sync: InterruptDisabler dropped with interrupts already enabled")
	}

	interruptDisablerState.held--
	if interruptDisablerState.held == 0 && interruptDisablerState.wasEnabled {
		enableInterruptsFn()
	}
}

// DropWithoutEnable releases this guard without re-enabling interrupts even
// if it was the outermost guard. It reports what Drop would have done: true
// if interrupts would have been re-enabled.
func (d InterruptDisabler) DropWithoutEnable() bool {
	if interruptsEnabledFn() {
		panic("sync: InterruptDisabler dropped with interrupts already enabled")
	}

	wasOutermost := interruptDisablerState.held == 1
	wasEnabled := interruptDisablerState.wasEnabled
	interruptDisablerState.held--
	return wasOutermost && wasEnabled
}
