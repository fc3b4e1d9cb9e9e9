package sync

// SetInterruptHooksForTesting swaps in fake cpu.EnableInterrupts /
// cpu.DisableInterrupts / cpu.InterruptsEnabled implementations so that
// packages built on top of InterruptDisabler and UninterruptibleSpinlock
// can be unit tested on a host that cannot execute cli/sti. It returns a
// restore function that undoes the swap; callers should defer it (or use
// testing.T.Cleanup).
func SetInterruptHooksForTesting(enabled func() bool, disable, enable func()) (restore func()) {
	origEnabled, origDisable, origEnable := interruptsEnabledFn, disableInterruptsFn, enableInterruptsFn
	interruptsEnabledFn, disableInterruptsFn, enableInterruptsFn = enabled, disable, enable

	return func() {
		interruptsEnabledFn, disableInterruptsFn, enableInterruptsFn = origEnabled, origDisable, origEnable
		interruptDisablerState.held = 0
		interruptDisablerState.wasEnabled = false
	}
}

// NewFakeInterruptState returns a (enabled, disable, enable) triple backed
// by a single in-memory flag, suitable for passing to
// SetInterruptHooksForTesting.
func NewFakeInterruptState() (enabled func() bool, disable, enable func()) {
	state := true
	return func() bool { return state },
		func() { state = false },
		func() { state = true }
}
