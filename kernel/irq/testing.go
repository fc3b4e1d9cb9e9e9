package irq

// SetIdleHooksForTesting overrides the arch-provided idle loop entry point
// and stack pointer that Frame.SetIdle installs, since there is no real
// idle loop to jump into on the host running the test binary. It returns a
// restore function; callers should use testing.T.Cleanup.
func SetIdleHooksForTesting(entry, stackTop func() uint64) (restore func()) {
	origEntry, origStackTop := idleEntryFn, idleStackTopFn
	idleEntryFn, idleStackTopFn = entry, stackTop
	return func() {
		idleEntryFn, idleStackTopFn = origEntry, origStackTop
	}
}
