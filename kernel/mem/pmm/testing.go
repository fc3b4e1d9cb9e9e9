package pmm

import (
	"unsafe"

	"hydroxos/kernel/sync"
)

// SetFramePtrFnForTesting overrides how a Frame is mapped to memory,
// letting packages built on top of pmm (e.g. kernel/mem/vmm) back frames
// with ordinary Go memory in their own tests instead of real physical RAM.
// It returns a restore function; callers should use testing.T.Cleanup.
func SetFramePtrFnForTesting(fn func(Frame) unsafe.Pointer) (restore func()) {
	orig := framePtrFn
	framePtrFn = fn
	return func() { framePtrFn = orig }
}

// ResetAllocatorForTesting replaces the package-wide frame allocator
// singleton with a fresh, empty one, for test isolation.
func ResetAllocatorForTesting() (restore func()) {
	origAllocator, origPresent := allocator, presentFrames
	allocator = sync.NewUninterruptibleSpinlock(FreeFrameStack{})
	presentFrames = 0
	return func() {
		allocator = origAllocator
		presentFrames = origPresent
	}
}
