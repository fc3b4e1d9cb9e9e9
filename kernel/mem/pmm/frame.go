// Package pmm implements physical frame allocation: the PhysicalFrameAllocator
// singleton hands out and reclaims page-sized physical frames using a stack
// threaded through the free frames themselves, so it needs no heap of its
// own.
package pmm

import (
	"math"

	"hydroxos/kernel/mem"
)

// Frame describes a physical memory page index.
type Frame uintptr

// InvalidFrame is returned by page allocators when they fail to reserve the
// requested frame.
const InvalidFrame = Frame(math.MaxUint64)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() mem.PhysicalAddress {
	return mem.PhysicalAddress(f << mem.PageShift)
}

// FrameFromAddress returns the frame that addr falls within.
func FrameFromAddress(addr mem.PhysicalAddress) Frame {
	return Frame(addr >> mem.PageShift)
}
