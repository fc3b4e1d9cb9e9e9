package pmm

import (
	"unsafe"

	"hydroxos/kernel/mem"
)

// framesPerPage is the number of Frame-sized slots ("PPP" in the core's
// terminology) that fit in a single page: PageSize / sizeof(Frame).
const framesPerPage = int(mem.PageSize) / int(unsafe.Sizeof(Frame(0)))

// stackPage is the layout a free frame is given while it backs the free
// stack: an array of framesPerPage frame-sized slots. Slot 0 of every
// stack page except the bottom-most one holds the frame of the page
// beneath it in the stack; slot 0 of the bottom-most page is unused.
type stackPage struct {
	slots [framesPerPage]Frame
}

var (
	// framePtrFn returns a pointer to the stack page backed by the given
	// frame. It relies on all of physical memory being permanently
	// identity-mapped (no offset is added); tests override it to point into
	// an ordinary Go byte slice instead.
	framePtrFn = func(f Frame) unsafe.Pointer {
		return unsafe.Pointer(f.Address())
	}
)

func stackPageAt(f Frame) *stackPage {
	return (*stackPage)(framePtrFn(f))
}

// FreeFrameStack is a LIFO free list of physical frames, threaded through
// the free frames' own storage: no auxiliary memory is required beyond the
// allocator's own two words of state. This is what makes it usable before
// any general-purpose heap exists.
type FreeFrameStack struct {
	numFramesAvailable uint64
	stackTop           Frame
}

// NumFramesAvailable returns the number of frames currently on the stack.
func (s *FreeFrameStack) NumFramesAvailable() uint64 {
	return s.numFramesAvailable
}

// framesOnTopStackPage returns how many of the slots in the page currently
// at stackTop are occupied (including the page itself as one slot).
func (s *FreeFrameStack) framesOnTopStackPage() int {
	if s.numFramesAvailable == 0 {
		panic("pmm: framesOnTopStackPage called on an empty stack")
	}
	n := int(s.numFramesAvailable % uint64(framesPerPage))
	if n == 0 {
		return framesPerPage
	}
	return n
}

// PushFrame adds frame to the free stack. The caller must ensure frame is
// valid RAM, currently in use, and not already on the stack: pushing an
// already-free frame corrupts the stack silently.
func (s *FreeFrameStack) PushFrame(frame Frame) {
	if s.numFramesAvailable == 0 {
		s.stackTop = frame
		stackPageAt(frame).slots[0] = 0
	} else {
		i := s.framesOnTopStackPage()
		if i == framesPerPage {
			oldTop := s.stackTop
			s.stackTop = frame
			stackPageAt(frame).slots[0] = oldTop
		} else {
			stackPageAt(s.stackTop).slots[i] = frame
		}
	}
	s.numFramesAvailable++
}

// PopFrame removes and returns the most recently pushed frame. It returns
// InvalidFrame if the stack is empty.
func (s *FreeFrameStack) PopFrame() Frame {
	if s.numFramesAvailable == 0 {
		return InvalidFrame
	}

	i := s.framesOnTopStackPage()

	var result Frame
	if i == 1 {
		result = s.stackTop
		if s.numFramesAvailable == 1 {
			s.stackTop = 0
		} else {
			s.stackTop = stackPageAt(s.stackTop).slots[0]
		}
	} else {
		result = stackPageAt(s.stackTop).slots[i-1]
	}

	s.numFramesAvailable--
	return result
}

// PushFrames pushes every frame in frames, in order.
func (s *FreeFrameStack) PushFrames(frames []Frame) {
	for _, f := range frames {
		s.PushFrame(f)
	}
}

// PopFrames attempts to fill out with frames popped from the stack. It is
// all-or-nothing: if fewer than len(out) frames are available, it returns
// false and leaves the stack completely unmodified.
func (s *FreeFrameStack) PopFrames(out []Frame) bool {
	if uint64(len(out)) > s.numFramesAvailable {
		return false
	}
	for i := range out {
		out[i] = s.PopFrame()
	}
	return true
}
