package pmm

import (
	"hydroxos/kernel/boot"
	"hydroxos/kernel/mem"
	"hydroxos/kernel/sync"
)

// allocator is the kernel-wide physical frame allocator singleton. It is
// guarded by an UninterruptibleSpinlock since frame allocation/free can be
// reached from both ordinary kernel code and interrupt handlers (e.g. a
// page-fault handler allocating a copy-on-write frame).
var allocator = sync.NewUninterruptibleSpinlock(FreeFrameStack{})

// presentFrames is the total number of physical frames the machine reports
// as RAM, regardless of whether they were ever individually freed. It is
// computed once at Init and never changes afterwards.
var presentFrames uint64

// countedRegionTypes are the boot.MemoryRegionTypes that count towards
// "present RAM" even though not all of them are immediately freed.
var countedRegionTypes = map[boot.MemoryRegionType]bool{
	boot.Usable:          true,
	boot.InUse:           true,
	boot.AcpiReclaimable: true,
	boot.Kernel:          true,
	boot.KernelStack:     true,
	boot.PageTable:       true,
	boot.Bootloader:      true,
	boot.BootInfoRegion:  true,
	boot.Package:         true,
}

// Init populates the allocator from the bootloader-reported memory map.
// Every frame whose region type is Usable or Bootloader is pushed onto the
// free stack; every frame whose region type appears in countedRegionTypes
// contributes to the "present RAM" count returned by PresentFrames,
// independently of whether it was freed.
func Init(info *boot.Info) {
	var present uint64

	info.VisitMemoryMap(func(entry *boot.MemoryMapEntry) bool {
		startFrame := Frame(entry.PhysAddress >> mem.PageShift)
		frameCount := entry.Length >> mem.PageShift

		if countedRegionTypes[entry.Type] {
			present += frameCount
		}

		if entry.Type == boot.Usable || entry.Type == boot.Bootloader {
			g := allocator.Lock()
			for i := uint64(0); i < frameCount; i++ {
				g.Get().PushFrame(startFrame + Frame(i))
			}
			g.Unlock()
		}

		return true
	})

	presentFrames = present
}

// PresentFrames returns the total number of physical frames the bootloader
// reported as RAM, freed or not.
func PresentFrames() uint64 {
	return presentFrames
}

// AllocFrame pops a single frame off the free stack. It returns
// InvalidFrame, false if the allocator is empty.
func AllocFrame() (Frame, bool) {
	g := allocator.Lock()
	defer g.Unlock()

	f := g.Get().PopFrame()
	return f, f.Valid()
}

// FreeFrame pushes frame back onto the free stack. The caller must ensure
// frame is valid RAM, currently in use, and not already free.
func FreeFrame(frame Frame) {
	g := allocator.Lock()
	defer g.Unlock()
	g.Get().PushFrame(frame)
}

// AllocFrames fills out with freshly allocated frames. It is all-or-nothing:
// if fewer than len(out) frames are available, it returns false and leaves
// the allocator completely unmodified.
func AllocFrames(out []Frame) bool {
	g := allocator.Lock()
	defer g.Unlock()
	return g.Get().PopFrames(out)
}

// FreeFrames pushes every frame in frames back onto the free stack.
func FreeFrames(frames []Frame) {
	g := allocator.Lock()
	defer g.Unlock()
	g.Get().PushFrames(frames)
}

// NumFramesAvailable returns the number of frames currently on the free
// stack.
func NumFramesAvailable() uint64 {
	g := allocator.Lock()
	defer g.Unlock()
	return g.Get().NumFramesAvailable()
}
