// Package goruntime bootstraps the pieces of the Go runtime that still need
// initializing when running without a host OS underneath them: the heap
// allocator, the map/interface hashing machinery, and the module/type-link
// tables the runtime otherwise sets up during process startup. Without this,
// no heap allocation, map write or interface conversion would work. It also
// routes the runtime's memory reservation and mapping hooks to the kernel's
// own virtual and physical allocators.
package goruntime

import (
	"unsafe"

	"hydroxos/kernel"
	"hydroxos/kernel/cpu"
	"hydroxos/kernel/mem"
	"hydroxos/kernel/mem/pmm"
	"hydroxos/kernel/mem/vmm"
)

var (
	mapPageFn = cpu.MapPage

	allocFrameFn = pmm.AllocFrame

	reserveRegionFn = func(size mem.Size) (vmm.VirtualRegion, bool) {
		return vmm.NewKernelAddressSpace().VirtualAlloc().Alloc(size)
	}

	mallocInitFn    = mallocInit
	algInitFn       = algInit
	modulesInitFn   = modulesInit
	typeLinksInitFn = typeLinksInit
	itabsInitFn     = itabsInit

	// prngSeed seeds the fallback random source used by getRandomData.
	prngSeed = 0xdeadc0de
)

//go:linkname algInit runtime.alginit
func algInit()

//go:linkname modulesInit runtime.modulesinit
func modulesInit()

//go:linkname typeLinksInit runtime.typelinksinit
func typeLinksInit()

//go:linkname itabsInit runtime.itabsinit
func itabsInit()

//go:linkname mallocInit runtime.mallocinit
func mallocInit()

//go:linkname mSysStatInc runtime.mSysStatInc
func mSysStatInc(*uint64, uintptr)

func alignedSize(size uintptr) mem.Size {
	return mem.Size(mem.Size(size).Pages()) * mem.PageSize
}

// mapRegion backs every page in [virtAddr, virtAddr+size) with a freshly
// allocated physical frame. It returns false (and leaves whatever pages it
// already mapped in place) if a frame or a page-table entry can't be had.
func mapRegion(virtAddr uintptr, size mem.Size) bool {
	pages := uint64(size) / uint64(mem.PageSize)
	for i := uint64(0); i < pages; i++ {
		frame, ok := allocFrameFn()
		if !ok {
			return false
		}
		if !mapPageFn(virtAddr+uintptr(i)*uintptr(mem.PageSize), uintptr(frame.Address()), mapFlagsRW) {
			return false
		}
	}
	return true
}

const mapFlagsRW = 1<<0 | 1<<1 // present | writable; the arch adapter's own bit layout.

// sysReserve reserves address space without allocating any physical memory
// or establishing any page mappings. It replaces runtime.sysReserve.
//
//go:redirect-from runtime.sysReserve
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	region, ok := reserveRegionFn(alignedSize(size))
	if !ok {
		panic("goruntime: ran out of kernel virtual address space")
	}
	*reserved = true
	return unsafe.Pointer(uintptr(region.Start))
}

// sysMap establishes a mapping for a region reserved previously via
// sysReserve. It replaces runtime.sysMap.
//
//go:redirect-from runtime.sysMap
//go:nosplit
func sysMap(virtAddr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		panic("goruntime: sysMap called with reserved=false")
	}

	regionSize := alignedSize(size)
	if !mapRegion(uintptr(virtAddr), regionSize) {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, uintptr(regionSize))
	return virtAddr
}

// sysAlloc reserves a virtual region and backs every page in it with a
// freshly allocated physical frame. It replaces runtime.sysAlloc.
//
//go:redirect-from runtime.sysAlloc
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	regionSize := alignedSize(size)
	region, ok := reserveRegionFn(regionSize)
	if !ok {
		return unsafe.Pointer(uintptr(0))
	}
	if !mapRegion(uintptr(region.Start), regionSize) {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, uintptr(regionSize))
	return unsafe.Pointer(uintptr(region.Start))
}

// nanotime stands in for a clock until a real timekeeper exists: it spins
// briefly and always returns 1, so successive calls never go backwards but
// never advance either.
//
//go:redirect-from runtime.nanotime
//go:nosplit
func nanotime() uint64 {
	for i := 0; i < 100; i++ {
	}
	return 1
}

// getRandomData populates r with pseudo-random bytes. The real runtime reads
// from a hardware RNG or /dev/random, neither of which exists here.
//
//go:redirect-from runtime.getRandomData
func getRandomData(r []byte) {
	for i := range r {
		prngSeed = (prngSeed * 58321) + 11113
		r[i] = byte((prngSeed >> 16) & 255)
	}
}

// Init enables the Go runtime features the rest of the kernel depends on:
// heap allocation, map primitives, and interface values.
func Init() *kernel.Error {
	mallocInitFn()
	algInitFn()
	modulesInitFn()
	typeLinksInitFn()
	itabsInitFn()
	return nil
}

func init() {
	// Reference every redirect target so the compiler doesn't dead-code
	// eliminate them; the real call sites are inside the runtime package
	// itself, resolved through go:linkname at link time.
	var (
		reserved bool
		stat     uint64
		zeroPtr  = unsafe.Pointer(uintptr(0))
	)

	sysReserve(zeroPtr, 0, &reserved)
	sysMap(zeroPtr, 0, reserved, &stat)
	sysAlloc(0, &stat)
	getRandomData(nil)
	stat = nanotime()
}
