package vmm

// pagingRootFn constructs a fresh, opaque root paging structure for a new
// address space. The core never inspects or walks page tables itself: it
// only needs something to hand to the arch layer (init_phase_2, SwitchPDT)
// when an address space becomes active. Tests substitute a fake that
// returns distinguishable tokens instead of real page directory frames.
var pagingRootFn = newPagingRoot

// newPagingRoot is implemented by the arch layer: it allocates and
// initializes a fresh top-level page table (copying the shared kernel
// upper half into it) and returns an opaque handle to it.
func newPagingRoot() uintptr

// AddressSpace owns a root paging structure and exactly one
// VirtualRegionAllocator. The kernel address space is a process-wide
// singleton; every other address space shares its upper half, but that
// sharing is entirely an arch/paging concern and plays no part in the
// VirtualRegionAllocator's own bookkeeping.
type AddressSpace struct {
	pagingRoot uintptr
	alloc      *VirtualRegionAllocator
}

var kernelAddressSpace *AddressSpace

// NewKernelAddressSpace builds (once) and returns the singleton kernel
// address space. Subsequent calls return the same instance.
func NewKernelAddressSpace() *AddressSpace {
	if kernelAddressSpace == nil {
		kernelAddressSpace = &AddressSpace{
			pagingRoot: pagingRootFn(),
			alloc:      NewVirtualRegionAllocator(),
		}
	}
	return kernelAddressSpace
}

// New builds a fresh, non-kernel address space with its own
// VirtualRegionAllocator.
func New() *AddressSpace {
	return &AddressSpace{
		pagingRoot: pagingRootFn(),
		alloc:      NewVirtualRegionAllocator(),
	}
}

// VirtualAlloc returns the address space's VirtualRegionAllocator.
func (a *AddressSpace) VirtualAlloc() *VirtualRegionAllocator {
	return a.alloc
}

// PagingRoot returns the opaque root paging structure handle the arch layer
// gave this address space when it was created.
func (a *AddressSpace) PagingRoot() uintptr {
	return a.pagingRoot
}
