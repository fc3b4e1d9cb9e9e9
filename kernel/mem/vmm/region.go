// Package vmm implements virtual address region allocation: the
// VirtualRegionAllocator hands out and reclaims page-aligned ranges of an
// address space's virtual memory, tracking free space as a doubly linked
// list of pages borrowed from the physical frame allocator. It never uses
// memory it considers free as its own scratch space, which is what lets a
// single allocator describe an address space other than the one currently
// active.
package vmm

import (
	"hydroxos/kernel/mem"
)

// VirtualRegion is a half-open range of virtual addresses, [Start, End).
type VirtualRegion struct {
	Start, End mem.VirtualAddress
}

// NewVirtualRegion builds a region. It panics if start > end.
func NewVirtualRegion(start, end mem.VirtualAddress) VirtualRegion {
	if start > end {
		panic("vmm: region start after end")
	}
	return VirtualRegion{Start: start, End: end}
}

// Size returns the region's length in bytes.
func (r VirtualRegion) Size() mem.Size {
	return mem.Size(r.End - r.Start)
}

// Empty reports whether the region has zero size.
func (r VirtualRegion) Empty() bool {
	return r.Start == r.End
}

// IsPageAligned reports whether both endpoints fall on a page boundary.
func (r VirtualRegion) IsPageAligned() bool {
	return uint64(r.Start)%uint64(mem.PageSize) == 0 && uint64(r.End)%uint64(mem.PageSize) == 0
}
