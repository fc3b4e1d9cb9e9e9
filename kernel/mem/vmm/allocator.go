package vmm

import (
	"sort"

	"hydroxos/kernel/mem"
	"hydroxos/kernel/mem/pmm"
)

// VirtualRegionAllocator hands out and reclaims page-aligned ranges of
// virtual address space, tracking free space as a doubly linked list of
// pages borrowed from the physical frame allocator. Unlike the physical
// frame allocator, it never uses memory it considers free as its own
// storage, since the address space it describes need not be the one
// currently active.
//
// The zero value is not ready to use; call NewVirtualRegionAllocator.
type VirtualRegionAllocator struct {
	head pmm.Frame
}

// NewVirtualRegionAllocator returns an empty allocator. Call Free with
// regions known to be free in the address space to populate it.
func NewVirtualRegionAllocator() *VirtualRegionAllocator {
	return &VirtualRegionAllocator{head: pmm.InvalidFrame}
}

// newPage allocates and zero-initializes a fresh, detached allocPage.
func (a *VirtualRegionAllocator) newPage() pmm.Frame {
	f, ok := pmm.AllocFrame()
	if !ok {
		panic("vmm: out of physical memory allocating a region allocator page")
	}

	p := pageAt(f)
	p.header = pageHeader{prev: pmm.InvalidFrame, next: pmm.InvalidFrame, length: 0}
	for i := range p.regions {
		p.regions[i] = VirtualRegion{}
	}
	return f
}

func freePage(f pmm.Frame) {
	pmm.FreeFrame(f)
}

// findIdxForRegionInsert locates where region belongs among p's sorted
// entries, matching Rust's binary_search_by_key-on-end-address semantics:
// it returns (idx, true) if region directly abuts or matches an existing
// entry ending at region.Start, and (idx, false) for the index region would
// be inserted at otherwise. It panics if region overlaps an already-free
// span, in this page or either neighbor.
func findIdxForRegionInsert(p *allocPage, region VirtualRegion) (int, bool) {
	valid := p.validRegions()
	idx, found := sort.Find(len(valid), func(i int) int {
		switch {
		case valid[i].End < region.Start:
			return 1
		case valid[i].End > region.Start:
			return -1
		default:
			return 0
		}
	})

	var idxBefore, idxAfter int
	haveBefore, haveAfter := false, false

	if found {
		idxBefore, haveBefore = idx, true
		if idx != len(valid)-1 {
			idxAfter, haveAfter = idx+1, true
		}
	} else if idx == 0 {
		if len(valid) > 0 {
			idxAfter, haveAfter = 0, true
		}
	} else if idx == len(valid) {
		idxBefore, haveBefore = idx-1, true
	} else {
		idxBefore, haveBefore = idx-1, true
		idxAfter, haveAfter = idx, true
	}

	alreadyFreeBefore := false
	if haveBefore {
		alreadyFreeBefore = region.Start < valid[idxBefore].End
	} else if p.header.prev.Valid() {
		if r, ok := pageAt(p.header.prev).overallRange(); ok {
			alreadyFreeBefore = region.Start < r.End
		}
	}

	alreadyFreeAfter := false
	if haveAfter {
		alreadyFreeAfter = region.End > valid[idxAfter].Start
	} else if p.header.next.Valid() {
		if r, ok := pageAt(p.header.next).overallRange(); ok {
			alreadyFreeAfter = region.End > r.Start
		}
	}

	if alreadyFreeBefore || alreadyFreeAfter {
		panic("vmm: attempt to free an already-free virtual region")
	}

	return idx, found
}

// shouldCombine reports whether two adjacent pages' contents fit comfortably
// in one page together: their combined length must fit in a single page,
// and either one of them is empty, the combined length is small, or their
// lengths are lopsided enough that merging is worthwhile.
func shouldCombine(p1, p2 *allocPage) bool {
	if p1.header.len()+p2.header.len() > regionsPerPage {
		return false
	}
	if p1.header.isEmpty() || p2.header.isEmpty() {
		return true
	}
	if p1.header.len()+p2.header.len() < regionsPerPage/4 {
		return true
	}
	diff := p1.header.len() - p2.header.len()
	if diff < 0 {
		diff = -diff
	}
	return diff >= regionsPerPage/8
}

// combinePages merges p2's entries onto the end of p1 (which must
// immediately precede p2) and frees p2's backing frame.
func (a *VirtualRegionAllocator) combinePages(f1, f2 pmm.Frame) {
	p1, p2 := pageAt(f1), pageAt(f2)
	if p1.header.next != f2 {
		panic("vmm: combinePages called on non-adjacent pages")
	}

	copy(p1.regions[p1.header.len():p1.header.len()+p2.header.len()], p2.regions[0:p2.header.len()])
	p1.header.setLen(p1.header.len() + p2.header.len())

	p1.header.next = p2.header.next
	if p2.header.next.Valid() {
		pageAt(p2.header.next).header.prev = f1
	}
	if a.head == f2 {
		a.head = f1
	}

	freePage(f2)
}

// combineIfSmall merges page with an underfull neighbor, preferring its
// predecessor, and repeats from the merge result until no further merge
// applies. It returns the frame of the page the original entries now live
// in.
func (a *VirtualRegionAllocator) combineIfSmall(f pmm.Frame) pmm.Frame {
	p := pageAt(f)
	prev, next := p.header.prev, p.header.next

	if prev.Valid() && shouldCombine(pageAt(prev), p) {
		a.combinePages(prev, f)
		return a.combineIfSmall(prev)
	}
	if next.Valid() && shouldCombine(p, pageAt(next)) {
		a.combinePages(f, next)
		return a.combineIfSmall(f)
	}
	return f
}

// tryCoalesceAt merges page's last entry into its successor's first entry
// if they describe adjacent virtual addresses, recursing into the
// successor and then shrinking page if it became small.
func (a *VirtualRegionAllocator) tryCoalesceAt(f pmm.Frame) bool {
	p := pageAt(f)
	next := p.header.next
	if p.header.isEmpty() || !next.Valid() {
		return false
	}

	nextPage := pageAt(next)
	if p.regions[p.header.len()-1].End != nextPage.regions[0].Start {
		return false
	}

	nextPage.regions[0].Start = p.regions[p.header.len()-1].Start
	p.header.setLen(p.header.len() - 1)

	if nextPage.header.len() == 1 {
		a.tryCoalesceAt(next)
	}

	a.combineIfSmall(f)
	return true
}

// Free marks region as free virtual address space. region must be page
// aligned. Free panics if region overlaps space already considered free:
// callers must ensure the region was actually allocated or reserved.
func (a *VirtualRegionAllocator) Free(region VirtualRegion) {
	if !region.IsPageAligned() {
		panic("vmm: Free on a non-page-aligned region")
	}
	if region.Empty() {
		return
	}

	if !a.head.Valid() {
		a.head = a.newPage()
	}

	f := a.head
	for {
		next := pageAt(f).header.next
		if !next.Valid() {
			break
		}
		r, ok := pageAt(next).overallRange()
		if !ok || region.End < r.Start {
			break
		}
		f = next
	}

	p := pageAt(f)
	idx, found := findIdxForRegionInsert(p, region)

	var resultFrame pmm.Frame
	var resultIdx int

	switch {
	case found && idx < p.header.len()-1 && p.regions[idx+1].Start == region.End:
		p.regions[idx].End = p.regions[idx+1].End
		p.removeAt(idx + 1)
		resultFrame, resultIdx = f, idx

	case found:
		p.regions[idx].End = region.End
		resultFrame, resultIdx = f, idx

	case !found && idx < p.header.len() && p.regions[idx].Start == region.End:
		p.regions[idx].Start = region.Start
		resultFrame, resultIdx = f, idx

	default:
		insFrame, insIdx := f, idx
		if p.header.isFull() {
			insFrame, insIdx = a.split(f, idx)
			p = pageAt(insFrame)
		}
		p.insertAt(insIdx, region)
		resultFrame, resultIdx = insFrame, insIdx
	}

	p = pageAt(resultFrame)
	coalesced := false
	if resultIdx == 0 && pageAt(resultFrame).header.prev.Valid() {
		coalesced = a.tryCoalesceAt(pageAt(resultFrame).header.prev)
	}
	if !coalesced && resultIdx == p.header.len()-1 {
		a.tryCoalesceAt(resultFrame)
	}
}

// Alloc finds and removes a free region of the given size, returning it.
// It returns false if no single free region is large enough. size must be
// a multiple of the page size.
func (a *VirtualRegionAllocator) Alloc(size mem.Size) (VirtualRegion, bool) {
	if uint64(size)%uint64(mem.PageSize) != 0 {
		panic("vmm: Alloc size not a multiple of the page size")
	}
	if size == 0 {
		return VirtualRegion{}, true
	}

	for f := a.head; f.Valid(); {
		p := pageAt(f)
		valid := p.validRegions()
		for idx := len(valid) - 1; idx >= 0; idx-- {
			region := valid[idx]
			switch {
			case region.Size() == size:
				p.removeAt(idx)
				a.combineIfSmall(f)
				return VirtualRegion{Start: region.Start, End: region.Start + mem.VirtualAddress(size)}, true
			case region.Size() > size:
				result := VirtualRegion{Start: region.Start, End: region.Start + mem.VirtualAddress(size)}
				p.regions[idx].Start += mem.VirtualAddress(size)
				return result, true
			}
		}
		f = p.header.next
	}

	return VirtualRegion{}, false
}

// Reserve removes region from the set of free regions without regard to
// size, provided it is wholly contained in one free region already. It
// returns false, leaving the allocator unmodified, if any part of region is
// not currently free. region must be page aligned.
func (a *VirtualRegionAllocator) Reserve(region VirtualRegion) bool {
	if !region.IsPageAligned() {
		panic("vmm: Reserve on a non-page-aligned region")
	}
	if region.Empty() {
		return true
	}

	for f := a.head; f.Valid(); {
		p := pageAt(f)
		r, ok := p.overallRange()
		if !ok {
			f = p.header.next
			continue
		}
		if region.Start < r.Start {
			break
		}
		if region.Start >= r.End {
			f = p.header.next
			continue
		}

		valid := p.validRegions()
		idx := sort.Search(len(valid), func(i int) bool { return valid[i].Start >= region.Start })
		if idx == len(valid) || valid[idx].Start != region.Start {
			idx--
		}

		match := p.regions[idx]
		if region.Start >= match.End || region.End > match.End {
			break
		}

		startEq, endEq := region.Start == match.Start, region.End == match.End
		switch {
		case startEq && endEq:
			p.removeAt(idx)
			a.combineIfSmall(f)

		case startEq && !endEq:
			p.regions[idx].Start = region.End

		case !startEq && endEq:
			p.regions[idx].End = region.Start

		default:
			insFrame, insIdx := f, idx
			if p.header.isFull() {
				insFrame, insIdx = a.split(f, idx)
				p = pageAt(insFrame)
			}
			p.regions[insIdx].End = region.Start
			p.insertAt(insIdx+1, VirtualRegion{Start: region.End, End: match.End})
		}

		return true
	}

	return false
}

// VisitFreeRegions calls visitor once per free region, in ascending address
// order, stopping early if visitor returns false. The allocator must not be
// mutated from within visitor.
func (a *VirtualRegionAllocator) VisitFreeRegions(visitor func(VirtualRegion) bool) {
	for f := a.head; f.Valid(); {
		p := pageAt(f)
		for _, r := range p.validRegions() {
			if !visitor(r) {
				return
			}
		}
		f = p.header.next
	}
}
