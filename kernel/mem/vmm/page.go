package vmm

import (
	"unsafe"

	"hydroxos/kernel/mem"
	"hydroxos/kernel/mem/pmm"
)

type pageHeader struct {
	prev, next pmm.Frame
	length     uint16
}

// regionsPerPage is how many VirtualRegion entries fit in a page alongside
// its header.
const regionsPerPage = (int(mem.PageSize) - int(unsafe.Sizeof(pageHeader{}))) / int(unsafe.Sizeof(VirtualRegion{}))

// splitPoint is the index a full page is split at: the first splitPoint
// entries stay (or move to a left neighbor), the rest move right.
const splitPoint = regionsPerPage / 2
const splitSecondSize = regionsPerPage - splitPoint

// allocPage is the on-disk (on-frame) layout of one node of the free-region
// list: a header plus a sorted, non-overlapping array of free regions.
type allocPage struct {
	header  pageHeader
	regions [regionsPerPage]VirtualRegion
}

var (
	// pagePtrFn maps a physical frame to the allocPage stored in it. It
	// relies on physical memory being permanently identity-mapped; tests
	// override it to point into ordinary Go memory instead.
	pagePtrFn = func(f pmm.Frame) unsafe.Pointer {
		return unsafe.Pointer(f.Address())
	}
)

func pageAt(f pmm.Frame) *allocPage {
	return (*allocPage)(pagePtrFn(f))
}

func (h *pageHeader) len() int      { return int(h.length) }
func (h *pageHeader) isEmpty() bool { return h.length == 0 }
func (h *pageHeader) isFull() bool  { return int(h.length) == regionsPerPage }
func (h *pageHeader) setLen(n int) {
	if n < 0 || n > regionsPerPage {
		panic("vmm: page region count out of range")
	}
	h.length = uint16(n)
}

// validRegions returns the in-use prefix of the page's region array.
func (p *allocPage) validRegions() []VirtualRegion {
	return p.regions[:p.header.length]
}

// overallRange returns the region spanning the page's first to last entry,
// and false if the page holds no regions.
func (p *allocPage) overallRange() (VirtualRegion, bool) {
	if p.header.isEmpty() {
		return VirtualRegion{}, false
	}
	return VirtualRegion{Start: p.regions[0].Start, End: p.regions[p.header.length-1].End}, true
}

func (p *allocPage) insertAt(idx int, region VirtualRegion) {
	if p.header.isFull() {
		panic("vmm: insertAt called on a full page")
	}
	copy(p.regions[idx+1:p.header.length+1], p.regions[idx:p.header.length])
	p.regions[idx] = region
	p.header.setLen(p.header.len() + 1)
}

func (p *allocPage) removeAt(idx int) {
	copy(p.regions[idx:p.header.length-1], p.regions[idx+1:p.header.length])
	p.header.setLen(p.header.len() - 1)
}

// split makes room for a new entry at idx in a full page by moving half its
// entries into a neighbor, preferring an underfull previous page and
// otherwise an underfull (or freshly allocated) next page. It returns which
// page now holds slot idx and the adjusted index within that page.
func (a *VirtualRegionAllocator) split(pageFrame pmm.Frame, idx int) (pmm.Frame, int) {
	p := pageAt(pageFrame)
	if !p.header.isFull() {
		panic("vmm: split called on a page that is not full")
	}

	if p.header.prev.Valid() && pageAt(p.header.prev).header.len() < regionsPerPage/4 {
		prevFrame := p.header.prev
		prev := pageAt(prevFrame)

		var resultFrame pmm.Frame
		var resultIdx int
		if idx < splitPoint {
			resultFrame, resultIdx = prevFrame, prev.header.len()+idx
		} else {
			resultFrame, resultIdx = pageFrame, idx-splitPoint
		}

		copy(prev.regions[prev.header.len():prev.header.len()+splitPoint], p.regions[0:splitPoint])
		copy(p.regions[0:p.header.len()-splitPoint], p.regions[splitPoint:p.header.len()])

		prev.header.setLen(prev.header.len() + splitPoint)
		p.header.setLen(splitSecondSize)

		return resultFrame, resultIdx
	}

	var nextFrame pmm.Frame
	if p.header.next.Valid() && pageAt(p.header.next).header.len() < regionsPerPage/4 {
		nextFrame = p.header.next
	} else {
		nextFrame = a.newPage()
		next := pageAt(nextFrame)
		oldNext := p.header.next
		next.header.prev = pageFrame
		next.header.next = oldNext
		if oldNext.Valid() {
			pageAt(oldNext).header.prev = nextFrame
		}
		p.header.next = nextFrame
	}
	next := pageAt(nextFrame)

	var resultFrame pmm.Frame
	var resultIdx int
	if idx >= splitPoint {
		resultFrame, resultIdx = nextFrame, idx-splitPoint
	} else {
		resultFrame, resultIdx = pageFrame, idx
	}

	copy(next.regions[splitSecondSize:splitSecondSize+next.header.len()], next.regions[0:next.header.len()])
	copy(next.regions[0:splitSecondSize], p.regions[splitPoint:p.header.len()])

	next.header.setLen(next.header.len() + splitSecondSize)
	p.header.setLen(splitPoint)

	return resultFrame, resultIdx
}
