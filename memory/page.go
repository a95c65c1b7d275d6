package memory

import "github.com/joshuapare/guestkit/pkg/types"

// pageEntry is one row of a heap's region table.
//
// Every page of a live allocation records the page index of the
// allocation's first page and the allocation's page count, so any page can
// find its allocation base in O(1). Free pages hold the zero entry, which
// makes neighbouring free runs indistinguishable from one coalesced run.
type pageEntry struct {
	basePage          uint32 // page index of the allocation start
	regionPageCount   uint32 // pages in the allocation
	allocationProtect uint32 // protect requested when the allocation was made
	currentProtect    uint32 // protect in effect now
	state             uint32 // 0, AllocationReserve or AllocationReserve|AllocationCommit
}

func (p pageEntry) free() bool      { return p.state == 0 }
func (p pageEntry) reserved() bool  { return p.state&types.AllocationReserve != 0 }
func (p pageEntry) committed() bool { return p.state&types.AllocationCommit != 0 }

// roundUp rounds v up to a multiple of n (n > 0), computed in 64 bits so a
// request near the top of the 32-bit space cannot wrap.
func roundUp(v, n uint64) uint64 {
	return (v + n - 1) / n * n
}

// roundDown rounds v down to a multiple of n (n > 0).
func roundDown(v, n uint64) uint64 {
	return v - v%n
}

// normalizeAlignment turns a caller alignment into a page multiple.
func (h *Heap) normalizeAlignment(alignment uint32) uint64 {
	if alignment == 0 {
		return uint64(h.pageSize)
	}
	return roundUp(uint64(alignment), uint64(h.pageSize))
}

// pageRange returns the pages touched by [address, address+size).
// The start is truncated to its page and the end rounded up.
func (h *Heap) pageRange(address, size uint32) (start, count uint32, err error) {
	if size == 0 {
		return 0, 0, ErrBadSize
	}
	if !h.Contains(address) {
		return 0, 0, ErrOutOfRange
	}
	ps := uint64(h.pageSize)
	off := uint64(address - h.base)
	first := off / ps
	last := roundUp(off+uint64(size), ps) / ps // exclusive
	if last > uint64(len(h.pages)) {
		return 0, 0, ErrOutOfRange
	}
	return uint32(first), uint32(last - first), nil
}

// pageAddress returns the guest address of page index p.
func (h *Heap) pageAddress(p uint32) uint32 {
	return h.base + p*h.pageSize
}

// pageIndex returns the page index holding address. The caller has checked
// Contains.
func (h *Heap) pageIndex(address uint32) uint32 {
	return (address - h.base) / h.pageSize
}
