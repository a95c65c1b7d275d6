package memory

import (
	"log/slog"
	"sync"

	"github.com/joshuapare/guestkit/pkg/types"
)

// Heap is a bounded, page-granular sub-range of the guest address space.
//
// A heap owns a region table with one entry per page and implements
// NT-style two-phase allocation over it: reserving claims an address
// range, committing makes it accessible. The backing bytes live in the
// Manager's arena; a heap only tracks state.
//
// All exported methods acquire the heap's lock, which is shared by every
// heap of a Manager.
type Heap struct {
	name     string
	heapType HeapType
	base     uint32
	size     uint32
	pageSize uint32

	pages           []pageEntry
	unreservedPages uint32

	// Physical windows delegate physical bookkeeping to parent.
	parent       *Heap
	physicalBase uint32

	arena       *arena
	arenaOffset uint64 // arena offset of base

	mu  sync.Locker
	log *slog.Logger
}

func newHeap(name string, heapType HeapType, base, size, pageSize uint32, mu sync.Locker, log *slog.Logger) *Heap {
	count := size / pageSize
	return &Heap{
		name:            name,
		heapType:        heapType,
		base:            base,
		size:            size,
		pageSize:        pageSize,
		pages:           make([]pageEntry, count),
		unreservedPages: count,
		mu:              mu,
		log:             log,
	}
}

// Name returns the heap's diagnostic name (e.g. "v00000000").
func (h *Heap) Name() string { return h.name }

// Type returns the heap's type.
func (h *Heap) Type() HeapType { return h.heapType }

// Base returns the first guest address of the heap.
func (h *Heap) Base() uint32 { return h.base }

// Size returns the heap length in bytes.
func (h *Heap) Size() uint32 { return h.size }

// PageSize returns the heap's page granularity.
func (h *Heap) PageSize() uint32 { return h.pageSize }

// IsPhysical reports whether the heap is a window onto physical memory.
func (h *Heap) IsPhysical() bool { return h.parent != nil }

// Contains reports whether address falls inside the heap.
func (h *Heap) Contains(address uint32) bool {
	return address >= h.base && address-h.base < h.size
}

// -----------------------------------------------------------------------------
// Allocation
// -----------------------------------------------------------------------------

// Alloc reserves (and optionally commits) size bytes anywhere in the heap.
//
// The search starts at the bottom of the heap, or at the top when topDown is
// set (always for physical windows), and returns the first aligned run of
// free pages large enough to hold the request.
func (h *Heap) Alloc(size, alignment, allocType, protect uint32, topDown bool) (uint32, error) {
	// The physical parent is filled bottom-up by direct users, so windows
	// always search top-down to stay clear of them.
	if h.parent != nil {
		topDown = true
	}
	return h.AllocRange(h.base, h.base+(h.size-1), size, alignment, allocType, protect, topDown)
}

// AllocRange is Alloc constrained to [low, high] (inclusive guest addresses).
func (h *Heap) AllocRange(low, high, size, alignment, allocType, protect uint32, topDown bool) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.parent != nil {
		return h.physicalAllocRangeLocked(low, high, size, alignment, allocType, protect, topDown)
	}
	return h.allocRangeLocked(low, high, size, alignment, allocType, protect, topDown)
}

// AllocFixed reserves (and optionally commits) the range starting at address.
//
// Reserving fails unless every page is free. Committing alone fails unless
// every page is already reserved. Reserve and commit together succeed over
// free or reserved pages, re-committing anything already committed.
func (h *Heap) AllocFixed(address, size, alignment, allocType, protect uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.parent != nil {
		return h.physicalAllocFixedLocked(address, size, alignment, allocType, protect)
	}
	return h.allocFixedLocked(address, size, alignment, allocType, protect)
}

func (h *Heap) allocRangeLocked(low, high, size, alignment, allocType, protect uint32, topDown bool) (uint32, error) {
	if size == 0 {
		return 0, ErrBadSize
	}
	ps := uint64(h.pageSize)
	align := h.normalizeAlignment(alignment)
	count := int64(roundUp(uint64(size), ps) / ps)

	heapEnd := uint64(h.base) + uint64(h.size) - 1
	lo := max(uint64(low), uint64(h.base))
	hi := min(uint64(high), heapEnd)
	if lo > hi {
		return 0, ErrNoSpace
	}
	lowPage := int64((lo - uint64(h.base)) / ps)
	highPage := int64((hi - uint64(h.base)) / ps) // inclusive
	if count > highPage-lowPage+1 {
		return 0, ErrNoSpace
	}

	// alignedUp/alignedDown return the nearest page whose guest address is
	// a multiple of align, at or after/before p.
	alignedUp := func(p int64) int64 {
		addr := roundUp(uint64(h.base)+uint64(p)*ps, align)
		return int64((addr - uint64(h.base)) / ps)
	}
	alignedDown := func(p int64) int64 {
		addr := uint64(h.base) + uint64(p)*ps
		down := roundDown(addr, align)
		if down < uint64(h.base) {
			return -1
		}
		return int64((down - uint64(h.base)) / ps)
	}

	start := int64(-1)
	if topDown {
		for p := alignedDown(highPage + 1 - count); p >= lowPage; {
			blocked := int64(-1)
			for q := p + count - 1; q >= p; q-- {
				if !h.pages[q].free() {
					blocked = q
					break
				}
			}
			if blocked < 0 {
				start = p
				break
			}
			if blocked-count < lowPage {
				break
			}
			p = alignedDown(blocked - count)
		}
	} else {
		for p := alignedUp(lowPage); p+count-1 <= highPage; {
			blocked := int64(-1)
			for q := p; q < p+count; q++ {
				if !h.pages[q].free() {
					blocked = q
					break
				}
			}
			if blocked < 0 {
				start = p
				break
			}
			p = alignedUp(blocked + 1)
		}
	}
	if start < 0 {
		h.log.Debug("heap allocation failed", "heap", h.name, "size", size, "alignment", alignment)
		return 0, ErrNoSpace
	}

	h.setRegion(uint32(start), uint32(count), allocType, protect)
	address := h.pageAddress(uint32(start))
	h.log.Debug("heap alloc", "heap", h.name, "address", address, "size", uint32(count)*h.pageSize)
	return address, nil
}

func (h *Heap) allocFixedLocked(address, size, alignment, allocType, protect uint32) error {
	if size == 0 {
		return ErrBadSize
	}
	if !h.Contains(address) {
		return ErrOutOfRange
	}
	ps := uint64(h.pageSize)
	align := h.normalizeAlignment(alignment)
	span := roundUp(uint64(size), align)
	off := roundDown(uint64(address-h.base), ps)
	if off+span > uint64(h.size) {
		return ErrOutOfRange
	}
	start := uint32(off / ps)
	count := uint32(span / ps)

	var free, owned bool
	for p := start; p < start+count; p++ {
		state := h.pages[p].state
		if allocType == types.AllocationReserve && state != 0 {
			return ErrAlreadyReserved
		}
		if allocType == types.AllocationCommit && state&types.AllocationReserve == 0 {
			return ErrNotReserved
		}
		if state == 0 {
			free = true
		} else {
			owned = true
		}
	}
	// A new reservation may not straddle an existing allocation: the free
	// pages would join a region whose page count includes pages it does
	// not own.
	if free && owned {
		return ErrAlreadyReserved
	}

	// Committing inside an existing reservation keeps that reservation's
	// allocation base so Release and queries still see one allocation.
	for p := start; p < start+count; p++ {
		e := &h.pages[p]
		if e.free() {
			*e = pageEntry{
				basePage:          start,
				regionPageCount:   count,
				allocationProtect: protect,
				currentProtect:    protect,
				state:             types.AllocationReserve | allocType,
			}
			h.unreservedPages--
			continue
		}
		e.currentProtect = protect
		e.state |= types.AllocationReserve | allocType
	}
	return nil
}

// setRegion marks free pages [start, start+count) as one allocation.
func (h *Heap) setRegion(start, count, allocType, protect uint32) {
	for p := start; p < start+count; p++ {
		h.pages[p] = pageEntry{
			basePage:          start,
			regionPageCount:   count,
			allocationProtect: protect,
			currentProtect:    protect,
			state:             types.AllocationReserve | allocType,
		}
	}
	h.unreservedPages -= count
}

// -----------------------------------------------------------------------------
// Decommit / Release
// -----------------------------------------------------------------------------

// Decommit returns committed pages touched by [address, address+size) to
// the reserved state. It fails without changes if any page is not
// committed.
func (h *Heap) Decommit(address, size uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.parent != nil {
		if err := h.decommitLocked(address, size); err != nil {
			return err
		}
		return h.parent.decommitLocked(h.physicalAddress(address), size)
	}
	return h.decommitLocked(address, size)
}

func (h *Heap) decommitLocked(address, size uint32) error {
	start, count, err := h.pageRange(address, size)
	if err != nil {
		return err
	}
	for p := start; p < start+count; p++ {
		if !h.pages[p].committed() {
			return ErrNotCommitted
		}
	}
	for p := start; p < start+count; p++ {
		h.pages[p].state &^= types.AllocationCommit
	}
	h.discard(start, count)
	return nil
}

// Release frees the whole allocation containing address and returns its
// size in bytes. address may point anywhere inside the allocation.
func (h *Heap) Release(address uint32) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.parent != nil {
		return h.physicalReleaseLocked(address)
	}
	return h.releaseLocked(address)
}

func (h *Heap) releaseLocked(address uint32) (uint32, error) {
	if !h.Contains(address) {
		return 0, ErrOutOfRange
	}
	e := h.pages[h.pageIndex(address)]
	if e.free() {
		h.log.Debug("heap release of unallocated address", "heap", h.name, "address", address)
		return 0, ErrNotAllocated
	}
	start, count := e.basePage, e.regionPageCount
	run := uint32(0) // first page of the current run of freed pages
	inRun := false
	for p := start; p < start+count; p++ {
		if h.pages[p].basePage != start || h.pages[p].free() {
			if inRun {
				h.discard(run, p-run)
				inRun = false
			}
			continue
		}
		h.pages[p] = pageEntry{}
		h.unreservedPages++
		if !inRun {
			run, inRun = p, true
		}
	}
	if inRun {
		h.discard(run, start+count-run)
	}
	return count * h.pageSize, nil
}

// discard hands the host pages of [start, start+count) back to the OS.
// Physical windows share the parent's backing and leave it to the parent.
func (h *Heap) discard(start, count uint32) {
	if h.arena == nil || h.parent != nil {
		return
	}
	off := h.arenaOffset + uint64(start)*uint64(h.pageSize)
	h.arena.discard(off, uint64(count)*uint64(h.pageSize))
}

// -----------------------------------------------------------------------------
// Protection
// -----------------------------------------------------------------------------

// Protect changes the protection of the pages touched by
// [address, address+size) and returns the previous protection of the first
// page.
//
// The range must lie within one allocation and be fully committed. A
// request spanning allocations fails as a whole rather than applying to a
// subset of the pages.
func (h *Heap) Protect(address, size, protect uint32) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.protectLocked(address, size, protect)
}

func (h *Heap) protectLocked(address, size, protect uint32) (uint32, error) {
	start, count, err := h.pageRange(address, size)
	if err != nil {
		return 0, err
	}
	first := h.pages[start].basePage
	for p := start; p < start+count; p++ {
		e := h.pages[p]
		if e.basePage != first {
			h.log.Debug("heap protect spans regions", "heap", h.name, "address", address, "size", size)
			return 0, ErrSpansRegions
		}
		if !e.committed() {
			return 0, ErrNotCommitted
		}
	}
	old := h.pages[start].currentProtect
	for p := start; p < start+count; p++ {
		h.pages[p].currentProtect = protect
	}
	return old, nil
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// QueryRegionInfo describes the region containing address.
func (h *Heap) QueryRegionInfo(address uint32) (RegionInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.Contains(address) {
		return RegionInfo{}, ErrOutOfRange
	}
	start := h.pageIndex(address)
	first := h.pages[start]
	info := RegionInfo{BaseAddress: h.pageAddress(start)}

	if first.free() {
		for p := start; p < uint32(len(h.pages)) && h.pages[p].free(); p++ {
			info.RegionSize += h.pageSize
		}
		return info, nil
	}

	info.AllocationBase = h.pageAddress(first.basePage)
	info.AllocationProtect = first.allocationProtect
	info.AllocationSize = first.regionPageCount * h.pageSize
	info.State = first.state
	info.Protect = first.currentProtect
	end := first.basePage + first.regionPageCount
	for p := start; p < end; p++ {
		e := h.pages[p]
		if e.basePage != first.basePage || e.state != first.state || e.currentProtect != first.currentProtect {
			break
		}
		info.RegionSize += h.pageSize
	}
	return info, nil
}

// QuerySize returns the size of the allocation containing address, or zero
// for a free page.
func (h *Heap) QuerySize(address uint32) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.Contains(address) {
		return 0, ErrOutOfRange
	}
	e := h.pages[h.pageIndex(address)]
	return e.regionPageCount * h.pageSize, nil
}

// QueryProtect returns the current protection of the page holding address,
// or zero for a free page.
func (h *Heap) QueryProtect(address uint32) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.Contains(address) {
		return 0, ErrOutOfRange
	}
	return h.pages[h.pageIndex(address)].currentProtect, nil
}

// QueryRangeAccess returns the access every page in [low, high] allows.
// Ranges reaching outside the heap or over uncommitted pages report
// NoAccess.
func (h *Heap) QueryRangeAccess(low, high uint32) types.PageAccess {
	if low > high || !h.Contains(low) || !h.Contains(high) {
		return types.NoAccess
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	protect := types.ProtectRead | types.ProtectWrite
	for p := h.pageIndex(low); p <= h.pageIndex(high); p++ {
		if !h.pages[p].committed() {
			return types.NoAccess
		}
		protect &= h.pages[p].currentProtect
	}
	return types.AccessFromProtect(protect)
}

// PageStats counts the heap's pages by state.
func (h *Heap) PageStats() PageStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pageStatsLocked()
}

func (h *Heap) pageStatsLocked() PageStats {
	st := PageStats{
		Total:      uint32(len(h.pages)),
		Unreserved: h.unreservedPages,
		Reserved:   uint32(len(h.pages)) - h.unreservedPages,
	}
	for _, e := range h.pages {
		if e.committed() {
			st.Committed++
		}
	}
	return st
}
