package memory

import "github.com/joshuapare/guestkit/pkg/types"

// Physical windows
//
// The three guest-physical heaps (0xA0000000, 0xC0000000, 0xE0000000) are
// virtual views with different page sizes over one 512 MiB physical range.
// That range is tracked by a host-physical parent heap with 4 KiB pages, so
// an allocation made through one view is never handed out again through
// another. Every operation first claims or releases the physical pages in
// the parent, then pins the matching virtual pages in the view.

// e0PhysicalOffset is the extra physical displacement of the 0xE0000000
// window: its first page maps to physical 0x1000.
const e0PhysicalOffset uint32 = 0x1000

// PhysicalAddress translates an address of a physical window to its
// physical address. It returns InvalidPhysicalAddress for heaps without a
// physical mapping or addresses outside the heap.
func (h *Heap) PhysicalAddress(address uint32) uint32 {
	if h.parent == nil || !h.Contains(address) {
		return InvalidPhysicalAddress
	}
	return h.physicalAddress(address)
}

func (h *Heap) physicalAddress(address uint32) uint32 {
	return address - h.base + h.physicalBase
}

// virtualAddress is the inverse of physicalAddress.
func (h *Heap) virtualAddress(physical uint32) uint32 {
	return physical - h.physicalBase + h.base
}

func (h *Heap) physicalAllocRangeLocked(low, high, size, alignment, allocType, protect uint32, topDown bool) (uint32, error) {
	if size == 0 {
		return 0, ErrBadSize
	}
	ps := uint64(h.pageSize)
	if roundUp(uint64(size), ps) > uint64(h.size) {
		return 0, ErrNoSpace
	}
	span := uint32(roundUp(uint64(size), ps))
	if h.normalizeAlignment(alignment) > uint64(h.size) {
		return 0, ErrNoSpace
	}
	align := uint32(h.normalizeAlignment(alignment))

	low = max(low, h.base)
	high = min(high, h.base+(h.size-1))
	if low > high {
		return 0, ErrNoSpace
	}

	physical, err := h.parent.allocRangeLocked(h.physicalAddress(low), h.physicalAddress(high), span, align, allocType, protect, topDown)
	if err != nil {
		return 0, err
	}
	address := h.virtualAddress(physical)
	if err := h.allocFixedLocked(address, span, align, allocType, protect); err != nil {
		h.log.Error("physical window out of sync with parent", "heap", h.name, "address", address, "err", err)
		_, _ = h.parent.releaseLocked(physical)
		return 0, err
	}
	return address, nil
}

func (h *Heap) physicalAllocFixedLocked(address, size, alignment, allocType, protect uint32) error {
	if !h.Contains(address) {
		return ErrOutOfRange
	}
	if size == 0 {
		return ErrBadSize
	}
	ps := uint64(h.pageSize)
	if roundUp(uint64(size), ps) > uint64(h.size) {
		return ErrOutOfRange
	}
	span := uint32(roundUp(uint64(size), ps))
	address = uint32(roundDown(uint64(address), ps))
	physical := h.physicalAddress(address)
	if err := h.parent.allocFixedLocked(physical, span, alignment, allocType, protect); err != nil {
		return err
	}
	if err := h.allocFixedLocked(address, span, alignment, allocType, protect); err != nil {
		if allocType&types.AllocationReserve != 0 {
			_, _ = h.parent.releaseLocked(physical)
		}
		return err
	}
	return nil
}

func (h *Heap) physicalReleaseLocked(address uint32) (uint32, error) {
	if !h.Contains(address) {
		return 0, ErrOutOfRange
	}
	e := h.pages[h.pageIndex(address)]
	if e.free() {
		return 0, ErrNotAllocated
	}
	regionStart := h.pageAddress(e.basePage)
	if _, err := h.parent.releaseLocked(h.physicalAddress(regionStart)); err != nil {
		h.log.Debug("physical parent release failed", "heap", h.name, "address", regionStart, "err", err)
	}
	return h.releaseLocked(regionStart)
}
