package xboxkrnl

import (
	"github.com/joshuapare/guestkit/memory"
	"github.com/joshuapare/guestkit/pkg/types"
)

// MmAllocatePhysicalMemoryEx allocates committed physical memory and returns
// its guest address in the physical window matching the requested page
// size, or zero on failure.
//
// protectBits must contain X_PAGE_READONLY or X_PAGE_READWRITE and selects
// the page size with X_MEM_LARGE_PAGES (64 KiB) or X_MEM_16MB_PAGES. minAddr
// and maxAddr bound the result in physical memory. Physical windows always
// allocate top-down.
func (m *Memory) MmAllocatePhysicalMemoryEx(flags, size, protectBits, minAddr, maxAddr, alignment uint32) uint32 {
	if protectBits&(types.X_PAGE_READONLY|types.X_PAGE_READWRITE) == 0 {
		m.log.Error("MmAllocatePhysicalMemoryEx: bad protection bits", "protect", protectBits)
		return 0
	}

	pageSize := memory.PageSize4K
	switch {
	case protectBits&types.X_MEM_LARGE_PAGES != 0:
		pageSize = memory.PageSize64K
	case protectBits&types.X_MEM_16MB_PAGES != 0:
		pageSize = memory.PageSize16M
	}

	heap := m.mem.LookupHeapByType(true, pageSize)
	heapBase := heap.Base()
	offset := heap.PhysicalAddress(heapBase)
	if minAddr != 0 && maxAddr != 0 && m.opts.IgnoreOffsetForRangedAllocations {
		offset = 0
	}

	low := heapBase + min(satSub(minAddr, offset), heap.Size()-1)
	high := heapBase + min(satSub(maxAddr, offset), heap.Size()-1)

	address, err := heap.AllocRange(low, high, size, alignment,
		types.AllocationReserve|types.AllocationCommit, FromXdkProtect(protectBits), true)
	if err != nil {
		m.log.Warn("MmAllocatePhysicalMemoryEx: allocation failed", "size", size, "flags", flags, "err", err)
		return 0
	}
	m.log.Debug("MmAllocatePhysicalMemoryEx", "address", address, "size", size)
	return address
}

// MmAllocatePhysicalMemory is MmAllocatePhysicalMemoryEx without range or
// alignment constraints.
func (m *Memory) MmAllocatePhysicalMemory(flags, size, protectBits uint32) uint32 {
	return m.MmAllocatePhysicalMemoryEx(flags, size, protectBits, 0, 0xFFFFFFFF, 0)
}

// MmFreePhysicalMemory releases memory from MmAllocatePhysicalMemory[Ex].
func (m *Memory) MmFreePhysicalMemory(typ, address uint32) {
	heap := m.mem.LookupHeap(address)
	if heap == nil {
		m.log.Warn("MmFreePhysicalMemory: unbacked address", "address", address)
		return
	}
	if _, err := heap.Release(address); err != nil {
		m.log.Debug("MmFreePhysicalMemory failed", "address", address, "type", typ, "err", err)
	}
}

// MmGetPhysicalAddress returns the physical address behind a physical
// window address, or zero when there is none.
func (m *Memory) MmGetPhysicalAddress(address uint32) uint32 {
	physical := m.mem.PhysicalAddress(address)
	if physical == memory.InvalidPhysicalAddress {
		return 0
	}
	return physical
}

func satSub(a, b uint32) uint32 {
	if a < b {
		return 0
	}
	return a - b
}
