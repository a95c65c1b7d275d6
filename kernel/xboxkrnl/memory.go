package xboxkrnl

import (
	"log/slog"

	"github.com/joshuapare/guestkit/internal/logger"
	"github.com/joshuapare/guestkit/memory"
	"github.com/joshuapare/guestkit/pkg/types"
)

// Options configures the memory shim.
type Options struct {
	// IgnoreOffsetForRangedAllocations drops the 4 KiB physical offset of the
	// 0xE0000000 window when a physical allocation passes both range bounds.
	// Some titles compare the result with the lower bound they passed.
	IgnoreOffsetForRangedAllocations bool

	// Logger receives diagnostics. Nil follows the process logger.
	Logger *slog.Logger
}

// Memory implements the memory-related kernel exports over a memory.Manager.
//
// Guest pointers are modelled as values: in/out parameters are taken as
// arguments and returned as results rather than read from and written to
// guest memory.
type Memory struct {
	mem  *memory.Manager
	opts Options
	log  *slog.Logger
}

// NewMemory returns the memory shim for mem.
func NewMemory(mem *memory.Manager, opts Options) *Memory {
	return &Memory{
		mem:  mem,
		opts: opts,
		log:  logger.For(opts.Logger, "xboxkrnl"),
	}
}

// Manager returns the underlying memory manager.
func (m *Memory) Manager() *memory.Manager { return m.mem }

// MemoryBasicInformation is the result of NtQueryVirtualMemory.
type MemoryBasicInformation struct {
	BaseAddress       uint32
	AllocationBase    uint32
	AllocationProtect uint32
	RegionSize        uint32
	State             uint32
	Protect           uint32
	Type              uint32
}

// NtAllocateVirtualMemory reserves and/or commits virtual memory.
//
// A zero base lets the kernel choose the address from the 4 KiB heap (or the
// 64 KiB heap with X_MEM_LARGE_PAGES) and rounds the size to 64 KiB. A
// non-zero base must lie in a virtual heap; it is truncated to that heap's
// page size and the size rounded to it. Negative sizes are treated as their
// absolute value. On success the allocated base and rounded size are
// returned.
func (m *Memory) NtAllocateVirtualMemory(base, size, allocType, protectBits uint32) (uint32, uint32, types.Status) {
	if size == 0 {
		return base, size, types.StatusInvalidParameter
	}
	if allocType&(types.X_MEM_COMMIT|types.X_MEM_RESET|types.X_MEM_RESERVE) == 0 {
		return base, size, types.StatusInvalidParameter
	}
	if allocType&types.X_MEM_RESET != 0 && allocType&^types.X_MEM_RESET != 0 {
		return base, size, types.StatusInvalidParameter
	}
	if protectBits&types.X_PAGE_EXECUTE_ANY != 0 {
		m.log.Warn("execute bit requested on allocation", "protect", protectBits)
	}

	var pageSize uint32
	if base != 0 {
		heap := m.mem.LookupHeap(base)
		if heap == nil || heap.Type() != memory.HeapTypeGuestVirtual {
			return base, size, types.StatusInvalidParameter
		}
		pageSize = heap.PageSize()
	} else {
		pageSize = memory.PageSize4K
		if allocType&types.X_MEM_LARGE_PAGES != 0 {
			pageSize = memory.PageSize64K
		}
	}

	adjustedBase := base - base%pageSize
	adjustedSize := size
	if int32(size) < 0 {
		adjustedSize = uint32(-int32(size))
	}
	granularity := pageSize
	if adjustedBase == 0 {
		granularity = memory.PageSize64K
	}
	rounded := (uint64(adjustedSize) + uint64(granularity) - 1) / uint64(granularity) * uint64(granularity)
	if rounded > 0xFFFFFFFF {
		return base, size, types.StatusNoMemory
	}
	adjustedSize = uint32(rounded)

	var heapAllocType uint32
	if allocType&types.X_MEM_RESERVE != 0 {
		heapAllocType |= types.AllocationReserve
	}
	if allocType&types.X_MEM_COMMIT != 0 {
		heapAllocType |= types.AllocationCommit
	}
	if allocType&types.X_MEM_RESET != 0 {
		m.log.Error("X_MEM_RESET is not implemented")
	}
	protect := FromXdkProtect(protectBits)

	var (
		address      uint32
		heap         *memory.Heap
		wasCommitted bool
		err          error
	)
	if adjustedBase != 0 {
		heap = m.mem.LookupHeap(adjustedBase)
		if heap.PageSize() != pageSize {
			return base, size, types.StatusAccessDenied
		}
		if info, qerr := heap.QueryRegionInfo(adjustedBase); qerr == nil {
			wasCommitted = info.State&types.AllocationCommit != 0
		}
		if err = heap.AllocFixed(adjustedBase, adjustedSize, pageSize, heapAllocType, protect); err == nil {
			address = adjustedBase
		}
	} else {
		topDown := allocType&types.X_MEM_TOP_DOWN != 0
		heap = m.mem.LookupHeapByType(false, pageSize)
		address, err = heap.Alloc(adjustedSize, pageSize, heapAllocType, protect, topDown)
	}
	if err != nil || address == 0 {
		m.log.Debug("NtAllocateVirtualMemory failed", "base", base, "size", adjustedSize, "err", err)
		return base, size, types.StatusNoMemory
	}

	// Protections are not enforced on host access, so zeroing needs no
	// temporary read-write window.
	if allocType&types.X_MEM_NOZERO == 0 && allocType&types.X_MEM_COMMIT != 0 && !wasCommitted {
		if err := m.mem.Zero(address, adjustedSize); err != nil {
			m.log.Error("zero allocation", "address", address, "err", err)
		}
	}

	m.log.Debug("NtAllocateVirtualMemory", "address", address, "size", adjustedSize)
	return address, adjustedSize, types.StatusSuccess
}

// NtFreeVirtualMemory decommits (X_MEM_DECOMMIT) or releases memory. On
// success the base and the affected size are returned.
func (m *Memory) NtFreeVirtualMemory(base, size, freeType uint32) (uint32, uint32, types.Status) {
	if base == 0 {
		return base, size, types.StatusMemoryNotAllocated
	}
	heap := m.mem.LookupHeap(base)
	if heap == nil || heap.Type() != memory.HeapTypeGuestVirtual {
		return base, size, types.StatusInvalidParameter
	}

	var err error
	if freeType == types.X_MEM_DECOMMIT {
		ps := uint64(heap.PageSize())
		size = uint32((uint64(size) + ps - 1) / ps * ps)
		err = heap.Decommit(base, size)
	} else {
		size, err = heap.Release(base)
	}
	if err != nil {
		m.log.Debug("NtFreeVirtualMemory failed", "base", base, "type", freeType, "err", err)
		return base, size, types.StatusUnsuccessful
	}
	return base, size, types.StatusSuccess
}

// NtProtectVirtualMemory changes the protection of committed virtual memory
// and returns the page-aligned base, the rounded size and the previous
// protection.
func (m *Memory) NtProtectVirtualMemory(base, size, protectBits uint32) (uint32, uint32, uint32, types.Status) {
	if size == 0 {
		return base, size, 0, types.StatusInvalidParameter
	}
	if protectBits&types.X_PAGE_EXECUTE_ANY != 0 {
		m.log.Warn("execute bit requested on protect", "protect", protectBits)
		return base, size, 0, types.StatusInvalidPageProtection
	}
	heap := m.mem.LookupHeap(base)
	if heap == nil || heap.Type() != memory.HeapTypeGuestVirtual {
		return base, size, 0, types.StatusInvalidParameter
	}

	ps := heap.PageSize()
	adjustedBase := base - base%ps
	adjustedSize := uint32((uint64(size) + uint64(ps) - 1) / uint64(ps) * uint64(ps))

	old, err := heap.Protect(adjustedBase, adjustedSize, FromXdkProtect(protectBits))
	if err != nil {
		m.log.Debug("NtProtectVirtualMemory failed", "base", adjustedBase, "size", adjustedSize, "err", err)
		return base, size, 0, types.StatusAccessDenied
	}
	return adjustedBase, adjustedSize, ToXdkProtect(old), types.StatusSuccess
}

// NtQueryVirtualMemory describes the region containing base. regionType
// must be 0, 1 or 2.
func (m *Memory) NtQueryVirtualMemory(base, regionType uint32) (MemoryBasicInformation, types.Status) {
	if regionType > 2 {
		return MemoryBasicInformation{}, types.StatusInvalidParameter
	}
	heap := m.mem.LookupHeap(base)
	if heap == nil {
		return MemoryBasicInformation{}, types.StatusInvalidParameter
	}
	info, err := heap.QueryRegionInfo(base)
	if err != nil {
		return MemoryBasicInformation{}, types.StatusInvalidParameter
	}
	return MemoryBasicInformation{
		BaseAddress:       info.BaseAddress,
		AllocationBase:    info.AllocationBase,
		AllocationProtect: ToXdkProtect(info.AllocationProtect),
		RegionSize:        info.RegionSize,
		State:             xdkState(info.State),
		Protect:           ToXdkProtect(info.Protect),
		Type:              types.X_MEM_PRIVATE,
	}, types.StatusSuccess
}

// MmQueryAddressProtect returns the X_PAGE_* protection of address, or zero
// for unbacked or free pages.
func (m *Memory) MmQueryAddressProtect(address uint32) uint32 {
	heap := m.mem.LookupHeap(address)
	if heap == nil {
		return 0
	}
	protect, err := heap.QueryProtect(address)
	if err != nil || protect == 0 {
		return 0
	}
	return ToXdkProtect(protect)
}

// MmSetAddressProtect changes page protection. Requests without exactly one
// base protection bit are ignored, as are requests in the executable image
// heaps.
func (m *Memory) MmSetAddressProtect(address, size, protectBits uint32) {
	const required = types.X_PAGE_NOACCESS | types.X_PAGE_READONLY | types.X_PAGE_READWRITE |
		types.X_PAGE_EXECUTE_READ | types.X_PAGE_EXECUTE_READWRITE
	if bits := protectBits & required; bits == 0 || bits&(bits-1) != 0 {
		return
	}
	heap := m.mem.LookupHeap(address)
	if heap == nil || heap.Type() == memory.HeapTypeGuestXex {
		return
	}
	if _, err := heap.Protect(address, size, FromXdkProtect(protectBits)); err != nil {
		m.log.Debug("MmSetAddressProtect failed", "address", address, "size", size, "err", err)
	}
}

// MmQueryAllocationSize returns the size of the allocation containing
// address, or zero.
func (m *Memory) MmQueryAllocationSize(address uint32) uint32 {
	heap := m.mem.LookupHeap(address)
	if heap == nil {
		return 0
	}
	size, err := heap.QuerySize(address)
	if err != nil {
		return 0
	}
	return size
}

// MmIsAddressValid reports whether address is committed and accessible.
func (m *Memory) MmIsAddressValid(address uint32) bool {
	heap := m.mem.LookupHeap(address)
	if heap == nil {
		return false
	}
	return heap.QueryRangeAccess(address, address) != types.NoAccess
}

// KeGetImagePageTableEntry returns a page-table-like value for an address in
// the executable image heaps, or zero elsewhere.
func (m *Memory) KeGetImagePageTableEntry(address uint32) uint32 {
	heap := m.mem.LookupHeap(address)
	if heap == nil || heap.Type() != memory.HeapTypeGuestXex {
		return 0
	}
	v := (address - heap.Base()) / heap.PageSize()
	if heap.PageSize() < memory.PageSize64K {
		v |= 0x40000000
	}
	return v & 0x400FFFFF
}

// Encrypted memory lives in the upper part of the 64 KiB image heap.
const (
	encryptedLow     uint32 = 0x8C000000
	encryptedHigh    uint32 = 0x8FFFFFFF
	encryptedMaxSize uint32 = 16 * 1024 * 1024
)

// NtAllocateEncryptedMemory commits read-write memory in the encrypted
// image range. The size is rounded to 64 KiB and may not exceed 16 MiB.
func (m *Memory) NtAllocateEncryptedMemory(size uint32) (uint32, types.Status) {
	if size == 0 {
		return 0, types.StatusInvalidParameter
	}
	adjusted := (uint64(size) + uint64(memory.PageSize64K) - 1) &^ uint64(memory.PageSize64K-1)
	if adjusted > uint64(encryptedMaxSize) {
		return 0, types.StatusInvalidParameter
	}
	heap := m.mem.LookupHeap(encryptedLow)
	address, err := heap.AllocRange(encryptedLow, encryptedHigh, uint32(adjusted), memory.PageSize64K,
		types.AllocationCommit, types.ProtectRead|types.ProtectWrite, false)
	if err != nil {
		m.log.Debug("NtAllocateEncryptedMemory failed", "size", adjusted, "err", err)
		return 0, types.StatusUnsuccessful
	}
	m.log.Debug("NtAllocateEncryptedMemory", "address", address, "size", adjusted)
	return address, types.StatusSuccess
}

// NtFreeEncryptedMemory releases memory obtained from
// NtAllocateEncryptedMemory.
func (m *Memory) NtFreeEncryptedMemory(address uint32) types.Status {
	heap := m.mem.LookupHeap(address)
	if heap == nil || heap.Type() != memory.HeapTypeGuestXex {
		return types.StatusInvalidParameter
	}
	if _, err := heap.Release(address); err != nil {
		return types.StatusUnsuccessful
	}
	return types.StatusSuccess
}
