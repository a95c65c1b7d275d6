package memory

import (
	"fmt"
	"log/slog"
	"sync"
)

// HeapType identifies what part of the guest address space a heap serves.
type HeapType uint8

const (
	HeapTypeGuestVirtual HeapType = iota
	HeapTypeGuestXex
	HeapTypeGuestStack
	HeapTypeGuestPhysical
	HeapTypeHostPhysical
)

func (t HeapType) String() string {
	switch t {
	case HeapTypeGuestVirtual:
		return "guest-virtual"
	case HeapTypeGuestXex:
		return "guest-xex"
	case HeapTypeGuestStack:
		return "guest-stack"
	case HeapTypeGuestPhysical:
		return "guest-physical"
	case HeapTypeHostPhysical:
		return "host-physical"
	default:
		return fmt.Sprintf("heap-type(%d)", uint8(t))
	}
}

// Page sizes used by the fixed heap layout.
const (
	PageSize4K  uint32 = 4 * 1024
	PageSize64K uint32 = 64 * 1024
	PageSize16M uint32 = 16 * 1024 * 1024
)

// InvalidPhysicalAddress is returned for addresses without a physical mapping.
const InvalidPhysicalAddress uint32 = 0xFFFFFFFF

// RegionInfo answers a virtual-memory query for one address.
//
// BaseAddress is the queried address truncated to its page. AllocationBase
// and AllocationProtect describe the allocation the page belongs to;
// RegionSize covers the run of pages from BaseAddress sharing state and
// protection. Free pages report zero allocation fields and the length of
// the free run.
type RegionInfo struct {
	BaseAddress       uint32
	AllocationBase    uint32
	AllocationProtect uint32
	AllocationSize    uint32
	RegionSize        uint32
	State             uint32
	Protect           uint32
}

// PageStats counts pages of a single heap by state.
type PageStats struct {
	Total      uint32 `json:"total"`
	Unreserved uint32 `json:"unreserved"`
	Reserved   uint32 `json:"reserved"`
	Committed  uint32 `json:"committed"`
}

// PageStatsSummary aggregates page statistics over several heaps.
//
// Used is expressed in 4 KiB units regardless of the heaps' page sizes.
type PageStatsSummary struct {
	Unreserved    uint32 `json:"unreserved_pages"`
	Reserved      uint32 `json:"reserved_pages"`
	Used          uint32 `json:"used_pages"`
	ReservedBytes uint32 `json:"reserved_bytes"`
}

// Options configures a Manager.
type Options struct {
	// Lock is the critical section guarding every heap. Pass the same lock
	// to the file system to get one critical section per guest instance.
	// Nil allocates a private mutex.
	Lock sync.Locker

	// Logger receives diagnostics. Nil follows the process logger.
	Logger *slog.Logger
}
