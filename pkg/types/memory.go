package types

// -----------------------------------------------------------------------------
// Host-side memory flags (heap/page table vocabulary)
// -----------------------------------------------------------------------------

// Allocation flags stored in a page's state.
const (
	AllocationReserve uint32 = 1 << 0
	AllocationCommit  uint32 = 1 << 1
)

// Protect flags stored in a page's allocation and current protection.
const (
	ProtectRead         uint32 = 1 << 0
	ProtectWrite        uint32 = 1 << 1
	ProtectNoCache      uint32 = 1 << 2
	ProtectWriteCombine uint32 = 1 << 3
)

// PageAccess summarizes the effective access over a range of pages.
type PageAccess int

const (
	NoAccess PageAccess = iota
	ReadOnly
	ReadWrite
)

func (a PageAccess) String() string {
	switch a {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	default:
		return "no-access"
	}
}

// AccessFromProtect reduces protect flags to a PageAccess.
func AccessFromProtect(protect uint32) PageAccess {
	if protect&ProtectRead != 0 {
		if protect&ProtectWrite != 0 {
			return ReadWrite
		}
		return ReadOnly
	}
	return NoAccess
}

// -----------------------------------------------------------------------------
// Guest (XDK) memory constants
// -----------------------------------------------------------------------------

// Page protection values as passed by guest code.
const (
	X_PAGE_NOACCESS          uint32 = 0x00000001
	X_PAGE_READONLY          uint32 = 0x00000002
	X_PAGE_READWRITE         uint32 = 0x00000004
	X_PAGE_WRITECOPY         uint32 = 0x00000008
	X_PAGE_EXECUTE           uint32 = 0x00000010
	X_PAGE_EXECUTE_READ      uint32 = 0x00000020
	X_PAGE_EXECUTE_READWRITE uint32 = 0x00000040
	X_PAGE_EXECUTE_WRITECOPY uint32 = 0x00000080
	X_PAGE_GUARD             uint32 = 0x00000100
	X_PAGE_NOCACHE           uint32 = 0x00000200
	X_PAGE_WRITECOMBINE      uint32 = 0x00000400
)

// Allocation and free types as passed by guest code.
const (
	X_MEM_COMMIT      uint32 = 0x00001000
	X_MEM_RESERVE     uint32 = 0x00002000
	X_MEM_DECOMMIT    uint32 = 0x00004000
	X_MEM_RELEASE     uint32 = 0x00008000
	X_MEM_FREE        uint32 = 0x00010000
	X_MEM_PRIVATE     uint32 = 0x00020000
	X_MEM_RESET       uint32 = 0x00080000
	X_MEM_TOP_DOWN    uint32 = 0x00100000
	X_MEM_NOZERO      uint32 = 0x00800000
	X_MEM_LARGE_PAGES uint32 = 0x20000000
	X_MEM_HEAP        uint32 = 0x40000000
	X_MEM_16MB_PAGES  uint32 = 0x80000000
)

// X_PAGE_EXECUTE_ANY collects every execute protection bit.
const X_PAGE_EXECUTE_ANY = X_PAGE_EXECUTE | X_PAGE_EXECUTE_READ |
	X_PAGE_EXECUTE_READWRITE | X_PAGE_EXECUTE_WRITECOPY
