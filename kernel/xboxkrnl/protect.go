package xboxkrnl

import "github.com/joshuapare/guestkit/pkg/types"

// ToXdkProtect converts heap protect flags to the guest's X_PAGE_* value.
func ToXdkProtect(protect uint32) uint32 {
	var result uint32
	switch {
	case protect&(types.ProtectRead|types.ProtectWrite) == 0:
		result = types.X_PAGE_NOACCESS
	case protect&types.ProtectRead != 0 && protect&types.ProtectWrite == 0:
		result = types.X_PAGE_READONLY
	default:
		result = types.X_PAGE_READWRITE
	}
	if protect&types.ProtectNoCache != 0 {
		result |= types.X_PAGE_NOCACHE
	}
	if protect&types.ProtectWriteCombine != 0 {
		result |= types.X_PAGE_WRITECOMBINE
	}
	return result
}

// FromXdkProtect converts a guest X_PAGE_* value to heap protect flags.
// Execute variants map to their data-access equivalent.
func FromXdkProtect(protect uint32) uint32 {
	var result uint32
	switch {
	case protect&(types.X_PAGE_READONLY|types.X_PAGE_EXECUTE_READ) != 0:
		result = types.ProtectRead
	case protect&(types.X_PAGE_READWRITE|types.X_PAGE_EXECUTE_READWRITE) != 0:
		result = types.ProtectRead | types.ProtectWrite
	}
	if protect&types.X_PAGE_NOCACHE != 0 {
		result |= types.ProtectNoCache
	}
	if protect&types.X_PAGE_WRITECOMBINE != 0 {
		result |= types.ProtectWriteCombine
	}
	return result
}

// xdkState converts a heap page state to X_MEM_COMMIT, X_MEM_RESERVE or
// X_MEM_FREE.
func xdkState(state uint32) uint32 {
	switch {
	case state&types.AllocationCommit != 0:
		return types.X_MEM_COMMIT
	case state&types.AllocationReserve != 0:
		return types.X_MEM_RESERVE
	default:
		return types.X_MEM_FREE
	}
}
