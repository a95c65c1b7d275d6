// Package xboxkrnl implements the memory exports of the guest kernel on top
// of the memory package.
//
// Each method mirrors one kernel export: it validates the guest's flags,
// converts X_PAGE_* and X_MEM_* values to heap flags, calls into the heaps
// and reports the outcome as an NT status code (or as a zero address for
// the exports that have no status).
//
// Usage:
//
//	mem, _ := memory.New(memory.Options{})
//	k := xboxkrnl.NewMemory(mem, xboxkrnl.Options{})
//	base, size, st := k.NtAllocateVirtualMemory(0, 0x10000,
//		types.X_MEM_RESERVE|types.X_MEM_COMMIT, types.X_PAGE_READWRITE)
//	if st.Failed() {
//		return st
//	}
package xboxkrnl
