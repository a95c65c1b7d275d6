// Package memory implements the guest virtual memory manager.
//
// # Overview
//
// The guest sees a 32-bit address space split into fixed heaps. Each heap
// has one page size and a region table with one entry per page; the
// Manager owns every heap and the host arena that backs their bytes.
//
//	v00000000  0x00000000-0x3FFFFFFF   4 KiB  virtual (first 64 KiB reserved)
//	v40000000  0x40000000-0x6FFFFFFF  64 KiB  virtual
//	v70000000  0x70000000-0x7EFFFFFF   4 KiB  kernel stacks
//	v80000000  0x80000000-0x8FFFFFFF  64 KiB  xex images
//	v90000000  0x90000000-0x9FFFFFFF   4 KiB  xex images
//	vA0000000  0xA0000000-0xBFFFFFFF  64 KiB  physical window
//	vC0000000  0xC0000000-0xDFFFFFFF  16 MiB  physical window
//	vE0000000  0xE0000000-0xFFCFFFFF   4 KiB  physical window (+0x1000)
//
// # Reserve and Commit
//
// Allocation is two-phase, as on NT. Reserving claims an address range;
// committing makes it accessible. Decommit returns pages to reserved,
// Release returns a whole allocation to free:
//
//	m, err := memory.New(memory.Options{})
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	h := m.LookupHeapByType(false, memory.PageSize4K)
//	addr, err := h.Alloc(0x3000, 0, types.AllocationReserve|types.AllocationCommit,
//	    types.ProtectRead|types.ProtectWrite, false)
//	...
//	size, err := h.Release(addr + 0x1800) // any address inside the allocation
//
// # Rounding
//
// Sizes round up to the page size and base addresses truncate to their
// page. Alignments round up to the page size; zero means page aligned.
//
// # Physical Windows
//
// The three physical heaps share one 512 MiB physical range tracked by a
// host-physical parent heap. Allocations through a window always come from
// the top of the requested range and are mirrored in the parent.
//
// # Thread Safety
//
// Every heap of a Manager shares one lock (Options.Lock). Each exported
// heap operation holds it for its full duration. Reads and writes of guest
// bytes through Translate are not synchronized, like guest loads and
// stores on real hardware.
package memory
