package xboxkrnl

import (
	"encoding/binary"

	"github.com/joshuapare/guestkit/memory"
	"github.com/joshuapare/guestkit/pkg/types"
)

const (
	poolHeaderSize     uint32 = 8
	poolSmallLimit     uint32 = 0xFD8
	poolHeaderMagic    byte   = 170
	poolDefaultTag     uint32 = 0x656E6F4E // "None"
	poolSmallAlignment uint32 = 64
	poolLargeAlignment uint32 = 4096
)

// ExAllocatePoolTypeWithTag allocates pool memory and returns its guest
// address, or zero on failure.
//
// Requests up to 0xFD8 bytes are prefixed with an 8-byte header carrying the
// big-endian tag and come from 64-byte aligned system heap blocks. Larger
// requests are 4 KiB aligned and have no header.
func (m *Memory) ExAllocatePoolTypeWithTag(size, tag, zero uint32) uint32 {
	if size <= poolSmallLimit {
		address, err := m.mem.SystemHeapAlloc(size+poolHeaderSize, poolSmallAlignment)
		if err != nil {
			m.log.Warn("pool allocation failed", "size", size, "err", err)
			return 0
		}
		hdr, err := m.mem.Translate(address, poolHeaderSize)
		if err != nil {
			return 0
		}
		hdr[2] = poolHeaderMagic
		binary.BigEndian.PutUint32(hdr[4:], tag)
		return address + poolHeaderSize
	}
	address, err := m.mem.SystemHeapAlloc(size, poolLargeAlignment)
	if err != nil {
		m.log.Warn("pool allocation failed", "size", size, "err", err)
		return 0
	}
	return address
}

// ExAllocatePoolWithTag allocates tagged pool memory.
func (m *Memory) ExAllocatePoolWithTag(size, tag uint32) uint32 {
	return m.ExAllocatePoolTypeWithTag(size, tag, 0)
}

// ExAllocatePool allocates pool memory tagged "None".
func (m *Memory) ExAllocatePool(size uint32) uint32 {
	return m.ExAllocatePoolTypeWithTag(size, poolDefaultTag, 0)
}

// ExFreePool frees pool memory. 4 KiB aligned addresses carry no header.
func (m *Memory) ExFreePool(address uint32) {
	if address&(poolLargeAlignment-1) != 0 {
		address -= poolHeaderSize
	}
	if err := m.mem.SystemHeapFree(address); err != nil {
		m.log.Debug("ExFreePool failed", "address", address, "err", err)
	}
}

// PoolTag returns the tag stored in the header of a small pool allocation.
func (m *Memory) PoolTag(address uint32) (uint32, bool) {
	if address&(poolLargeAlignment-1) == 0 {
		return 0, false
	}
	hdr, err := m.mem.Translate(address-poolHeaderSize, poolHeaderSize)
	if err != nil || hdr[2] != poolHeaderMagic {
		return 0, false
	}
	return binary.BigEndian.Uint32(hdr[4:]), true
}

// Kernel stacks are carved from the dedicated stack heap.
const (
	stackLow  uint32 = 0x70000000
	stackHigh uint32 = 0x7F000000
)

// MmCreateKernelStack allocates a kernel stack and returns its top (the
// highest address plus one), or zero on failure. Sizes with any bit in
// 0xF000 get 4 KiB alignment, others 64 KiB.
func (m *Memory) MmCreateKernelStack(size, r4 uint32) uint32 {
	aligned := (size + 0xFFF) &^ 0xFFF
	alignment := uint32(0x10000)
	if size&0xF000 != 0 {
		alignment = 0x1000
	}
	heap := m.mem.LookupHeap(stackLow)
	address, err := heap.AllocRange(stackLow, stackHigh, aligned, alignment,
		types.AllocationReserve|types.AllocationCommit, types.ProtectRead|types.ProtectWrite, false)
	if err != nil {
		m.log.Warn("MmCreateKernelStack failed", "size", size, "err", err)
		return 0
	}
	return address + size
}

// MmDeleteKernelStack releases a stack; end is its low address.
func (m *Memory) MmDeleteKernelStack(base, end uint32) types.Status {
	heap := m.mem.LookupHeap(stackLow)
	if heap == nil || heap.Type() != memory.HeapTypeGuestStack {
		return types.StatusUnsuccessful
	}
	if _, err := heap.Release(end); err != nil {
		return types.StatusUnsuccessful
	}
	return types.StatusSuccess
}
