package memory

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/joshuapare/guestkit/internal/logger"
	"github.com/joshuapare/guestkit/pkg/types"
)

// heapLayout describes one heap of the fixed guest address space layout.
type heapLayout struct {
	name     string
	heapType HeapType
	base     uint32
	size     uint32
	pageSize uint32
	// physicalBase is the physical address of base for physical windows.
	physicalBase uint32
}

var guestLayout = []heapLayout{
	{"v00000000", HeapTypeGuestVirtual, 0x00000000, 0x40000000, PageSize4K, 0},
	{"v40000000", HeapTypeGuestVirtual, 0x40000000, 0x30000000, PageSize64K, 0},
	{"v70000000", HeapTypeGuestStack, 0x70000000, 0x0F000000, PageSize4K, 0},
	{"v80000000", HeapTypeGuestXex, 0x80000000, 0x10000000, PageSize64K, 0},
	{"v90000000", HeapTypeGuestXex, 0x90000000, 0x10000000, PageSize4K, 0},
	{"vA0000000", HeapTypeGuestPhysical, 0xA0000000, 0x20000000, PageSize64K, 0},
	{"vC0000000", HeapTypeGuestPhysical, 0xC0000000, 0x20000000, PageSize16M, 0},
	{"vE0000000", HeapTypeGuestPhysical, 0xE0000000, 0x1FD00000, PageSize4K, e0PhysicalOffset},
}

// nullGuardSize is the span at address zero reserved with no access so
// null-pointer accesses never land in an allocation.
const nullGuardSize uint32 = 0x10000

// Manager owns the guest address space: the arena backing it and every
// heap carved out of it.
//
// A Manager is created once per guest instance and lives until Close.
// Heaps are never created or destroyed individually; callers receive
// non-owning *Heap references valid for the Manager's lifetime.
type Manager struct {
	mu    sync.Locker
	log   *slog.Logger
	arena *arena

	heaps    []*Heap // guest heaps, ascending base
	physical *Heap   // host-physical parent of the physical windows
}

// New reserves the arena and builds the fixed heap layout.
func New(opts Options) (*Manager, error) {
	mu := opts.Lock
	if mu == nil {
		mu = &sync.Mutex{}
	}
	log := logger.For(opts.Logger, "memory")

	a, err := newArena(arenaSize)
	if err != nil {
		return nil, err
	}

	m := &Manager{mu: mu, log: log, arena: a}

	m.physical = newHeap("physical", HeapTypeHostPhysical, 0, uint32(physicalMemorySize), PageSize4K, mu, log)
	m.physical.arena = a
	m.physical.arenaOffset = physicalArenaBase

	for _, l := range guestLayout {
		h := newHeap(l.name, l.heapType, l.base, l.size, l.pageSize, mu, log)
		h.arena = a
		if l.heapType == HeapTypeGuestPhysical {
			h.parent = m.physical
			h.physicalBase = l.physicalBase
			h.arenaOffset = physicalArenaBase + uint64(l.physicalBase)
		} else {
			h.arenaOffset = uint64(l.base)
		}
		m.heaps = append(m.heaps, h)
	}

	if err := m.heaps[0].AllocFixed(0, nullGuardSize, nullGuardSize, types.AllocationReserve, 0); err != nil {
		_ = a.release()
		return nil, fmt.Errorf("memory: reserve null guard: %w", err)
	}

	log.Debug("memory manager initialized", "heaps", len(m.heaps), "arena", arenaSize)
	return m, nil
}

// Close releases the arena. No heap or translated slice may be used
// afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.arena.release()
}

// Heaps returns the guest heaps in ascending address order.
func (m *Manager) Heaps() []*Heap {
	out := make([]*Heap, len(m.heaps))
	copy(out, m.heaps)
	return out
}

// PhysicalHeap returns the host-physical heap shared by the physical windows.
func (m *Manager) PhysicalHeap() *Heap { return m.physical }

// LookupHeap returns the heap containing address, or nil when no heap
// backs it (e.g. 0x7F000000-0x7FFFFFFF and the top 3 MiB).
func (m *Manager) LookupHeap(address uint32) *Heap {
	for _, h := range m.heaps {
		if h.Contains(address) {
			return h
		}
	}
	return nil
}

// LookupHeapByType returns the heap serving allocations of the given kind.
//
// Physical requests map to the 0xE0000000 (4 KiB), 0xA0000000 (64 KiB) or
// 0xC0000000 (16 MiB) windows; virtual requests to 0x00000000 (4 KiB) or
// 0x40000000 (larger pages).
func (m *Manager) LookupHeapByType(physical bool, pageSize uint32) *Heap {
	if physical {
		switch {
		case pageSize <= PageSize4K:
			return m.heapNamed("vE0000000")
		case pageSize <= PageSize64K:
			return m.heapNamed("vA0000000")
		default:
			return m.heapNamed("vC0000000")
		}
	}
	if pageSize <= PageSize4K {
		return m.heapNamed("v00000000")
	}
	return m.heapNamed("v40000000")
}

func (m *Manager) heapNamed(name string) *Heap {
	for _, h := range m.heaps {
		if h.name == name {
			return h
		}
	}
	return nil
}

// PhysicalAddress translates a guest address in a physical window to its
// physical address, or returns InvalidPhysicalAddress.
func (m *Manager) PhysicalAddress(address uint32) uint32 {
	h := m.LookupHeap(address)
	if h == nil || h.heapType != HeapTypeGuestPhysical {
		return InvalidPhysicalAddress
	}
	return h.PhysicalAddress(address)
}

// Translate returns the host bytes behind [address, address+size).
//
// The range must lie inside a single heap; anything else yields
// ErrUnmapped rather than touching memory outside the arena. The slice
// aliases guest memory and must not be retained past Close.
func (m *Manager) Translate(address, size uint32) ([]byte, error) {
	h := m.LookupHeap(address)
	if h == nil {
		return nil, fmt.Errorf("%w: 0x%08X", ErrUnmapped, address)
	}
	if uint64(address-h.base)+uint64(size) > uint64(h.size) {
		return nil, fmt.Errorf("%w: 0x%08X+0x%X crosses end of %s", ErrUnmapped, address, size, h.name)
	}
	if m.arena.data == nil {
		return nil, fmt.Errorf("%w: manager closed", ErrUnmapped)
	}
	return m.arena.slice(h.arenaOffset+uint64(address-h.base), uint64(size)), nil
}

// Zero clears [address, address+size).
func (m *Manager) Zero(address, size uint32) error {
	return m.Fill(address, size, 0)
}

// Fill sets every byte of [address, address+size) to value.
func (m *Manager) Fill(address, size uint32, value byte) error {
	b, err := m.Translate(address, size)
	if err != nil {
		return err
	}
	if value == 0 {
		clear(b)
		return nil
	}
	for i := range b {
		b[i] = value
	}
	return nil
}

// Copy copies size bytes from src to dest. Overlapping ranges are handled
// like memmove.
func (m *Manager) Copy(dest, src, size uint32) error {
	d, err := m.Translate(dest, size)
	if err != nil {
		return err
	}
	s, err := m.Translate(src, size)
	if err != nil {
		return err
	}
	copy(d, s)
	return nil
}

// SystemHeapAlloc allocates committed, zeroed, read-write memory for
// kernel-side objects from the 4 KiB virtual heap.
func (m *Manager) SystemHeapAlloc(size, alignment uint32) (uint32, error) {
	h := m.LookupHeapByType(false, PageSize4K)
	address, err := h.Alloc(size, alignment, types.AllocationReserve|types.AllocationCommit,
		types.ProtectRead|types.ProtectWrite, false)
	if err != nil {
		return 0, err
	}
	if err := m.Zero(address, size); err != nil {
		return 0, err
	}
	return address, nil
}

// SystemHeapFree releases memory obtained from SystemHeapAlloc.
func (m *Manager) SystemHeapFree(address uint32) error {
	h := m.LookupHeap(address)
	if h == nil {
		return fmt.Errorf("%w: 0x%08X", ErrUnmapped, address)
	}
	_, err := h.Release(address)
	return err
}

// HeapsPageStatsSummary aggregates page statistics over heaps under one
// acquisition of the lock, so the totals describe a single instant.
func (m *Manager) HeapsPageStatsSummary(heaps ...*Heap) PageStatsSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum PageStatsSummary
	for _, h := range heaps {
		if h == nil {
			continue
		}
		st := h.pageStatsLocked()
		sum.Unreserved += st.Unreserved
		sum.Reserved += st.Reserved
		sum.Used += uint32(uint64(st.Total-st.Unreserved) * uint64(h.pageSize) / uint64(PageSize4K))
		sum.ReservedBytes += st.Reserved * h.pageSize
	}
	return sum
}
