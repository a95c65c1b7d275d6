package xboxkrnl

import (
	"bytes"
	"encoding/binary"

	"github.com/joshuapare/guestkit/memory"
	"github.com/joshuapare/guestkit/pkg/types"
)

// StatisticsSize is the byte size of the guest statistics structure.
const StatisticsSize uint32 = 104

// StatisticsSection is one half (title or system) of the statistics result.
type StatisticsSection struct {
	AvailablePages             uint32 `json:"available_pages"`
	TotalVirtualMemoryBytes    uint32 `json:"total_virtual_memory_bytes"`
	ReservedVirtualMemoryBytes uint32 `json:"reserved_virtual_memory_bytes"`
	PhysicalPages              uint32 `json:"physical_pages"`
	PoolPages                  uint32 `json:"pool_pages"`
	StackPages                 uint32 `json:"stack_pages"`
	ImagePages                 uint32 `json:"image_pages"`
	HeapPages                  uint32 `json:"heap_pages"`
	VirtualPages               uint32 `json:"virtual_pages"`
	PageTablePages             uint32 `json:"page_table_pages"`
	CachePages                 uint32 `json:"cache_pages"`
}

// Statistics is the MmQueryStatistics result. Its binary form is
// StatisticsSize big-endian bytes.
type Statistics struct {
	Size                uint32            `json:"size"`
	TotalPhysicalPages  uint32            `json:"total_physical_pages"`
	KernelPages         uint32            `json:"kernel_pages"`
	Title               StatisticsSection `json:"title"`
	System              StatisticsSection `json:"system"`
	HighestPhysicalPage uint32            `json:"highest_physical_page"`
}

// MarshalBinary encodes s in guest byte order.
func (s Statistics) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(StatisticsSize))
	if err := binary.Write(&buf, binary.BigEndian, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MmQueryStatistics fills the memory statistics. size is the structure size
// the caller declared and must equal StatisticsSize.
//
// Only the title's available pages and reserved bytes are measured, from
// the three physical windows; the remaining fields are fixed values titles
// are known to accept.
func (m *Memory) MmQueryStatistics(size uint32) (Statistics, types.Status) {
	if size != StatisticsSize {
		return Statistics{}, types.StatusBufferTooSmall
	}

	sum := m.mem.HeapsPageStatsSummary(
		m.mem.LookupHeapByType(true, memory.PageSize4K),
		m.mem.LookupHeapByType(true, memory.PageSize64K),
		m.mem.LookupHeapByType(true, memory.PageSize16M),
	)

	st := Statistics{
		Size:               StatisticsSize,
		TotalPhysicalPages: 0x00020000, // 512 MiB of 4 KiB pages
		KernelPages:        0x00000100,
		Title: StatisticsSection{
			TotalVirtualMemoryBytes:    0x2FFE0000,
			ReservedVirtualMemoryBytes: sum.ReservedBytes,
			PhysicalPages:              0x00001000,
			PoolPages:                  0x00000010,
			StackPages:                 0x00000100,
			ImagePages:                 0x00000100,
			HeapPages:                  0x00000100,
			VirtualPages:               0x00000100,
			PageTablePages:             0x00000100,
			CachePages:                 0x00000100,
		},
		HighestPhysicalPage: 0x0001FFFF,
	}
	st.Title.AvailablePages = satSub(st.TotalPhysicalPages-st.KernelPages, sum.Used)
	return st, types.StatusSuccess
}
