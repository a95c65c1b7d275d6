package memory

import (
	"bytes"
	"sync"
	"testing"

	"github.com/joshuapare/guestkit/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestManager_Layout tests the fixed heap layout.
func TestManager_Layout(t *testing.T) {
	m := newTestManager(t)

	heaps := m.Heaps()
	require.Len(t, heaps, len(guestLayout))
	for i := 1; i < len(heaps); i++ {
		assert.Greater(t, heaps[i].Base(), heaps[i-1].Base(), "heaps should be in ascending order")
		assert.LessOrEqual(t, uint64(heaps[i-1].Base())+uint64(heaps[i-1].Size()), uint64(heaps[i].Base()),
			"%s overlaps %s", heaps[i-1].Name(), heaps[i].Name())
	}

	cases := []struct {
		address uint32
		name    string
	}{
		{0x00000000, "v00000000"},
		{0x3FFFFFFF, "v00000000"},
		{0x40000000, "v40000000"},
		{0x6FFFFFFF, "v40000000"},
		{0x70000000, "v70000000"},
		{0x7EFFFFFF, "v70000000"},
		{0x80000000, "v80000000"},
		{0x90000000, "v90000000"},
		{0xA0000000, "vA0000000"},
		{0xC0000000, "vC0000000"},
		{0xE0000000, "vE0000000"},
		{0xFFCFFFFF, "vE0000000"},
	}
	for _, tc := range cases {
		h := m.LookupHeap(tc.address)
		require.NotNil(t, h, "0x%08X should be backed", tc.address)
		assert.Equal(t, tc.name, h.Name(), "heap for 0x%08X", tc.address)
	}

	assert.Nil(t, m.LookupHeap(0x7F000000), "hole below the xex heaps")
	assert.Nil(t, m.LookupHeap(0xFFD00000), "top 3 MiB are unbacked")
}

// TestManager_LookupHeapByType tests the allocation heap selection table.
func TestManager_LookupHeapByType(t *testing.T) {
	m := newTestManager(t)

	assert.Equal(t, "v00000000", m.LookupHeapByType(false, PageSize4K).Name())
	assert.Equal(t, "v40000000", m.LookupHeapByType(false, PageSize64K).Name())
	assert.Equal(t, "v40000000", m.LookupHeapByType(false, PageSize16M).Name())
	assert.Equal(t, "vE0000000", m.LookupHeapByType(true, PageSize4K).Name())
	assert.Equal(t, "vA0000000", m.LookupHeapByType(true, PageSize64K).Name())
	assert.Equal(t, "vC0000000", m.LookupHeapByType(true, PageSize16M).Name())

	for _, h := range m.Heaps() {
		assert.Equal(t, h.Type() == HeapTypeGuestPhysical, h.IsPhysical(), h.Name())
	}
}

// TestManager_NullGuard tests that address zero is never handed out.
func TestManager_NullGuard(t *testing.T) {
	m := newTestManager(t)
	h := m.LookupHeap(0)

	info, err := h.QueryRegionInfo(0)
	require.NoError(t, err)
	assert.Equal(t, types.AllocationReserve, info.State)
	assert.Equal(t, nullGuardSize, info.RegionSize)
	assert.Equal(t, types.NoAccess, h.QueryRangeAccess(0, 0xFFFF))
}

// TestManager_Translate tests guest-to-host translation.
func TestManager_Translate(t *testing.T) {
	m := newTestManager(t)

	addr, err := m.SystemHeapAlloc(0x2000, 0)
	require.NoError(t, err)

	b, err := m.Translate(addr, 0x2000)
	require.NoError(t, err)
	require.Len(t, b, 0x2000)
	copy(b, "guest")

	again, err := m.Translate(addr, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("guest"), again)

	_, err = m.Translate(0x7F000000, 4)
	assert.ErrorIs(t, err, ErrUnmapped)

	_, err = m.Translate(0x3FFFF000, 0x2000)
	assert.ErrorIs(t, err, ErrUnmapped, "range crossing a heap end")
}

// TestManager_FillZeroCopy tests the bulk memory helpers.
func TestManager_FillZeroCopy(t *testing.T) {
	m := newTestManager(t)

	src, err := m.SystemHeapAlloc(0x100, 0)
	require.NoError(t, err)
	dst, err := m.SystemHeapAlloc(0x100, 0)
	require.NoError(t, err)

	require.NoError(t, m.Fill(src, 0x100, 0xAB))
	require.NoError(t, m.Copy(dst, src, 0x100))

	b, err := m.Translate(dst, 0x100)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xAB}, 0x100), b)

	require.NoError(t, m.Zero(dst, 0x80))
	assert.Equal(t, make([]byte, 0x80), b[:0x80])
	assert.Equal(t, byte(0xAB), b[0x80])
}

// TestManager_SystemHeap tests kernel-side allocations.
func TestManager_SystemHeap(t *testing.T) {
	m := newTestManager(t)

	addr, err := m.SystemHeapAlloc(0x10, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, addr, nullGuardSize)

	b, err := m.Translate(addr, 0x10)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 0x10), b, "system heap memory should be zeroed")

	require.NoError(t, m.SystemHeapFree(addr))
	assert.ErrorIs(t, m.SystemHeapFree(addr), ErrNotAllocated)
	assert.ErrorIs(t, m.SystemHeapFree(0x7F000000), ErrUnmapped)
}

// TestManager_HeapsPageStatsSummary tests the aggregate statistics formula.
func TestManager_HeapsPageStatsSummary(t *testing.T) {
	m := newTestManager(t)
	a0 := m.LookupHeapByType(true, PageSize64K)
	c0 := m.LookupHeapByType(true, PageSize16M)
	e0 := m.LookupHeapByType(true, PageSize4K)

	empty := m.HeapsPageStatsSummary(a0, c0, e0)
	assert.Equal(t, PageStatsSummary{Unreserved: 0x2000 + 32 + 0x1FD00}, empty)

	_, err := e0.Alloc(0x1000, 0, reserveCommit, readWrite, false)
	require.NoError(t, err)
	_, err = a0.Alloc(0x10000, 0, reserveCommit, readWrite, false)
	require.NoError(t, err)

	got := m.HeapsPageStatsSummary(a0, c0, e0, nil)
	assert.Equal(t, uint32(2), got.Reserved)
	assert.Equal(t, empty.Unreserved-2, got.Unreserved)
	assert.Equal(t, uint32(16+1), got.Used, "used pages are counted in 4 KiB units")
	assert.Equal(t, uint32(0x10000+0x1000), got.ReservedBytes)
}

// TestManager_ConcurrentAlloc tests that parallel allocations never overlap.
func TestManager_ConcurrentAlloc(t *testing.T) {
	m := newTestManager(t)
	h := m.LookupHeapByType(false, PageSize64K)

	const workers, perWorker = 8, 32
	results := make(chan uint32, workers*perWorker)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				a, err := h.Alloc(PageSize64K, 0, reserveCommit, readWrite, false)
				if err != nil {
					t.Error(err)
					return
				}
				results <- a
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint32]bool)
	for a := range results {
		assert.False(t, seen[a], "address 0x%08X handed out twice", a)
		seen[a] = true
	}
	assert.Len(t, seen, workers*perWorker)
}

// TestManager_SharedLock tests that a caller-supplied lock guards the heaps.
func TestManager_SharedLock(t *testing.T) {
	var mu sync.Mutex
	m, err := New(Options{Lock: &mu})
	require.NoError(t, err)
	defer m.Close()

	mu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.LookupHeapByType(false, PageSize4K).Alloc(0x1000, 0, reserveCommit, readWrite, false)
	}()
	select {
	case <-done:
		t.Fatal("allocation should block while the shared lock is held")
	default:
	}
	mu.Unlock()
	<-done
}

// TestHeap_Dump tests the region map output.
func TestHeap_Dump(t *testing.T) {
	m := newTestManager(t)
	h := m.LookupHeapByType(false, PageSize4K)

	_, err := h.Alloc(0x2000, 0, reserveCommit, readWrite, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, h.Dump(&buf))
	out := buf.String()
	assert.Contains(t, out, "v00000000 guest-virtual")
	assert.Contains(t, out, "0x00000000-0x0000FFFF")
	assert.Contains(t, out, "reserved")
	assert.Contains(t, out, "0x00010000-0x00011FFF")
	assert.Contains(t, out, "committed")
	assert.Contains(t, out, "free")
}
