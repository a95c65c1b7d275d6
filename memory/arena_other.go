//go:build !linux && !darwin && !freebsd

package memory

import "fmt"

// newArena allocates the guest arena on the Go heap where anonymous
// mappings are not available.
func newArena(size uint64) (*arena, error) {
	if size > uint64(^uint(0)>>1) {
		return nil, fmt.Errorf("memory: arena of %d bytes exceeds address space", size)
	}
	return &arena{data: make([]byte, int(size)), close: func() error { return nil }}, nil
}

// discard zeroes [off, off+n) so released pages read back as zero.
func (a *arena) discard(off, n uint64) {
	if a.data == nil || n == 0 {
		return
	}
	clear(a.data[off : off+n])
}
