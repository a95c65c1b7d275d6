//go:build linux || darwin || freebsd

package memory

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// newArena reserves the guest arena as one anonymous mapping. The kernel
// only backs pages that are touched, so the full 3 GiB costs nothing until
// guest code writes to it.
func newArena(size uint64) (*arena, error) {
	if size > uint64(^uint(0)>>1) {
		return nil, fmt.Errorf("memory: arena of %d bytes exceeds address space", size)
	}
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, mmapFlags)
	if err != nil {
		return nil, fmt.Errorf("memory: reserve arena: %w", err)
	}
	return &arena{
		data: data,
		close: func() error {
			err := unix.Munmap(data)
			if errors.Is(err, unix.EINVAL) {
				// Treat double-unmap as no-op for callers.
				return nil
			}
			return err
		},
	}, nil
}

// discard drops the host pages of [off, off+n) so they read back as zero
// and stop counting against resident memory.
func (a *arena) discard(off, n uint64) {
	if a.data == nil || n == 0 {
		return
	}
	pageSize := uint64(unix.Getpagesize())
	start := roundUp(off, pageSize)
	end := roundDown(off+n, pageSize)
	if start >= end {
		return
	}
	_ = unix.Madvise(a.data[start:end], unix.MADV_DONTNEED)
}
