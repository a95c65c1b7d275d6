//go:build unix

package mmfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Open maps the file at path.
func Open(path string, mode Mode) (*Mapping, error) {
	flag, prot := os.O_RDONLY, unix.PROT_READ
	if mode == ModeReadWrite {
		flag, prot = os.O_RDWR, unix.PROT_READ|unix.PROT_WRITE
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close() // the mapping keeps the pages alive

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return &Mapping{data: []byte{}}, nil
	}
	if size > int64(^uint(0)>>1) {
		return nil, fmt.Errorf("mmfile: file too large to map (%d bytes)", size)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmfile: mmap %s: %w", path, err)
	}
	return &Mapping{data: data, close: func() error {
		if mode == ModeReadWrite {
			if err := unix.Msync(data, unix.MS_SYNC); err != nil {
				_ = unix.Munmap(data)
				return fmt.Errorf("mmfile: msync %s: %w", path, err)
			}
		}
		return unix.Munmap(data)
	}}, nil
}
