//go:build !unix

package mmfile

import "os"

// Open reads the whole file when mmap is not available. Read-write
// mappings are written back on Close.
func Open(path string, mode Mode) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := &Mapping{data: data}
	if mode == ModeReadWrite {
		m.close = func() error { return os.WriteFile(path, data, 0o644) }
	}
	return m, nil
}
