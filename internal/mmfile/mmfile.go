// Package mmfile maps host files into memory for the host path device.
package mmfile

// Mode selects the access of a mapping.
type Mode int

const (
	// ModeRead maps the file read-only.
	ModeRead Mode = iota
	// ModeReadWrite maps the file shared and writable; writes reach the
	// file by Close at the latest.
	ModeReadWrite
)

// Mapping is a mapped view of a whole host file.
type Mapping struct {
	data  []byte
	close func() error
}

// Bytes returns the mapped contents. The slice is invalid after Close.
func (m *Mapping) Bytes() []byte { return m.data }

// Len returns the mapped length.
func (m *Mapping) Len() int { return len(m.data) }

// Close releases the mapping. Closing twice is a no-op.
func (m *Mapping) Close() error {
	if m.close == nil {
		return nil
	}
	fn := m.close
	m.close, m.data = nil, nil
	return fn()
}
