package vfs

import (
	"io"

	"github.com/joshuapare/guestkit/pkg/types"
)

// Device is a backing store mounted at a guest path prefix.
//
// A device owns its entry tree. Entries handed out by ResolvePath stay valid
// until the device is unregistered or the entry is deleted.
type Device interface {
	// Initialize builds the entry tree. It is called once before the
	// device is registered.
	Initialize() error

	// MountPath returns the guest path prefix, e.g. "\Device\Harddisk0\Partition1".
	MountPath() string

	// Name returns a short display name.
	Name() string

	IsReadOnly() bool

	// Root returns the root directory entry.
	Root() *Entry

	// ResolvePath returns the entry at the device-relative path, or nil.
	ResolvePath(path string) *Entry

	// Geometry describes the device's allocation units.
	Geometry() Geometry
}

// Geometry is the allocation-unit layout a device reports to the guest.
type Geometry struct {
	TotalAllocationUnits     uint64
	AvailableAllocationUnits uint64
	SectorsPerAllocationUnit uint32
	BytesPerSector           uint32
}

// DefaultGeometry is reported by devices without a real sector layout.
var DefaultGeometry = Geometry{
	TotalAllocationUnits:     0x2000000,
	AvailableAllocationUnits: 0x1000000,
	SectorsPerAllocationUnit: 8,
	BytesPerSector:           0x200,
}

// File is an open handle on an entry.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Entry returns the entry the handle was opened on.
	Entry() *Entry

	// Access returns the granted access mask.
	Access() types.FileAccess

	// SetLength truncates or extends the file.
	SetLength(size int64) error
}

// Mapping is a memory-mapped view of an entry's contents.
type Mapping interface {
	Bytes() []byte
	Close() error
}
