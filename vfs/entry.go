package vfs

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/joshuapare/guestkit/pkg/types"
)

// BackingKind identifies what stores an entry's data.
type BackingKind uint8

const (
	BackingHost      BackingKind = iota + 1 // a file or directory on the host
	BackingContainer                        // a member of a content package
)

func (k BackingKind) String() string {
	switch k {
	case BackingHost:
		return "host"
	case BackingContainer:
		return "container"
	default:
		return fmt.Sprintf("backing(%d)", uint8(k))
	}
}

// Backend implements the device-specific half of an entry: creating and
// deleting children and opening data. One backend usually serves every
// entry of a device.
type Backend interface {
	Kind() BackingKind

	// CreateEntry creates a child of parent in the backing store and
	// returns the new, unattached entry.
	CreateEntry(parent *Entry, name string, attrs types.FileAttributes) (*Entry, error)

	// DeleteEntry removes entry from the backing store.
	DeleteEntry(entry *Entry) error

	// Open opens entry's data.
	Open(entry *Entry, access types.FileAccess) (File, error)

	// OpenMapped maps entry's data, or returns ErrNotMappable.
	OpenMapped(entry *Entry, writable bool) (Mapping, error)

	// CanMap reports whether OpenMapped can succeed for entry.
	CanMap(entry *Entry) bool
}

// EntryInfo is the metadata of a new entry.
type EntryInfo struct {
	Attributes     types.FileAttributes
	Size           int64
	AllocationSize int64
	CreateTime     time.Time
	AccessTime     time.Time
	WriteTime      time.Time
	// HostPath is the host file system path of host-backed entries.
	HostPath string
}

// Entry is a file or directory node of a device's tree.
//
// Parents own their children; the parent reference is a back pointer used
// for deletion and path reconstruction. Entries are not reference counted:
// deleting an entry while a handle derived from it is in use is the
// caller's responsibility.
type Entry struct {
	device  Device
	backend Backend
	parent  *Entry
	name    string
	path    string // device-relative, no leading separator
	info    EntryInfo

	// sizeMu guards info.Size and info.AllocationSize, which open file
	// handles update outside the file system lock.
	sizeMu sync.Mutex

	children []*Entry
}

// NewEntry returns a detached entry. Devices call it while building their
// trees; parent may be nil for the root.
func NewEntry(device Device, backend Backend, parent *Entry, name string, info EntryInfo) *Entry {
	e := &Entry{device: device, backend: backend, parent: parent, name: name, info: info}
	if parent != nil {
		e.path = JoinPath(parent.path, name)
	}
	return e
}

// AddChild attaches child to e. It is used by devices populating a tree.
func (e *Entry) AddChild(child *Entry) {
	child.parent = e
	child.path = JoinPath(e.path, child.name)
	e.children = append(e.children, child)
}

// Device returns the device the entry belongs to.
func (e *Entry) Device() Device { return e.device }

// Parent returns the containing directory, nil for a root.
func (e *Entry) Parent() *Entry { return e.parent }

// Name returns the entry name as stored on the device.
func (e *Entry) Name() string { return e.name }

// Attributes returns the entry's file attributes.
func (e *Entry) Attributes() types.FileAttributes { return e.info.Attributes }

// IsDirectory reports whether the entry is a directory.
func (e *Entry) IsDirectory() bool { return e.info.Attributes.IsDirectory() }

// CreateTime returns the creation timestamp.
func (e *Entry) CreateTime() time.Time { return e.info.CreateTime }

// AccessTime returns the last access timestamp.
func (e *Entry) AccessTime() time.Time { return e.info.AccessTime }

// WriteTime returns the last write timestamp.
func (e *Entry) WriteTime() time.Time { return e.info.WriteTime }

// Path returns the device-relative path, "" for the root.
func (e *Entry) Path() string { return e.path }

// AbsolutePath returns the guest path including the mount prefix.
func (e *Entry) AbsolutePath() string {
	if e.device == nil {
		return e.path
	}
	return JoinPath(e.device.MountPath(), e.path)
}

// Kind returns the entry's backing kind.
func (e *Entry) Kind() BackingKind {
	if e.backend == nil {
		return 0
	}
	return e.backend.Kind()
}

// HostPath returns the host path of a host-backed entry, or "".
func (e *Entry) HostPath() string { return e.info.HostPath }

// IsReadOnly reports whether the entry or its device is read-only.
func (e *Entry) IsReadOnly() bool {
	if e.device != nil && e.device.IsReadOnly() {
		return true
	}
	return e.info.Attributes&types.AttributeReadOnly != 0
}

// Size returns the entry's data size in bytes.
func (e *Entry) Size() int64 {
	e.sizeMu.Lock()
	defer e.sizeMu.Unlock()
	return e.info.Size
}

// AllocationSize returns the bytes reserved for the entry's data.
func (e *Entry) AllocationSize() int64 {
	e.sizeMu.Lock()
	defer e.sizeMu.Unlock()
	return e.info.AllocationSize
}

// SetSize records a new data size, e.g. after a write extended the file.
// The allocation size only grows.
func (e *Entry) SetSize(size int64) {
	e.sizeMu.Lock()
	defer e.sizeMu.Unlock()
	e.info.Size = size
	if size > e.info.AllocationSize {
		e.info.AllocationSize = size
	}
}

// ExtendSize raises the data size to end if it is smaller, e.g. after a
// write past the end of the file.
func (e *Entry) ExtendSize(end int64) {
	e.sizeMu.Lock()
	defer e.sizeMu.Unlock()
	if end <= e.info.Size {
		return
	}
	e.info.Size = end
	if end > e.info.AllocationSize {
		e.info.AllocationSize = end
	}
}

// Children returns a snapshot of the entry's children.
func (e *Entry) Children() []*Entry { return slices.Clone(e.children) }

// GetChild returns the child named name, compared case-insensitively, or nil.
func (e *Entry) GetChild(name string) *Entry {
	for _, c := range e.children {
		if strings.EqualFold(c.name, name) {
			return c
		}
	}
	return nil
}

// ResolvePath walks path segment by segment from e and returns the entry
// reached, or nil.
func (e *Entry) ResolvePath(path string) *Entry {
	cur := e
	for _, seg := range SplitPath(path) {
		if cur = cur.GetChild(seg); cur == nil {
			return nil
		}
	}
	return cur
}

// CreateEntry creates and attaches a child named name.
func (e *Entry) CreateEntry(name string, attrs types.FileAttributes) (*Entry, error) {
	if name == "" {
		return nil, ErrInvalidPath
	}
	if e.IsReadOnly() {
		return nil, ErrReadOnly
	}
	if e.GetChild(name) != nil {
		return nil, ErrExists
	}
	if e.backend == nil {
		return nil, ErrReadOnly
	}
	child, err := e.backend.CreateEntry(e, name, attrs)
	if err != nil {
		return nil, err
	}
	e.AddChild(child)
	return child, nil
}

// Delete removes child from the backing store and from e.
func (e *Entry) Delete(child *Entry) error {
	if e.IsReadOnly() {
		return ErrReadOnly
	}
	if !slices.Contains(e.children, child) {
		return ErrNotFound
	}
	if e.backend != nil {
		if err := e.backend.DeleteEntry(child); err != nil {
			return err
		}
	}
	e.detach(child)
	return nil
}

// Remove deletes e through its parent.
func (e *Entry) Remove() error {
	if e.parent == nil {
		return ErrRoot
	}
	return e.parent.Delete(e)
}

// detach drops child from the cached tree without touching the backing
// store.
func (e *Entry) detach(child *Entry) {
	e.children = slices.DeleteFunc(e.children, func(c *Entry) bool { return c == child })
}

// Open opens the entry's data with the given access.
func (e *Entry) Open(access types.FileAccess) (File, error) {
	if e.backend == nil {
		return nil, types.StatusAccessDenied
	}
	return e.backend.Open(e, access)
}

// CanMap reports whether the entry supports OpenMapped.
func (e *Entry) CanMap() bool {
	return e.backend != nil && !e.IsDirectory() && e.backend.CanMap(e)
}

// OpenMapped maps the entry's contents.
func (e *Entry) OpenMapped(writable bool) (Mapping, error) {
	if !e.CanMap() {
		return nil, ErrNotMappable
	}
	return e.backend.OpenMapped(e, writable)
}

func (e *Entry) String() string { return e.AbsolutePath() }
