package devices

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joshuapare/guestkit/internal/logger"
	"github.com/joshuapare/guestkit/internal/mmfile"
	"github.com/joshuapare/guestkit/pkg/types"
	"github.com/joshuapare/guestkit/vfs"
)

// HostPathDevice exposes a host directory as a guest device.
type HostPathDevice struct {
	mountPath string
	hostPath  string
	readOnly  bool
	log       *slog.Logger

	backend *hostBackend
	root    *vfs.Entry
}

// NewHostPathDevice returns a device mounting hostPath at mountPath. Call
// Initialize before registering it.
func NewHostPathDevice(mountPath, hostPath string, readOnly bool) *HostPathDevice {
	d := &HostPathDevice{
		mountPath: mountPath,
		hostPath:  hostPath,
		readOnly:  readOnly,
		log:       logger.For(nil, "host-device").With("mount", mountPath),
	}
	d.backend = &hostBackend{device: d}
	return d
}

// SetLogger replaces the device's logger.
func (d *HostPathDevice) SetLogger(l *slog.Logger) {
	d.log = logger.For(l, "host-device").With("mount", d.mountPath)
}

// Initialize scans the host directory. A writable device creates the
// directory when it is missing; a read-only one requires it.
func (d *HostPathDevice) Initialize() error {
	if !d.readOnly {
		if err := os.MkdirAll(d.hostPath, 0o755); err != nil {
			return types.HostError("create "+d.hostPath, err)
		}
	}
	info, err := os.Stat(d.hostPath)
	if err != nil {
		return types.HostError("stat "+d.hostPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("devices: %s is not a directory", d.hostPath)
	}

	d.root = vfs.NewEntry(d, d.backend, nil, "", entryInfo(info, d.hostPath))
	n, err := d.populate(d.root)
	if err != nil {
		return err
	}
	d.log.Debug("host device initialized", "host", d.hostPath, "entries", n, "read_only", d.readOnly)
	return nil
}

// populate walks the host tree breadth-first below root.
func (d *HostPathDevice) populate(root *vfs.Entry) (int, error) {
	count := 0
	queue := []*vfs.Entry{root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		items, err := os.ReadDir(dir.HostPath())
		if err != nil {
			return count, types.HostError("read directory "+dir.HostPath(), err)
		}
		for _, item := range items {
			info, err := item.Info()
			if err != nil {
				// Removed between ReadDir and Info.
				continue
			}
			hostPath := filepath.Join(dir.HostPath(), item.Name())
			child := vfs.NewEntry(d, d.backend, dir, item.Name(), entryInfo(info, hostPath))
			dir.AddChild(child)
			count++
			if child.IsDirectory() {
				queue = append(queue, child)
			}
		}
	}
	return count, nil
}

func entryInfo(info fs.FileInfo, hostPath string) vfs.EntryInfo {
	ei := vfs.EntryInfo{
		Attributes: types.AttributeNormal,
		CreateTime: info.ModTime(),
		AccessTime: info.ModTime(),
		WriteTime:  info.ModTime(),
		HostPath:   hostPath,
	}
	if info.IsDir() {
		ei.Attributes = types.AttributeDirectory
	} else {
		ei.Size = info.Size()
		ei.AllocationSize = info.Size()
	}
	if info.Mode().Perm()&0o200 == 0 {
		ei.Attributes |= types.AttributeReadOnly
	}
	return ei
}

// MountPath returns the guest path the device is mounted at.
func (d *HostPathDevice) MountPath() string { return d.mountPath }

// Name identifies the device by its host directory name.
func (d *HostPathDevice) Name() string { return "host:" + filepath.Base(d.hostPath) }

// IsReadOnly reports whether guest writes are refused.
func (d *HostPathDevice) IsReadOnly() bool { return d.readOnly }

// Root returns the root directory entry, nil before Initialize.
func (d *HostPathDevice) Root() *vfs.Entry { return d.root }

// Geometry reports the fixed geometry of a hard drive partition.
func (d *HostPathDevice) Geometry() vfs.Geometry { return vfs.DefaultGeometry }

// HostPath returns the mounted host directory.
func (d *HostPathDevice) HostPath() string { return d.hostPath }

// ResolvePath walks the cached tree; it does not consult the host.
func (d *HostPathDevice) ResolvePath(path string) *vfs.Entry {
	if d.root == nil {
		return nil
	}
	return d.root.ResolvePath(path)
}

// -----------------------------------------------------------------------------
// Backend
// -----------------------------------------------------------------------------

type hostBackend struct {
	device *HostPathDevice
}

func (b *hostBackend) Kind() vfs.BackingKind { return vfs.BackingHost }

func (b *hostBackend) CreateEntry(parent *vfs.Entry, name string, attrs types.FileAttributes) (*vfs.Entry, error) {
	path := filepath.Join(parent.HostPath(), name)
	if attrs.IsDirectory() {
		if err := os.Mkdir(path, 0o755); err != nil {
			return nil, types.HostError("create directory "+path, err)
		}
	} else {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return nil, types.HostError("create "+path, err)
		}
		if err := f.Close(); err != nil {
			return nil, types.HostError("close "+path, err)
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, types.HostError("stat "+path, err)
	}
	b.device.log.Debug("created host entry", "path", path, "attrs", fmt.Sprintf("0x%X", uint32(attrs)))
	return vfs.NewEntry(b.device, b, parent, name, entryInfo(info, path)), nil
}

func (b *hostBackend) DeleteEntry(entry *vfs.Entry) error {
	var err error
	if entry.IsDirectory() {
		err = os.RemoveAll(entry.HostPath())
	} else {
		err = os.Remove(entry.HostPath())
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return types.HostError("delete "+entry.HostPath(), err)
	}
	return nil
}

func (b *hostBackend) Open(entry *vfs.Entry, access types.FileAccess) (vfs.File, error) {
	access = access.Normalize()
	if entry.IsDirectory() {
		return &hostFile{entry: entry, access: access}, nil
	}
	flag := os.O_RDONLY
	if access.WantsWrite() {
		if entry.IsReadOnly() {
			return nil, types.StatusAccessDenied
		}
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(entry.HostPath(), flag, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.StatusNoSuchFile
		}
		return nil, types.HostError("open "+entry.HostPath(), err)
	}
	return &hostFile{entry: entry, access: access, f: f}, nil
}

func (b *hostBackend) OpenMapped(entry *vfs.Entry, writable bool) (vfs.Mapping, error) {
	mode := mmfile.ModeRead
	if writable {
		if entry.IsReadOnly() {
			return nil, vfs.ErrReadOnly
		}
		mode = mmfile.ModeReadWrite
	}
	m, err := mmfile.Open(entry.HostPath(), mode)
	if err != nil {
		return nil, types.HostError("map "+entry.HostPath(), err)
	}
	return m, nil
}

func (b *hostBackend) CanMap(*vfs.Entry) bool { return true }

// -----------------------------------------------------------------------------
// File
// -----------------------------------------------------------------------------

// hostFile is an open host file. Directory handles have no host file and
// reject data access.
type hostFile struct {
	entry  *vfs.Entry
	access types.FileAccess
	f      *os.File
	closed bool
}

func (h *hostFile) Entry() *vfs.Entry        { return h.entry }
func (h *hostFile) Access() types.FileAccess { return h.access }

// data returns the host file, or the status for a handle without one.
func (h *hostFile) data() (*os.File, error) {
	if h.closed {
		return nil, os.ErrClosed
	}
	if h.f == nil {
		return nil, types.StatusFileIsADirectory
	}
	return h.f, nil
}

func (h *hostFile) ReadAt(p []byte, off int64) (int, error) {
	f, err := h.data()
	if err != nil {
		return 0, err
	}
	if h.access&types.FileReadData == 0 {
		return 0, types.StatusAccessDenied
	}
	return f.ReadAt(p, off)
}

func (h *hostFile) WriteAt(p []byte, off int64) (int, error) {
	f, err := h.data()
	if err != nil {
		return 0, err
	}
	if !h.access.WantsWrite() {
		return 0, types.StatusAccessDenied
	}
	n, err := f.WriteAt(p, off)
	h.entry.ExtendSize(off + int64(n))
	if err != nil {
		return n, types.HostError("write "+h.entry.HostPath(), err)
	}
	return n, nil
}

func (h *hostFile) SetLength(size int64) error {
	f, err := h.data()
	if err != nil {
		return err
	}
	if !h.access.WantsWrite() {
		return types.StatusAccessDenied
	}
	if err := f.Truncate(size); err != nil {
		return types.HostError("truncate "+h.entry.HostPath(), err)
	}
	h.entry.SetSize(size)
	return nil
}

func (h *hostFile) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.f == nil {
		return nil
	}
	return h.f.Close()
}
