package devices

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/joshuapare/guestkit/internal/logger"
	"github.com/joshuapare/guestkit/pkg/types"
	"github.com/joshuapare/guestkit/vfs"
	"github.com/joshuapare/guestkit/vfs/xcontent"
)

// ContainerOptions overrides what a ContainerDevice reads from the
// package header.
type ContainerOptions struct {
	// Header replaces the content descriptor derived from the package
	// header when non-nil.
	Header *xcontent.AggregateData

	// Licenses replace the package's license table when non-nil; at most
	// xcontent.MaxLicenses are considered.
	Licenses []xcontent.License

	// Logger receives diagnostics. Nil follows the process logger.
	Logger *slog.Logger
}

// ContainerDevice is a read-only device over a zip-packaged content
// package. The package header travels as the xcontent.ContainerHeaderMember
// member; packages without one mount with an empty header.
type ContainerDevice struct {
	mountPath string
	zipPath   string
	opts      ContainerOptions
	log       *slog.Logger
	header    xcontent.ContainerHeader
	hasHeader bool

	mu      sync.Mutex // guards zr reads
	zr      *zip.ReadCloser
	backend *containerBackend
	root    *vfs.Entry
}

// NewContainerDevice returns a device serving the archive at zipPath. Call
// Initialize before registering it and Close when it is unregistered.
func NewContainerDevice(mountPath, zipPath string, opts ContainerOptions) *ContainerDevice {
	d := &ContainerDevice{
		mountPath: mountPath,
		zipPath:   zipPath,
		opts:      opts,
		log:       logger.For(opts.Logger, "container-device").With("mount", mountPath),
	}
	d.backend = &containerBackend{device: d}
	return d
}

// Initialize opens the archive and builds the entry tree. Directories only
// implied by member names are created as well.
func (d *ContainerDevice) Initialize() error {
	zr, err := zip.OpenReader(d.zipPath)
	if err != nil {
		return types.HostError("open "+d.zipPath, err)
	}
	d.zr = zr
	if err := d.readHeader(); err != nil {
		zr.Close()
		d.zr = nil
		return err
	}
	d.root = vfs.NewEntry(d, d.backend, nil, "", vfs.EntryInfo{Attributes: types.AttributeDirectory | types.AttributeReadOnly})

	for _, zf := range zr.File {
		name := strings.Trim(zf.Name, "/")
		if name == "" || strings.EqualFold(name, xcontent.ContainerHeaderMember) {
			continue
		}
		segs := strings.Split(name, "/")
		dir := d.root
		for _, seg := range segs[:len(segs)-1] {
			dir = d.dirChild(dir, seg)
		}
		last := segs[len(segs)-1]
		if zf.FileInfo().IsDir() {
			d.dirChild(dir, last)
			continue
		}
		if dir.GetChild(last) != nil {
			d.log.Warn("duplicate archive member", "name", zf.Name)
			continue
		}
		dir.AddChild(vfs.NewEntry(d, d.backend, dir, last, vfs.EntryInfo{
			Attributes:     types.AttributeNormal | types.AttributeReadOnly,
			Size:           int64(zf.UncompressedSize64),
			AllocationSize: int64(zf.UncompressedSize64),
			CreateTime:     zf.Modified,
			AccessTime:     zf.Modified,
			WriteTime:      zf.Modified,
		}))
		d.backend.files = append(d.backend.files, containerMember{path: path.Clean(name), zf: zf})
	}
	d.log.Debug("container device initialized", "archive", d.zipPath, "members", len(zr.File))
	return nil
}

// readHeader loads the package header member, if present.
func (d *ContainerDevice) readHeader() error {
	for _, zf := range d.zr.File {
		if !strings.EqualFold(strings.Trim(zf.Name, "/"), xcontent.ContainerHeaderMember) {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("devices: open package header: %w", err)
		}
		h, err := xcontent.ReadContainerHeader(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("devices: %s: %w", d.zipPath, err)
		}
		d.header, d.hasHeader = h, true
		d.log.Debug("package header", "signature", xcontent.SignatureName(h.Signature),
			"title_id", fmt.Sprintf("%08X", h.TitleID), "content_type", h.ContentType)
		return nil
	}
	d.log.Debug("package has no header member", "archive", d.zipPath)
	return nil
}

// dirChild returns the directory child named name, creating it when
// missing.
func (d *ContainerDevice) dirChild(parent *vfs.Entry, name string) *vfs.Entry {
	if c := parent.GetChild(name); c != nil {
		return c
	}
	c := vfs.NewEntry(d, d.backend, parent, name, vfs.EntryInfo{Attributes: types.AttributeDirectory | types.AttributeReadOnly})
	parent.AddChild(c)
	return c
}

// Close releases the archive.
func (d *ContainerDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.zr == nil {
		return nil
	}
	err := d.zr.Close()
	d.zr = nil
	return err
}

// MountPath returns the guest path the device is mounted at.
func (d *ContainerDevice) MountPath() string { return d.mountPath }

// Name identifies the device by its archive file name.
func (d *ContainerDevice) Name() string { return "container:" + path.Base(strings.ReplaceAll(d.zipPath, `\`, "/")) }

// IsReadOnly is always true; packages are never modified.
func (d *ContainerDevice) IsReadOnly() bool { return true }

// Root returns the root directory entry, nil before Initialize.
func (d *ContainerDevice) Root() *vfs.Entry { return d.root }

// Geometry reports the archive size in 4 KiB allocation units, all in use.
func (d *ContainerDevice) Geometry() vfs.Geometry {
	var total uint64
	if d.root != nil {
		queue := []*vfs.Entry{d.root}
		for len(queue) > 0 {
			e := queue[0]
			queue = queue[1:]
			total += uint64(e.Size())
			queue = append(queue, e.Children()...)
		}
	}
	const unit = 8 * 0x200
	return vfs.Geometry{
		TotalAllocationUnits:     (total + unit - 1) / unit,
		AvailableAllocationUnits: 0,
		SectorsPerAllocationUnit: 8,
		BytesPerSector:           0x200,
	}
}

func (d *ContainerDevice) ResolvePath(p string) *vfs.Entry {
	if d.root == nil {
		return nil
	}
	return d.root.ResolvePath(p)
}

// Header returns the package header read at Initialize and whether the
// package carried one.
func (d *ContainerDevice) Header() (xcontent.ContainerHeader, bool) { return d.header, d.hasHeader }

// TitleID returns the title the package belongs to.
func (d *ContainerDevice) TitleID() uint32 { return d.ContentHeader().TitleID }

// XUID returns the profile the package belongs to, zero for shared content.
func (d *ContainerDevice) XUID() uint64 { return d.ContentHeader().XUID }

// ContentType returns the package's content type.
func (d *ContainerDevice) ContentType() xcontent.ContentType { return d.ContentHeader().ContentType }

// ContentHeader returns the package's content descriptor on the hard
// drive, or the Header override.
func (d *ContainerDevice) ContentHeader() xcontent.AggregateData {
	if d.opts.Header != nil {
		return *d.opts.Header
	}
	return d.header.AggregateData(1)
}

// LicenseMask returns the OR of the bits of every active license.
func (d *ContainerDevice) LicenseMask() uint32 {
	licenses := d.header.Licenses[:]
	if d.opts.Licenses != nil {
		licenses = d.opts.Licenses
	}
	if len(licenses) > xcontent.MaxLicenses {
		licenses = licenses[:xcontent.MaxLicenses]
	}
	return xcontent.LicenseMask(licenses)
}

// -----------------------------------------------------------------------------
// Backend
// -----------------------------------------------------------------------------

type containerMember struct {
	path string
	zf   *zip.File
}

type containerBackend struct {
	device *ContainerDevice
	files  []containerMember
}

func (b *containerBackend) Kind() vfs.BackingKind { return vfs.BackingContainer }

func (b *containerBackend) CreateEntry(*vfs.Entry, string, types.FileAttributes) (*vfs.Entry, error) {
	return nil, vfs.ErrReadOnly
}

func (b *containerBackend) DeleteEntry(*vfs.Entry) error { return vfs.ErrReadOnly }

func (b *containerBackend) member(entry *vfs.Entry) *zip.File {
	want := strings.ReplaceAll(entry.Path(), `\`, "/")
	for _, m := range b.files {
		if strings.EqualFold(m.path, want) {
			return m.zf
		}
	}
	return nil
}

// Open decompresses the member into memory; archive members do not support
// random access.
func (b *containerBackend) Open(entry *vfs.Entry, access types.FileAccess) (vfs.File, error) {
	access = access.Normalize()
	if access.WantsWrite() {
		return nil, types.StatusAccessDenied
	}
	if entry.IsDirectory() {
		return &containerFile{entry: entry, access: access, r: bytes.NewReader(nil)}, nil
	}
	zf := b.member(entry)
	if zf == nil {
		return nil, types.StatusNoSuchFile
	}

	b.device.mu.Lock()
	defer b.device.mu.Unlock()
	if b.device.zr == nil {
		return nil, fmt.Errorf("devices: %s: archive closed", b.device.zipPath)
	}
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("devices: open member %s: %w", zf.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("devices: read member %s: %w", zf.Name, err)
	}
	return &containerFile{entry: entry, access: access, r: bytes.NewReader(data)}, nil
}

func (b *containerBackend) OpenMapped(*vfs.Entry, bool) (vfs.Mapping, error) {
	return nil, vfs.ErrNotMappable
}

func (b *containerBackend) CanMap(*vfs.Entry) bool { return false }

type containerFile struct {
	entry  *vfs.Entry
	access types.FileAccess
	r      *bytes.Reader
}

func (f *containerFile) Entry() *vfs.Entry        { return f.entry }
func (f *containerFile) Access() types.FileAccess { return f.access }

func (f *containerFile) ReadAt(p []byte, off int64) (int, error) {
	if f.entry.IsDirectory() {
		return 0, types.StatusFileIsADirectory
	}
	return f.r.ReadAt(p, off)
}

func (f *containerFile) WriteAt([]byte, int64) (int, error) { return 0, types.StatusAccessDenied }
func (f *containerFile) SetLength(int64) error              { return types.StatusAccessDenied }
func (f *containerFile) Close() error                       { return nil }
