package vfs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/joshuapare/guestkit/internal/logger"
	"github.com/joshuapare/guestkit/pkg/types"
)

// maxSymlinkHops bounds symbolic link resolution.
const maxSymlinkHops = 32

// benignProbePath is looked up by titles probing for a debug feature; its
// failure is expected and not logged.
const benignProbePath = `ShaderDumpxe:\CompareBackEnds`

// Options configures a FileSystem.
type Options struct {
	// Lock is the critical section guarding the device and symlink tables
	// and the entry trees. Nil allocates a private mutex.
	Lock sync.Locker

	// Logger receives diagnostics. Nil follows the process logger.
	Logger *slog.Logger
}

// Symlink maps a guest path prefix to a target prefix.
type Symlink struct {
	Path   string `json:"path"`
	Target string `json:"target"`
}

// FileSystem is the guest-visible namespace: a list of mounted devices and
// a table of symbolic links.
//
// Path resolution, creation, deletion and opens run under the FileSystem's
// lock. Entry methods called directly bypass it; callers mixing both must
// hold the lock passed in Options.
type FileSystem struct {
	mu  sync.Locker
	log *slog.Logger

	devices  []Device
	symlinks []Symlink
}

// New returns an empty FileSystem.
func New(opts Options) *FileSystem {
	mu := opts.Lock
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &FileSystem{mu: mu, log: logger.For(opts.Logger, "vfs")}
}

// Clear drops every device and symbolic link.
func (fs *FileSystem) Clear() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.devices = nil
	fs.symlinks = nil
}

// -----------------------------------------------------------------------------
// Devices and symbolic links
// -----------------------------------------------------------------------------

// RegisterDevice mounts an initialized device. Devices are matched in
// registration order, so a device with a longer mount prefix must be
// registered before one whose prefix it extends.
func (fs *FileSystem) RegisterDevice(d Device) error {
	if d == nil {
		return fmt.Errorf("vfs: register nil device")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, existing := range fs.devices {
		if strings.EqualFold(existing.MountPath(), d.MountPath()) {
			return fmt.Errorf("%w: %s", ErrDeviceExists, d.MountPath())
		}
	}
	fs.devices = append(fs.devices, d)
	fs.log.Debug("registered device", "mount", d.MountPath(), "name", d.Name())
	return nil
}

// UnregisterDevice unmounts the device at mountPath and reports whether one
// was found.
func (fs *FileSystem) UnregisterDevice(mountPath string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for i, d := range fs.devices {
		if strings.EqualFold(d.MountPath(), mountPath) {
			fs.devices = slices.Delete(fs.devices, i, i+1)
			fs.log.Debug("unregistered device", "mount", d.MountPath())
			return true
		}
	}
	return false
}

// Devices returns the mounted devices in registration order.
func (fs *FileSystem) Devices() []Device {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return slices.Clone(fs.devices)
}

// RegisterSymbolicLink maps path to target, replacing any link registered
// for the same path.
func (fs *FileSystem) RegisterSymbolicLink(path, target string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for i := range fs.symlinks {
		if strings.EqualFold(fs.symlinks[i].Path, path) {
			fs.symlinks[i].Target = target
			fs.log.Debug("replaced symbolic link", "path", path, "target", target)
			return
		}
	}
	fs.symlinks = append(fs.symlinks, Symlink{Path: path, Target: target})
	fs.log.Debug("registered symbolic link", "path", path, "target", target)
}

// UnregisterSymbolicLink removes the link for path, compared
// case-insensitively, and reports whether one existed.
func (fs *FileSystem) UnregisterSymbolicLink(path string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for i, s := range fs.symlinks {
		if strings.EqualFold(s.Path, path) {
			fs.symlinks = slices.Delete(fs.symlinks, i, i+1)
			fs.log.Debug("unregistered symbolic link", "path", s.Path, "target", s.Target)
			return true
		}
	}
	return false
}

// FindSymbolicLink returns the target of the link whose path prefixes path.
func (fs *FileSystem) FindSymbolicLink(path string) (string, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if s, ok := fs.matchSymlink(path); ok {
		return s.Target, true
	}
	return "", false
}

// Symlinks returns the registered links.
func (fs *FileSystem) Symlinks() []Symlink {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return slices.Clone(fs.symlinks)
}

// matchSymlink returns the link with the longest path that prefixes path on
// a segment boundary.
func (fs *FileSystem) matchSymlink(path string) (Symlink, bool) {
	var (
		best  Symlink
		found bool
	)
	for _, s := range fs.symlinks {
		if hasPathPrefixFold(path, s.Path) && (!found || len(s.Path) > len(best.Path)) {
			best, found = s, true
		}
	}
	return best, found
}

// resolveSymlinks rewrites path until no link matches.
func (fs *FileSystem) resolveSymlinks(path string) (string, error) {
	for range maxSymlinkHops {
		s, ok := fs.matchSymlink(path)
		if !ok {
			return path, nil
		}
		path = CanonicalizePath(s.Target + string(separator) + path[len(s.Path):])
	}
	if _, ok := fs.matchSymlink(path); !ok {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSymlinkLoop, path)
}

// findDevice returns the first device whose mount path prefixes path and
// the device-relative remainder.
func (fs *FileSystem) findDevice(path string) (Device, string, bool) {
	for _, d := range fs.devices {
		mount := d.MountPath()
		if hasPathPrefixFold(path, mount) {
			return d, path[len(mount):], true
		}
	}
	return nil, "", false
}

// -----------------------------------------------------------------------------
// Resolution
// -----------------------------------------------------------------------------

// ResolvePath resolves a guest path through the symbolic links and mounted
// devices to an entry.
func (fs *FileSystem) ResolvePath(path string) (*Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.resolvePathLocked(path)
}

func (fs *FileSystem) resolvePathLocked(path string) (*Entry, error) {
	d, rel, err := fs.locateLocked(path)
	if err != nil {
		return nil, err
	}
	e := d.ResolvePath(rel)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return e, nil
}

// locateLocked canonicalizes path, follows symbolic links and picks the
// device.
func (fs *FileSystem) locateLocked(path string) (Device, string, error) {
	resolved, err := fs.resolveSymlinks(CanonicalizePath(path))
	if err != nil {
		fs.log.Error("symbolic link loop", "path", path)
		return nil, "", err
	}
	d, rel, ok := fs.findDevice(resolved)
	if !ok {
		if path != benignProbePath {
			fs.log.Error("resolve path failed: device not found", "path", path)
		}
		return nil, "", fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
	}
	return d, rel, nil
}

// CreatePath creates the entry at path with attrs, creating missing
// intermediate directories. Directories created before a failure are kept.
func (fs *FileSystem) CreatePath(path string, attrs types.FileAttributes) (*Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.createPathLocked(nil, path, attrs)
}

// createPathLocked resolves path once and walks the device tree (or the
// tree below root when given) creating what is missing.
func (fs *FileSystem) createPathLocked(root *Entry, path string, attrs types.FileAttributes) (*Entry, error) {
	cur := root
	rel := path
	if cur == nil {
		d, r, err := fs.locateLocked(path)
		if err != nil {
			return nil, err
		}
		cur, rel = d.Root(), r
	}
	parts := SplitPath(rel)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, seg := range parts[:len(parts)-1] {
		next := cur.GetChild(seg)
		if next == nil {
			var err error
			if next, err = cur.CreateEntry(seg, types.AttributeDirectory); err != nil {
				return nil, fmt.Errorf("vfs: create %s: %w", JoinPath(cur.AbsolutePath(), seg), err)
			}
		}
		cur = next
	}
	e, err := cur.CreateEntry(parts[len(parts)-1], attrs)
	if err != nil {
		return nil, fmt.Errorf("vfs: create %s: %w", path, err)
	}
	return e, nil
}

// DeletePath deletes the entry at path. Device roots cannot be deleted.
func (fs *FileSystem) DeletePath(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, err := fs.resolvePathLocked(path)
	if err != nil {
		return err
	}
	if e.Parent() == nil {
		return ErrRoot
	}
	return e.Parent().Delete(e)
}

// -----------------------------------------------------------------------------
// Open
// -----------------------------------------------------------------------------

// OpenFile opens (and depending on disposition creates, supersedes or
// overwrites) the entry at path, relative to root when root is non-nil.
//
// The returned error is a types.Status on every failure branch decided
// here; failures from the backing store are returned as-is and map to a
// status with types.StatusOf. The action is meaningful on success and on
// the existence failures.
func (fs *FileSystem) OpenFile(root *Entry, path string, disposition types.FileDisposition,
	access types.FileAccess, isDirectory, isNonDirectory bool) (File, types.FileAction, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	access = access.Normalize()

	var parent, entry *Entry
	if base := BasePath(path); base != "" {
		if root == nil {
			parent, _ = fs.resolvePathLocked(base)
		} else {
			parent = root.ResolvePath(base)
		}
		if parent == nil {
			return nil, types.ActionDoesNotExist, types.StatusNoSuchFile
		}
		entry = parent.GetChild(NameFromPath(path))
	} else if root == nil {
		entry, _ = fs.resolvePathLocked(path)
	} else {
		entry = root.GetChild(path)
	}

	if entry != nil {
		if entry.IsDirectory() && isNonDirectory {
			return nil, 0, types.StatusFileIsADirectory
		}
		// Host files removed behind our back drop out of the cache.
		if parent != nil && parent.Kind() == BackingHost && parent.HostPath() != "" {
			if _, err := os.Stat(filepath.Join(parent.HostPath(), entry.Name())); errors.Is(err, os.ErrNotExist) {
				fs.log.Debug("dropping stale host entry", "path", entry.AbsolutePath())
				parent.detach(entry)
				entry = nil
			}
		}
	}

	switch disposition {
	case types.DispositionOpen, types.DispositionOverwrite:
		if entry == nil {
			return nil, types.ActionDoesNotExist, types.StatusNoSuchFile
		}
	case types.DispositionCreate:
		if entry != nil {
			return nil, types.ActionExists, types.StatusObjectNameCollision
		}
	}

	// Titles open read-only files for writing; downgrade instead of failing.
	if access.WantsWrite() && (parent != nil && parent.IsReadOnly() || entry != nil && entry.IsReadOnly()) {
		fs.log.Warn("write access requested on read-only entry, downgrading to read", "path", path, "access", access)
		access = types.GenericRead | types.FileReadData
	}

	var action types.FileAction
	if entry == nil {
		action = types.ActionCreated
	} else {
		switch disposition {
		case types.DispositionSuperscede:
			if err := entry.Remove(); err != nil {
				return nil, 0, types.StatusAccessDenied
			}
			entry = nil
			action = types.ActionSuperseded
		case types.DispositionOpen, types.DispositionOpenIf:
			action = types.ActionOpened
		case types.DispositionOverwrite, types.DispositionOverwriteIf:
			if err := entry.Remove(); err != nil {
				return nil, 0, types.StatusAccessDenied
			}
			entry = nil
			action = types.ActionOverwritten
		default:
			return nil, 0, types.StatusInvalidParameter
		}
	}

	if entry == nil {
		attrs := types.AttributeNormal
		if isDirectory {
			attrs = types.AttributeDirectory
		}
		var err error
		if entry, err = fs.createPathLocked(root, path, attrs); err != nil {
			fs.log.Debug("open: create failed", "path", path, "err", err)
			return nil, action, types.StatusAccessDenied
		}
	}

	f, err := entry.Open(access)
	if err != nil {
		return nil, types.ActionDoesNotExist, err
	}
	return f, action, nil
}
