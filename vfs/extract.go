package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joshuapare/guestkit/pkg/types"
	"github.com/joshuapare/guestkit/vfs/xcontent"
)

// extractChunk is the copy unit for both the mapped and buffered paths.
const extractChunk = 4 << 20

// extractItem is the state of one entry captured under the file system
// lock. The copy itself runs without the lock.
type extractItem struct {
	entry  *Entry
	rel    string
	isDir  bool
	size   int64
	canMap bool
}

// snapshot captures entry and, for directories, its children.
func (fs *FileSystem) snapshot(entry *Entry, toRoot bool) (extractItem, []*Entry) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	item := extractItem{
		entry:  entry,
		rel:    hostRelative(entry, toRoot),
		isDir:  entry.IsDirectory(),
		size:   entry.Size(),
		canMap: entry.CanMap(),
	}
	var children []*Entry
	if item.isDir {
		children = entry.Children()
	}
	return item, children
}

// ExtractContentFile copies entry to the host below dest. The host path is
// dest joined with the entry's device-relative path, or with its name alone
// when toRoot is set. Directories are created rather than copied. Each
// copied chunk is added to progress when it is non-nil.
//
// Failures on the host side are wrapped with types.HostError so callers can
// tell them from guest-side read failures.
func (fs *FileSystem) ExtractContentFile(entry *Entry, dest string, progress *atomic.Uint64, toRoot bool) error {
	item, _ := fs.snapshot(entry, toRoot)
	return extractOne(item, dest, progress)
}

func extractOne(item extractItem, dest string, progress *atomic.Uint64) error {
	target := filepath.Join(dest, item.rel)

	if item.isDir {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return types.HostError("create directory "+target, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return types.HostError("create directory "+filepath.Dir(target), err)
	}

	out, err := os.Create(target)
	if err != nil {
		return types.HostError("create "+target, err)
	}

	if item.canMap {
		err = extractMapped(item.entry, out, progress)
	} else {
		err = extractBuffered(item.entry, item.size, out, progress)
	}
	if cerr := out.Close(); cerr != nil && err == nil {
		err = types.HostError("close "+target, cerr)
	}
	return err
}

func hostRelative(entry *Entry, toRoot bool) string {
	if toRoot {
		return entry.Name()
	}
	return filepath.FromSlash(strings.ReplaceAll(entry.Path(), `\`, "/"))
}

func extractMapped(entry *Entry, out *os.File, progress *atomic.Uint64) error {
	m, err := entry.OpenMapped(false)
	if err != nil {
		return fmt.Errorf("vfs: map %s: %w", entry.AbsolutePath(), err)
	}
	defer m.Close()

	data := m.Bytes()
	for off := 0; off < len(data); {
		n := min(len(data)-off, extractChunk)
		if _, err := out.Write(data[off : off+n]); err != nil {
			return types.HostError("write "+out.Name(), err)
		}
		off += n
		if progress != nil {
			progress.Add(uint64(n))
		}
	}
	return nil
}

func extractBuffered(entry *Entry, size int64, out *os.File, progress *atomic.Uint64) error {
	f, err := entry.Open(types.FileReadData)
	if err != nil {
		return fmt.Errorf("vfs: open %s: %w", entry.AbsolutePath(), err)
	}
	defer f.Close()

	buf := make([]byte, min(size, extractChunk))
	var off int64
	for off < size {
		n, rerr := f.ReadAt(buf[:min(size-off, int64(len(buf)))], off)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return types.HostError("write "+out.Name(), err)
			}
			off += int64(n)
			if progress != nil {
				progress.Add(uint64(n))
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("vfs: read %s at %d: %w", entry.AbsolutePath(), off, rerr)
		}
	}
	return nil
}

// ExtractContentFiles copies every entry of device below dest, walking the
// tree breadth-first from the root. Each directory is listed under the file
// system lock; data is copied outside it. Host failures skip the entry (and
// its subtree) and are returned joined once the walk completes. Any other
// failure or a cancelled ctx stops the walk.
func (fs *FileSystem) ExtractContentFiles(ctx context.Context, device Device, dest string, progress *atomic.Uint64) error {
	fs.mu.Lock()
	queue := device.Root().Children()
	fs.mu.Unlock()

	var hostErrs []error
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, children := fs.snapshot(queue[0], false)
		queue = queue[1:]

		if err := extractOne(item, dest, progress); err != nil {
			if !types.IsHostError(err) {
				return err
			}
			hostErrs = append(hostErrs, err)
			continue
		}
		queue = append(queue, children...)
	}
	return errors.Join(hostErrs...)
}

// ContentSource is a device carrying a content package header.
type ContentSource interface {
	ContentHeader() xcontent.AggregateData
	LicenseMask() uint32
}

// ExtractContentHeader writes the package header of source next to dest as
// "<dest>.header". The stored file name is dest's base name, cut to the
// header's fixed field. An unencodable header is reported as is; only
// file system failures are host errors.
func ExtractContentHeader(source ContentSource, dest string) error {
	data := source.ContentHeader()
	data.SetFileName(filepath.Base(dest))
	buf, err := xcontent.EncodeHeader(data, source.LicenseMask())
	if err != nil {
		return fmt.Errorf("vfs: encode content header: %w", err)
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.HostError("create directory "+dir, err)
	}
	path := filepath.Join(dir, filepath.Base(dest)+".header")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return types.HostError("write "+path, err)
	}
	return nil
}
