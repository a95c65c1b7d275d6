package vfs

import "errors"

var (
	// ErrNotFound indicates a path with no matching entry.
	ErrNotFound = errors.New("vfs: entry not found")

	// ErrDeviceNotFound indicates a path outside every mounted device.
	ErrDeviceNotFound = errors.New("vfs: no device for path")

	// ErrDeviceExists indicates a second device for an already mounted path.
	ErrDeviceExists = errors.New("vfs: device already mounted")

	// ErrSymlinkLoop indicates a symbolic link chain that does not terminate.
	ErrSymlinkLoop = errors.New("vfs: too many levels of symbolic links")

	// ErrExists indicates a create over an existing entry.
	ErrExists = errors.New("vfs: entry already exists")

	// ErrReadOnly indicates a mutation of a read-only entry or device.
	ErrReadOnly = errors.New("vfs: read-only")

	// ErrRoot indicates an attempt to delete a device root.
	ErrRoot = errors.New("vfs: cannot delete device root")

	// ErrNotMappable indicates an entry that does not support mapped access.
	ErrNotMappable = errors.New("vfs: entry cannot be mapped")

	// ErrInvalidPath indicates an empty or malformed path.
	ErrInvalidPath = errors.New("vfs: invalid path")
)
