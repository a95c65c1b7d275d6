package main

import (
	"path/filepath"
	"strings"

	"github.com/joshuapare/guestkit/emulator"
	"github.com/joshuapare/guestkit/vfs"
	"github.com/joshuapare/guestkit/vfs/devices"
)

// sourceMount is where the command line mounts its source; "d:" links to it.
const sourceMount = `\Device\Harddisk0\Partition1`

// mountSource mounts a zip content package or a host directory read-only.
func mountSource(inst *emulator.Instance, path string, opts devices.ContainerOptions) (vfs.Device, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return inst.MountContainer(sourceMount, path, opts, "d:")
	}
	return inst.MountHost(sourceMount, path, true, "d:")
}
