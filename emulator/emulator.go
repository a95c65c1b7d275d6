// Package emulator wires the guest subsystems of one emulated console into
// an explicitly constructed Instance.
package emulator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/joshuapare/guestkit/internal/logger"
	"github.com/joshuapare/guestkit/kernel/xboxkrnl"
	"github.com/joshuapare/guestkit/memory"
	"github.com/joshuapare/guestkit/vfs"
	"github.com/joshuapare/guestkit/vfs/devices"
)

// Config configures an Instance. The zero value is usable.
type Config struct {
	// Kernel configures the memory syscall shim. Its Logger is ignored in
	// favour of Config.Logger.
	Kernel xboxkrnl.Options

	// Logger receives diagnostics from every subsystem. Nil follows the process logger.
	Logger *slog.Logger
}

// Instance owns the guest memory, the file system and the kernel shim of
// one emulated console. Memory and file system share one critical section.
type Instance struct {
	mu     sync.Mutex
	cfgLog *slog.Logger
	log    *slog.Logger
	mem    *memory.Manager
	fs     *vfs.FileSystem
	kernel *xboxkrnl.Memory

	closers []io.Closer
}

// New reserves guest memory and creates an empty file system.
func New(cfg Config) (*Instance, error) {
	inst := &Instance{cfgLog: cfg.Logger, log: logger.For(cfg.Logger, "emulator")}

	mem, err := memory.New(memory.Options{Lock: &inst.mu, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("emulator: %w", err)
	}
	inst.mem = mem
	inst.fs = vfs.New(vfs.Options{Lock: &inst.mu, Logger: cfg.Logger})

	kopts := cfg.Kernel
	kopts.Logger = cfg.Logger
	inst.kernel = xboxkrnl.NewMemory(mem, kopts)

	inst.log.Debug("instance created", "heaps", len(mem.Heaps()))
	return inst, nil
}

// Memory returns the guest memory manager.
func (i *Instance) Memory() *memory.Manager { return i.mem }

// FileSystem returns the guest file namespace.
func (i *Instance) FileSystem() *vfs.FileSystem { return i.fs }

// Kernel returns the memory syscall shim.
func (i *Instance) Kernel() *xboxkrnl.Memory { return i.kernel }

// MountHost mounts a host directory at mountPath and links each of links
// to it, e.g. "game:" or "d:".
func (i *Instance) MountHost(mountPath, hostPath string, readOnly bool, links ...string) (*devices.HostPathDevice, error) {
	d := devices.NewHostPathDevice(mountPath, hostPath, readOnly)
	d.SetLogger(i.cfgLog)
	if err := i.mount(d, links); err != nil {
		return nil, err
	}
	return d, nil
}

// MountContainer mounts a zip-packaged content package at mountPath. The
// device is closed with the Instance.
func (i *Instance) MountContainer(mountPath, zipPath string, opts devices.ContainerOptions, links ...string) (*devices.ContainerDevice, error) {
	if opts.Logger == nil {
		opts.Logger = i.cfgLog
	}
	d := devices.NewContainerDevice(mountPath, zipPath, opts)
	if err := i.mount(d, links); err != nil {
		_ = d.Close()
		return nil, err
	}
	i.closers = append(i.closers, d)
	return d, nil
}

func (i *Instance) mount(d vfs.Device, links []string) error {
	if err := d.Initialize(); err != nil {
		return fmt.Errorf("emulator: initialize %s: %w", d.MountPath(), err)
	}
	if err := i.fs.RegisterDevice(d); err != nil {
		return err
	}
	for _, l := range links {
		i.fs.RegisterSymbolicLink(l, d.MountPath())
	}
	return nil
}

// Close unmounts every device and releases guest memory.
func (i *Instance) Close() error {
	i.fs.Clear()
	var errs []error
	for _, c := range i.closers {
		errs = append(errs, c.Close())
	}
	i.closers = nil
	errs = append(errs, i.mem.Close())
	return errors.Join(errs...)
}
