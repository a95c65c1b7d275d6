// Package devices provides the concrete vfs devices: HostPathDevice mounts
// a host directory and ContainerDevice serves a zip-packaged content
// package read-only.
//
//	d := devices.NewHostPathDevice(`\Device\Harddisk0\Partition1`, "/srv/hdd", false)
//	if err := d.Initialize(); err != nil {
//		return err
//	}
//	if err := fs.RegisterDevice(d); err != nil {
//		return err
//	}
package devices
