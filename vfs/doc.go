// Package vfs implements the guest file namespace: devices mounted at path
// prefixes, symbolic links rewriting prefixes, entry trees and the open
// dispositions the kernel's file calls rely on.
//
// Guest paths use backslashes and compare case-insensitively. A path is
// resolved by rewriting it through the symbolic link table (longest
// matching prefix first, at most 32 times), picking the first device whose
// mount path prefixes the result and walking that device's tree with the
// remainder.
//
// The package also extracts device trees to the host, which is how content
// packages are installed:
//
//	var progress atomic.Uint64
//	err := fs.ExtractContentFiles(ctx, device, "/srv/content/00000001", &progress)
package vfs
