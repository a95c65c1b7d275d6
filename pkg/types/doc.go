// Package types holds the guest ABI vocabulary shared by the memory manager,
// the virtual file system and the kernel shim: NT status codes, memory
// allocation and protection flags, and file access, disposition, action and
// attribute enums.
//
// Values match the console's definitions so they can be handed to guest code
// unchanged.
package types
