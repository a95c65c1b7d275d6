package memory

// Arena layout
//
// The guest address space is backed by one contiguous byte region:
//
//	[0x00000000, 0xA0000000)  non-physical heaps, offset == guest address
//	[0xA0000000, 0xC0000000)  512 MiB physical memory shared by the
//	                          0xA0000000, 0xC0000000 and 0xE0000000 windows
//
// Translation is always validated against the owning heap, so an address
// outside every heap never reaches the byte slice.
const (
	virtualArenaSize   uint64 = 0xA0000000
	physicalArenaBase  uint64 = virtualArenaSize
	physicalMemorySize uint64 = 0x20000000
	arenaSize          uint64 = physicalArenaBase + physicalMemorySize
)

// arena owns the host memory behind the guest address space.
type arena struct {
	data  []byte
	close func() error
}

// slice returns the arena bytes [off, off+n).
func (a *arena) slice(off, n uint64) []byte {
	return a.data[off : off+n : off+n]
}

func (a *arena) release() error {
	if a.close == nil {
		return nil
	}
	err := a.close()
	a.close = nil
	a.data = nil
	return err
}
