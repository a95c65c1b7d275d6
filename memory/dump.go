package memory

import (
	"fmt"
	"io"

	"github.com/joshuapare/guestkit/pkg/types"
)

// Dump writes the heap's region map to w, one line per run of pages with
// identical allocation, state and protection.
func (h *Heap) Dump(w io.Writer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.pageStatsLocked()
	if _, err := fmt.Fprintf(w, "%s %s base=0x%08X size=0x%08X page=0x%X pages=%d unreserved=%d committed=%d\n",
		h.name, h.heapType, h.base, h.size, h.pageSize, st.Total, st.Unreserved, st.Committed); err != nil {
		return err
	}

	n := uint32(len(h.pages))
	for p := uint32(0); p < n; {
		e := h.pages[p]
		q := p + 1
		for q < n && h.pages[q] == e {
			q++
		}
		if _, err := fmt.Fprintf(w, "  0x%08X-0x%08X %5d %-9s %s\n",
			h.pageAddress(p), h.pageAddress(p)+(q-p)*h.pageSize-1, q-p, stateName(e.state), protectName(e.currentProtect)); err != nil {
			return err
		}
		p = q
	}
	return nil
}

func stateName(state uint32) string {
	switch {
	case state&types.AllocationCommit != 0:
		return "committed"
	case state&types.AllocationReserve != 0:
		return "reserved"
	default:
		return "free"
	}
}

func protectName(protect uint32) string {
	s := types.AccessFromProtect(protect).String()
	if protect&types.ProtectNoCache != 0 {
		s += "+nocache"
	}
	if protect&types.ProtectWriteCombine != 0 {
		s += "+writecombine"
	}
	return s
}
