package memory

import "errors"

var (
	// ErrOutOfRange indicates an address or range outside the heap.
	ErrOutOfRange = errors.New("memory: address outside heap")

	// ErrBadSize indicates a zero-sized request.
	ErrBadSize = errors.New("memory: size must be non-zero")

	// ErrNoSpace indicates no free run of sufficient size and alignment exists.
	ErrNoSpace = errors.New("memory: no free range large enough")

	// ErrAlreadyReserved indicates a reservation over pages that are not free.
	ErrAlreadyReserved = errors.New("memory: range already reserved")

	// ErrNotReserved indicates a commit over pages that were never reserved.
	ErrNotReserved = errors.New("memory: range not reserved")

	// ErrNotCommitted indicates a decommit or protect over uncommitted pages.
	ErrNotCommitted = errors.New("memory: range not committed")

	// ErrNotAllocated indicates a release of an address outside any live allocation.
	ErrNotAllocated = errors.New("memory: address not allocated")

	// ErrSpansRegions indicates a protect request crossing allocation boundaries.
	ErrSpansRegions = errors.New("memory: range spans multiple regions")

	// ErrUnmapped indicates a guest address not backed by any heap.
	ErrUnmapped = errors.New("memory: address not backed by any heap")
)
