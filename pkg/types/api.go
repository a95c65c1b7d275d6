package types

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Status Codes (stable values the guest kernel branches on)
// -----------------------------------------------------------------------------

// Status is an NT status code as seen by guest code.
//
// Status implements error so file system and kernel paths can return the
// exact code chosen for a failure branch and callers can recover it with
// errors.As or StatusOf.
type Status uint32

const (
	StatusSuccess               Status = 0x00000000
	StatusUnsuccessful          Status = 0xC0000001
	StatusNotImplemented        Status = 0xC0000002
	StatusInvalidHandle         Status = 0xC0000008
	StatusInvalidParameter      Status = 0xC000000D
	StatusNoSuchFile            Status = 0xC000000F
	StatusEndOfFile             Status = 0xC0000011
	StatusNoMemory              Status = 0xC0000017
	StatusAlreadyCommitted      Status = 0xC0000021
	StatusAccessDenied          Status = 0xC0000022
	StatusBufferTooSmall        Status = 0xC0000023
	StatusObjectTypeMismatch    Status = 0xC0000024
	StatusObjectNameInvalid     Status = 0xC0000033
	StatusObjectNameNotFound    Status = 0xC0000034
	StatusObjectNameCollision   Status = 0xC0000035
	StatusObjectPathNotFound    Status = 0xC000003A
	StatusInvalidPageProtection Status = 0xC0000045
	StatusMemoryNotAllocated    Status = 0xC00000A0
	StatusFileIsADirectory      Status = 0xC00000BA
	StatusNotADirectory         Status = 0xC0000103
	StatusCannotDelete          Status = 0xC0000121
)

var statusNames = map[Status]string{
	StatusSuccess:               "STATUS_SUCCESS",
	StatusUnsuccessful:          "STATUS_UNSUCCESSFUL",
	StatusNotImplemented:        "STATUS_NOT_IMPLEMENTED",
	StatusInvalidHandle:         "STATUS_INVALID_HANDLE",
	StatusInvalidParameter:      "STATUS_INVALID_PARAMETER",
	StatusNoSuchFile:            "STATUS_NO_SUCH_FILE",
	StatusEndOfFile:             "STATUS_END_OF_FILE",
	StatusNoMemory:              "STATUS_NO_MEMORY",
	StatusAlreadyCommitted:      "STATUS_ALREADY_COMMITTED",
	StatusAccessDenied:          "STATUS_ACCESS_DENIED",
	StatusBufferTooSmall:        "STATUS_BUFFER_TOO_SMALL",
	StatusObjectTypeMismatch:    "STATUS_OBJECT_TYPE_MISMATCH",
	StatusObjectNameInvalid:     "STATUS_OBJECT_NAME_INVALID",
	StatusObjectNameNotFound:    "STATUS_OBJECT_NAME_NOT_FOUND",
	StatusObjectNameCollision:   "STATUS_OBJECT_NAME_COLLISION",
	StatusObjectPathNotFound:    "STATUS_OBJECT_PATH_NOT_FOUND",
	StatusInvalidPageProtection: "STATUS_INVALID_PAGE_PROTECTION",
	StatusMemoryNotAllocated:    "STATUS_MEMORY_NOT_ALLOCATED",
	StatusFileIsADirectory:      "STATUS_FILE_IS_A_DIRECTORY",
	StatusNotADirectory:         "STATUS_NOT_A_DIRECTORY",
	StatusCannotDelete:          "STATUS_CANNOT_DELETE",
}

// String implements the Stringer interface for Status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_0x%08X", uint32(s))
}

func (s Status) Error() string { return s.String() }

// Succeeded reports whether s is a success or informational code.
func (s Status) Succeeded() bool { return s&0x80000000 == 0 }

// Failed reports whether s is a warning or error code.
func (s Status) Failed() bool { return !s.Succeeded() }

// StatusOf maps err to the status a guest would observe.
//
// nil maps to StatusSuccess. An error that wraps a Status yields that
// status; anything else is reported as StatusUnsuccessful.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var st Status
	if errors.As(err, &st) {
		return st
	}
	return StatusUnsuccessful
}

// -----------------------------------------------------------------------------
// Typed Errors (stable categories for programmatic handling)
// -----------------------------------------------------------------------------

// ErrKind classifies errors so callers can branch on intent rather than text.
type ErrKind int

const (
	ErrKindParameter ErrKind = iota // null/zero arguments, invalid flag combinations
	ErrKindState                    // conflicts with current state (existing file, committed memory)
	ErrKindResource                 // no free region of sufficient size/alignment
	ErrKindHost                     // host file system failures
)

// Error is a typed error carrying the guest status and an optional cause.
type Error struct {
	Kind   ErrKind
	Status Status
	Msg    string
	Err    error // optional underlying cause
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

// Unwrap exposes both the status and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Status}
	}
	return []error{e.Status, e.Err}
}

// HostError wraps a host file system failure.
func HostError(msg string, err error) error {
	return &Error{Kind: ErrKindHost, Status: StatusUnsuccessful, Msg: msg, Err: err}
}

// IsHostError reports whether err originated in the host file system.
func IsHostError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == ErrKindHost
}
