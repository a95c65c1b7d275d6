package types

import "fmt"

// FileAccess is the desired-access mask of an open request.
type FileAccess uint32

const (
	FileReadData   FileAccess = 0x00000001
	FileWriteData  FileAccess = 0x00000002
	FileAppendData FileAccess = 0x00000004
	FileExecute    FileAccess = 0x00000020
	GenericAll     FileAccess = 0x10000000
	GenericExecute FileAccess = 0x20000000
	GenericWrite   FileAccess = 0x40000000
	GenericRead    FileAccess = 0x80000000
)

// Normalize expands the generic bits into the concrete read/write bits they
// imply. The generic bits are kept.
func (a FileAccess) Normalize() FileAccess {
	if a&GenericRead != 0 {
		a |= FileReadData
	}
	if a&GenericWrite != 0 {
		a |= FileWriteData
	}
	if a&GenericAll != 0 {
		a |= FileReadData | FileWriteData
	}
	return a
}

// WantsWrite reports whether the mask asks to modify data.
func (a FileAccess) WantsWrite() bool {
	return a&(FileWriteData|FileAppendData) != 0
}

// FileDisposition is the create/open policy of an open request.
type FileDisposition uint32

const (
	DispositionSuperscede  FileDisposition = 0
	DispositionOpen        FileDisposition = 1
	DispositionCreate      FileDisposition = 2
	DispositionOpenIf      FileDisposition = 3
	DispositionOverwrite   FileDisposition = 4
	DispositionOverwriteIf FileDisposition = 5
)

func (d FileDisposition) String() string {
	switch d {
	case DispositionSuperscede:
		return "superscede"
	case DispositionOpen:
		return "open"
	case DispositionCreate:
		return "create"
	case DispositionOpenIf:
		return "open-if"
	case DispositionOverwrite:
		return "overwrite"
	case DispositionOverwriteIf:
		return "overwrite-if"
	default:
		return fmt.Sprintf("disposition(%d)", uint32(d))
	}
}

// FileAction reports what an open request did.
type FileAction uint32

const (
	ActionSuperseded   FileAction = 0
	ActionOpened       FileAction = 1
	ActionCreated      FileAction = 2
	ActionOverwritten  FileAction = 3
	ActionExists       FileAction = 4
	ActionDoesNotExist FileAction = 5
)

func (a FileAction) String() string {
	switch a {
	case ActionSuperseded:
		return "superseded"
	case ActionOpened:
		return "opened"
	case ActionCreated:
		return "created"
	case ActionOverwritten:
		return "overwritten"
	case ActionExists:
		return "exists"
	case ActionDoesNotExist:
		return "does-not-exist"
	default:
		return fmt.Sprintf("action(%d)", uint32(a))
	}
}

// FileAttributes are the NT attribute bits of an entry.
type FileAttributes uint32

const (
	AttributeNone      FileAttributes = 0x00000000
	AttributeReadOnly  FileAttributes = 0x00000001
	AttributeHidden    FileAttributes = 0x00000002
	AttributeSystem    FileAttributes = 0x00000004
	AttributeDirectory FileAttributes = 0x00000010
	AttributeArchive   FileAttributes = 0x00000020
	AttributeDevice    FileAttributes = 0x00000040
	AttributeNormal    FileAttributes = 0x00000080
)

// IsDirectory reports whether the directory bit is set.
func (a FileAttributes) IsDirectory() bool { return a&AttributeDirectory != 0 }
