package filesystem

import (
	"errors"
	"fmt"
)

// ErrorKind is the category of an engine failure. Adapters map kinds onto
// their host's error signals (errno values, status codes, ...).
type ErrorKind int

const (
	// PathNotFound: a path segment or the final component does not exist,
	// or a link's destination has been removed
	PathNotFound ErrorKind = iota + 1
	// PathAlreadyExists: a create or move targeted an occupied path
	PathAlreadyExists
	// NotADirectory: an intermediate segment, or an operation requiring a
	// directory, resolved to a non-directory node
	NotADirectory
	// NotEmpty: removal of a non-empty directory was refused by policy
	NotEmpty
	// CyclicLink: link resolution revisited an already visited node
	CyclicLink
	// NotPermitted: a handle was used against its open mode
	NotPermitted
	// InvalidPath: the path is malformed or the operation is illegal for it
	// (relative path, moving the root, moving a directory into itself)
	InvalidPath
	// InvalidArgument: a non-path argument is out of range
	InvalidArgument
	// HandleClosed: the handle was used after Close
	HandleClosed
	// FileTooLarge: a write or truncate would grow a file past MaxFileSize
	FileTooLarge
)

// Sentinels returned by [Error.Unwrap] so callers can use errors.Is
var (
	ErrNotFound     = errors.New("no such file or directory")
	ErrExist        = errors.New("file exists")
	ErrNotDir       = errors.New("not a directory")
	ErrNotEmpty     = errors.New("directory not empty")
	ErrCyclicLink   = errors.New("too many levels of symbolic links")
	ErrNotPermitted = errors.New("operation not permitted")
	ErrInvalidPath  = errors.New("invalid path")
	ErrInvalidArg   = errors.New("invalid argument")
	ErrClosed       = errors.New("file already closed")
	ErrTooLarge     = errors.New("file too large")
)

var kindSentinels = map[ErrorKind]error{
	PathNotFound:      ErrNotFound,
	PathAlreadyExists: ErrExist,
	NotADirectory:     ErrNotDir,
	NotEmpty:          ErrNotEmpty,
	CyclicLink:        ErrCyclicLink,
	NotPermitted:      ErrNotPermitted,
	InvalidPath:       ErrInvalidPath,
	InvalidArgument:   ErrInvalidArg,
	HandleClosed:      ErrClosed,
	FileTooLarge:      ErrTooLarge,
}

func (k ErrorKind) String() string {
	switch k {
	case PathNotFound:
		return "PathNotFound"
	case PathAlreadyExists:
		return "PathAlreadyExists"
	case NotADirectory:
		return "NotADirectory"
	case NotEmpty:
		return "NotEmpty"
	case CyclicLink:
		return "CyclicLink"
	case NotPermitted:
		return "NotPermitted"
	case InvalidPath:
		return "InvalidPath"
	case InvalidArgument:
		return "InvalidArgument"
	case HandleClosed:
		return "HandleClosed"
	case FileTooLarge:
		return "FileTooLarge"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the structured failure returned by every engine operation.
// It carries no user facing formatting beyond Error(); adapters translate
// Kind into their own signals.
type Error struct {
	Op    string    // Operation attempted, e.g. "move"
	Path  string    // Path being resolved when the failure occurred
	Kind  ErrorKind // Failure category
	Found Kind      // Kind of the node that caused the failure; KindNone if none
}

func newError(op, path string, kind ErrorKind, found Kind) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Found: found}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Unwrap())
	if e.Found != KindNone {
		msg += fmt.Sprintf(" (found %s)", e.Found)
	}
	return msg
}

// Unwrap returns the sentinel for e.Kind
func (e *Error) Unwrap() error {
	if s, ok := kindSentinels[e.Kind]; ok {
		return s
	}
	return errors.New(e.Kind.String())
}

// IsKind reports whether err is, or wraps, an engine [Error] of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var fsErr *Error
	if errors.As(err, &fsErr) {
		return fsErr.Kind == kind
	}
	return false
}
