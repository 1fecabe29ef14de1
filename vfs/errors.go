package vfs

import (
	"errors"
	"io/fs"
	"syscall"

	"github.com/brettbedarf/memfs/filesystem"
)

// kindErrno maps engine error kinds onto the errno a Unix host reports for
// the same condition
var kindErrno = map[filesystem.ErrorKind]syscall.Errno{
	filesystem.PathNotFound:      syscall.ENOENT,
	filesystem.PathAlreadyExists: syscall.EEXIST,
	filesystem.NotADirectory:     syscall.ENOTDIR,
	filesystem.NotEmpty:          syscall.ENOTEMPTY,
	filesystem.CyclicLink:        syscall.ELOOP,
	filesystem.NotPermitted:      syscall.EBADF,
	filesystem.InvalidPath:       syscall.EINVAL,
	filesystem.InvalidArgument:   syscall.EINVAL,
	filesystem.HandleClosed:      syscall.EBADF,
	filesystem.FileTooLarge:      syscall.EFBIG,
}

// Errno returns the errno for an engine error. Errors that already carry an
// errno are unwrapped; anything else is EIO.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	var fsErr *filesystem.Error
	if errors.As(err, &fsErr) {
		if e, ok := kindErrno[fsErr.Kind]; ok {
			return e
		}
	}
	return syscall.EIO
}

// wrap converts an engine failure into the *fs.PathError shape os callers
// expect. nil stays nil.
func wrap(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return err
	}
	return &fs.PathError{Op: op, Path: name, Err: Errno(err)}
}

func pathErr(op, name string, errno syscall.Errno) error {
	return &fs.PathError{Op: op, Path: name, Err: errno}
}
