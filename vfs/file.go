package vfs

import (
	"io"
	"io/fs"
	"syscall"

	"github.com/brettbedarf/memfs/filesystem"
)

// File is an open file or directory. It satisfies fs.File and
// fs.ReadDirFile; reads at the end return io.EOF as os.File does.
type File struct {
	name string
	node *filesystem.Node // resolved node; the real directory for directories
	h    *filesystem.FileHandle
	dir  *filesystem.DirHandle // nil unless a directory
}

var (
	_ fs.ReadDirFile     = (*File)(nil)
	_ io.ReadWriteSeeker = (*File)(nil)
)

// Name returns the normalized path the file was opened with
func (f *File) Name() string { return f.name }

// Handle exposes the engine handle backing f
func (f *File) Handle() *filesystem.FileHandle { return f.h }

func (f *File) Read(p []byte) (int, error) {
	data, err := f.h.Read(len(p))
	if err != nil {
		return 0, wrap("read", f.name, err)
	}
	if len(data) == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

// ReadAt reads len(p) bytes starting at off and moves the cursor past them
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(f, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

func (f *File) Write(p []byte) (int, error) {
	n, err := f.h.Write(p)
	return n, wrap("write", f.name, err)
}

func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// WriteAt writes p starting at off; in append mode off is ignored
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return f.Write(p)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	pos, err := f.h.Seek(offset, whence)
	return pos, wrap("seek", f.name, err)
}

func (f *File) Truncate(size int64) error {
	if f.dir != nil {
		return pathErr("truncate", f.name, syscall.EISDIR)
	}
	return wrap("truncate", f.name, f.h.Truncate(size))
}

func (f *File) Stat() (fs.FileInfo, error) {
	return newFileInfo(f.node), nil
}

// ReadDir returns up to n entries in name order. With n <= 0 it returns
// everything left and a nil error; with n > 0 it returns io.EOF once the
// directory is exhausted.
func (f *File) ReadDir(n int) ([]fs.DirEntry, error) {
	if f.dir == nil {
		return nil, pathErr("readdir", f.name, syscall.ENOTDIR)
	}
	var entries []fs.DirEntry
	for n <= 0 || len(entries) < n {
		name, ok := f.dir.Next()
		if !ok {
			break
		}
		child, ok := f.node.GetChild(name)
		if !ok {
			// removed since the listing was taken
			continue
		}
		entries = append(entries, fs.FileInfoToDirEntry(newFileInfo(child)))
	}
	if n > 0 && len(entries) == 0 {
		return nil, io.EOF
	}
	return entries, nil
}

// Readdirnames is ReadDir returning only names
func (f *File) Readdirnames(n int) ([]string, error) {
	entries, err := f.ReadDir(n)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, err
}

// Close releases the handle. Closing twice fails with EBADF.
func (f *File) Close() error {
	return wrap("close", f.name, f.h.Close())
}
