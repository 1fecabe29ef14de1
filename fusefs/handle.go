package fusefs

import (
	"context"
	"errors"
	"io"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/vfs"
)

// handle adapts the cursor based vfs.File to the offset based FUSE calls.
// The kernel may issue reads and writes on one handle concurrently, so each
// seek+transfer pair runs under mu.
type handle struct {
	mu   sync.Mutex
	file *vfs.File
}

var (
	_ fs.FileReader    = (*handle)(nil)
	_ fs.FileWriter    = (*handle)(nil)
	_ fs.FileGetattrer = (*handle)(nil)
	_ fs.FileFlusher   = (*handle)(nil)
	_ fs.FileReleaser  = (*handle)(nil)
)

func newHandle(file *vfs.File) *handle {
	return &handle{file: file}
}

func (h *handle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, err := h.file.ReadAt(dest, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, vfs.Errno(err)
	}
	return fuse.ReadResultData(dest[:n]), fs.OK
}

func (h *handle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, err := h.file.WriteAt(data, off)
	if err != nil {
		return uint32(n), vfs.Errno(err)
	}
	return uint32(n), fs.OK
}

func (h *handle) Getattr(ctx context.Context, out *fuse.AttrOut) syscall.Errno {
	info, err := h.file.Stat()
	if err != nil {
		return vfs.Errno(err)
	}
	attr, _ := vfs.AttrOf(info)
	out.Attr = *attr
	return fs.OK
}

// Flush has nothing to write back; content lives in memory
func (h *handle) Flush(ctx context.Context) syscall.Errno {
	return fs.OK
}

func (h *handle) Release(ctx context.Context) syscall.Errno {
	logger := util.GetLogger("Fuse.Release")
	if err := h.file.Close(); err != nil {
		logger.Debug().Str("path", h.file.Name()).Err(err).Msg("Release failed")
		return vfs.Errno(err)
	}
	return fs.OK
}

func (h *handle) truncate(size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Truncate(size)
}
