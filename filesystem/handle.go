package filesystem

import (
	"io"
	"sync"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// OpenMode is the access a handle was opened with
type OpenMode int

const (
	ReadOnly OpenMode = iota
	WriteOnly
	ReadWrite
)

func (m OpenMode) canRead() bool  { return m == ReadOnly || m == ReadWrite }
func (m OpenMode) canWrite() bool { return m == WriteOnly || m == ReadWrite }

// LockKind is an advisory lock request recorded on a handle
type LockKind int

const (
	LockNone LockKind = iota
	LockShared
	LockExclusive
)

// FileHandle is a cursor over a file's content. A handle is safe for use by
// several goroutines; content access is serialized by the file's inode lock.
type FileHandle struct {
	node       *Node
	mode       OpenMode
	appendMode bool
	pos        int64
	lock       LockKind
	closed     bool
	mu         sync.Mutex // Protects the cursor and handle state
}

// NewFileHandle opens node for content I/O. node must be a file; use
// [Container.Open] to get link following and directory projection.
func NewFileHandle(node *Node, mode OpenMode, appendMode bool) (*FileHandle, error) {
	if node == nil {
		return nil, newError("open", "", InvalidArgument, KindNone)
	}
	if !node.IsFile() {
		return nil, newError("open", node.Name(), InvalidArgument, node.Kind())
	}
	if mode < ReadOnly || mode > ReadWrite {
		return nil, newError("open", node.Name(), InvalidArgument, node.Kind())
	}
	return &FileHandle{node: node, mode: mode, appendMode: appendMode}, nil
}

// Open returns a handle on node. Links are resolved first. A directory is
// served through a transient projection from the factory so the tree is
// never touched by content I/O.
func (c *Container) Open(node *Node, mode OpenMode, appendMode bool) (*FileHandle, error) {
	target, err := node.Resolve()
	if err != nil {
		return nil, err
	}
	if target.IsDir() {
		target = c.factory.ProjectDir(target)
	}
	return NewFileHandle(target, mode, appendMode)
}

// Node returns the file the handle reads and writes
func (h *FileHandle) Node() *Node { return h.node }

func (h *FileHandle) Mode() OpenMode { return h.mode }

// Pos returns the cursor position
func (h *FileHandle) Pos() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

// Read returns up to count bytes from the cursor and advances it by the
// number of bytes returned. At or past the end it returns an empty slice and
// no error. Updates the file's atime.
func (h *FileHandle) Read(count int) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkLocked("read"); err != nil {
		return nil, err
	}
	if !h.mode.canRead() {
		return nil, newError("read", h.node.Name(), NotPermitted, KindFile)
	}
	if count < 0 {
		return nil, newError("read", h.node.Name(), InvalidArgument, KindFile)
	}
	data := h.node.readAt(h.pos, count)
	h.pos += int64(len(data))
	return data, nil
}

// Write writes data at the cursor, or at the end in append mode, extending
// the file and zero filling any gap left by an earlier seek. Advances the
// cursor and updates mtime and ctime. Returns the number of bytes written.
func (h *FileHandle) Write(data []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkLocked("write"); err != nil {
		return 0, err
	}
	if !h.mode.canWrite() {
		return 0, newError("write", h.node.Name(), NotPermitted, KindFile)
	}
	start, ok := h.node.writeAt(h.pos, data, h.appendMode)
	if !ok {
		return 0, newError("write", h.node.Name(), FileTooLarge, KindFile)
	}
	h.pos = start + int64(len(data))
	return len(data), nil
}

// Seek moves the cursor relative to io.SeekStart, io.SeekCurrent or
// io.SeekEnd. Seeking past the end does not grow the file. A negative
// result fails with InvalidArgument.
func (h *FileHandle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkLocked("seek"); err != nil {
		return 0, err
	}
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = h.pos
	case io.SeekEnd:
		base = h.node.Size()
	default:
		return 0, newError("seek", h.node.Name(), InvalidArgument, KindFile)
	}
	next := base + offset
	if next < 0 {
		return 0, newError("seek", h.node.Name(), InvalidArgument, KindFile)
	}
	h.pos = next
	return next, nil
}

// Truncate resizes the file to size, zero filling when it grows. The cursor
// does not move. Requires a handle opened for writing.
func (h *FileHandle) Truncate(size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkLocked("truncate"); err != nil {
		return err
	}
	if !h.mode.canWrite() {
		return newError("truncate", h.node.Name(), NotPermitted, KindFile)
	}
	if size < 0 {
		return newError("truncate", h.node.Name(), InvalidArgument, KindFile)
	}
	if size > MaxFileSize {
		return newError("truncate", h.node.Name(), FileTooLarge, KindFile)
	}
	h.node.truncate(size)
	return nil
}

// IsAtEOF reports whether the cursor is at or past the end of the content
func (h *FileHandle) IsAtEOF() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos >= h.node.Size()
}

// Stat returns the stat projection of the underlying file
func (h *FileHandle) Stat() fuse.Attr {
	return h.node.Stat()
}

// Flock records an advisory lock request. Locks are bookkeeping on this
// handle only; they exclude nothing.
func (h *FileHandle) Flock(kind LockKind) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkLocked("flock"); err != nil {
		return err
	}
	if kind < LockNone || kind > LockExclusive {
		return newError("flock", h.node.Name(), InvalidArgument, KindFile)
	}
	h.lock = kind
	return nil
}

// Lock returns the advisory lock last recorded by Flock
func (h *FileHandle) Lock() LockKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lock
}

// Close releases the handle and its advisory lock. Closing twice fails.
func (h *FileHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkLocked("close"); err != nil {
		return err
	}
	h.closed = true
	h.lock = LockNone
	return nil
}

// checkLocked fails once the handle is closed. Caller must hold h.mu.
func (h *FileHandle) checkLocked(op string) error {
	if h.closed {
		return newError(op, h.node.Name(), HandleClosed, KindFile)
	}
	return nil
}
