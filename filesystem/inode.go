package filesystem

import (
	"sync"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// touch flags select which timestamps an update moves forward
const (
	touchAtime = 1 << iota
	touchMtime
	touchCtime
)

// Inode holds a node's metadata and, for files, its content.
// The fuse attribute doubles as the stat projection handed to callers.
// mu guards both attr and content.
type Inode struct {
	// Low-level fuse wire protocol attributes; Only access directly if
	// handling locks manually
	attr    *fuse.Attr
	content []byte
	clock   Clock
	mu      sync.RWMutex
}

// NewInode wraps attr. A nil clock falls back to [SystemClock].
func NewInode(attr *fuse.Attr, clock Clock) *Inode {
	if clock == nil {
		clock = SystemClock
	}
	return &Inode{attr: attr, clock: clock}
}

// CopyAttr returns a thread-safe copy of the inode's attributes
func (n *Inode) CopyAttr() fuse.Attr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return *n.attr
}

// Ino returns the inode number
func (n *Inode) Ino() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.attr.Ino
}

// Mode returns the full mode: type bits and permission bits
func (n *Inode) Mode() uint32 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.attr.Mode
}

// Perm returns only the permission bits of the mode
func (n *Inode) Perm() uint32 {
	return n.Mode() & PermMask
}

// SetMode replaces the permission bits; the type bits never change.
// Updates ctime.
func (n *Inode) SetMode(perm uint32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attr.Mode = (n.attr.Mode & TypeMask) | (perm & PermMask)
	n.touchLocked(touchCtime)
}

// UID returns the owning user id
func (n *Inode) UID() uint32 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.attr.Uid
}

// GID returns the owning group id
func (n *Inode) GID() uint32 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.attr.Gid
}

// SetOwner changes ownership. Updates ctime.
func (n *Inode) SetOwner(uid, gid uint32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attr.Uid = uid
	n.attr.Gid = gid
	n.touchLocked(touchCtime)
}

func (n *Inode) Atime() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return time.Unix(int64(n.attr.Atime), int64(n.attr.Atimensec))
}

func (n *Inode) Mtime() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return time.Unix(int64(n.attr.Mtime), int64(n.attr.Mtimensec))
}

func (n *Inode) Ctime() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return time.Unix(int64(n.attr.Ctime), int64(n.attr.Ctimensec))
}

// Content returns a copy of the file content
func (n *Inode) Content() []byte {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]byte, len(n.content))
	copy(out, n.content)
	return out
}

// SetContent replaces the content with a copy of data. Updates mtime and ctime.
func (n *Inode) SetContent(data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.content = append(make([]byte, 0, len(data)), data...)
	n.attr.Size = uint64(len(n.content))
	n.touchLocked(touchMtime | touchCtime)
}

// Size returns the content length
func (n *Inode) Size() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return int64(len(n.content))
}

// readAt copies up to count bytes starting at off and updates atime.
// Returns an empty slice at or past the end of content.
func (n *Inode) readAt(off int64, count int) []byte {
	n.mu.RLock()
	var out []byte
	if size := int64(len(n.content)); off < size {
		end := off + min(int64(count), size-off)
		out = make([]byte, end-off)
		copy(out, n.content[off:end])
	} else {
		out = []byte{}
	}
	n.mu.RUnlock()

	n.touch(touchAtime)
	return out
}

// writeAt writes data at off, zero filling any gap past the current end.
// Updates mtime and ctime. If appendMode is set off is ignored and the data
// lands at the end. Returns the offset the write started at, or false with
// content untouched if the write would end past MaxFileSize.
func (n *Inode) writeAt(off int64, data []byte, appendMode bool) (int64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if appendMode {
		off = int64(len(n.content))
	}
	if off > MaxFileSize-int64(len(data)) {
		return off, false
	}
	if len(data) == 0 {
		return off, true
	}
	end := off + int64(len(data))
	if end > int64(len(n.content)) {
		n.growLocked(end)
	}
	copy(n.content[off:end], data)
	n.attr.Size = uint64(len(n.content))
	n.touchLocked(touchMtime | touchCtime)
	return off, true
}

// truncate resizes the content to size, zero filling when growing.
// Updates mtime and ctime. size must be within [0, MaxFileSize].
func (n *Inode) truncate(size int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if size > int64(len(n.content)) {
		n.growLocked(size)
	} else {
		n.content = n.content[:size]
	}
	n.attr.Size = uint64(len(n.content))
	n.touchLocked(touchMtime | touchCtime)
}

// growLocked extends content to size with zero bytes.
// Caller must hold n.mu.Lock().
func (n *Inode) growLocked(size int64) {
	if size <= int64(cap(n.content)) {
		old := len(n.content)
		n.content = n.content[:size]
		clear(n.content[old:])
		return
	}
	grown := make([]byte, size, max(size, 2*int64(cap(n.content))))
	copy(grown, n.content)
	n.content = grown
}

// touch moves the selected timestamps to the clock's current time
func (n *Inode) touch(flags int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.touchLocked(flags)
}

// touchLocked moves the selected timestamps forward to now. A timestamp that
// is already ahead of the clock is left alone so times never go backward.
// Caller must hold n.mu.Lock().
func (n *Inode) touchLocked(flags int) {
	now := n.clock.Now()
	if flags&touchAtime != 0 {
		advance(&n.attr.Atime, &n.attr.Atimensec, now)
	}
	if flags&touchMtime != 0 {
		advance(&n.attr.Mtime, &n.attr.Mtimensec, now)
	}
	if flags&touchCtime != 0 {
		advance(&n.attr.Ctime, &n.attr.Ctimensec, now)
	}
}

func advance(sec *uint64, nsec *uint32, now time.Time) {
	cur := time.Unix(int64(*sec), int64(*nsec))
	if now.Before(cur) {
		return
	}
	*sec = uint64(now.Unix())
	*nsec = uint32(now.Nanosecond())
}

// setTimes stamps all three timestamps with t; used when a node is created
func setTimes(attr *fuse.Attr, t time.Time) {
	attr.Atime, attr.Mtime, attr.Ctime = uint64(t.Unix()), uint64(t.Unix()), uint64(t.Unix())
	ns := uint32(t.Nanosecond())
	attr.Atimensec, attr.Mtimensec, attr.Ctimensec = ns, ns, ns
}
