package filesystem

import "sync"

// DirHandle enumerates a directory's children by basename in sorted order.
// The listing is taken lazily on the first Next and again after Rewind;
// children added or removed in between are not guaranteed to show up.
type DirHandle struct {
	node   *Node
	names  []string
	idx    int
	loaded bool
	mu     sync.Mutex
}

// OpenDir returns a handle over dir's children. Links are not followed.
func OpenDir(dir *Node) (*DirHandle, error) {
	if dir == nil {
		return nil, newError("opendir", "", InvalidArgument, KindNone)
	}
	if !dir.IsDir() {
		return nil, newError("opendir", dir.Name(), NotADirectory, dir.Kind())
	}
	return &DirHandle{node: dir}, nil
}

func (d *DirHandle) Node() *Node { return d.node }

// Next returns the next child's basename, or false once the listing is done
func (d *DirHandle) Next() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		d.names = d.node.Children()
		d.idx = 0
		d.loaded = true
	}
	if d.idx >= len(d.names) {
		return "", false
	}
	name := d.names[d.idx]
	d.idx++
	return name, true
}

// Rewind restarts the sequence at the first child
func (d *DirHandle) Rewind() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names = nil
	d.idx = 0
	d.loaded = false
}
