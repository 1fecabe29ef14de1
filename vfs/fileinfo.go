package vfs

import (
	"io/fs"
	"time"

	"github.com/brettbedarf/memfs/filesystem"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fileInfo is the fs.FileInfo projection of a node's stat. Sys returns the
// underlying *fuse.Attr.
type fileInfo struct {
	name string
	attr fuse.Attr
}

func newFileInfo(n *filesystem.Node) *fileInfo {
	name := n.Name()
	if n.IsRoot() {
		name = "/"
	}
	return &fileInfo{name: name, attr: n.Stat()}
}

func (i *fileInfo) Name() string       { return i.name }
func (i *fileInfo) Size() int64        { return int64(i.attr.Size) }
func (i *fileInfo) Mode() fs.FileMode  { return FileMode(i.attr.Mode) }
func (i *fileInfo) ModTime() time.Time { return time.Unix(int64(i.attr.Mtime), int64(i.attr.Mtimensec)) }
func (i *fileInfo) IsDir() bool        { return i.attr.IsDir() }
func (i *fileInfo) Sys() any           { return &i.attr }

// FileMode converts a Unix mode, type bits included, to an fs.FileMode
func FileMode(mode uint32) fs.FileMode {
	m := fs.FileMode(mode & 0o777)
	if mode&0o4000 != 0 {
		m |= fs.ModeSetuid
	}
	if mode&0o2000 != 0 {
		m |= fs.ModeSetgid
	}
	if mode&0o1000 != 0 {
		m |= fs.ModeSticky
	}
	switch mode & filesystem.TypeMask {
	case uint32(filesystem.DirAttr):
		m |= fs.ModeDir
	case uint32(filesystem.SymlinkAttr):
		m |= fs.ModeSymlink
	}
	return m
}

// UnixPerm converts the permission bits of an fs.FileMode, including setuid,
// setgid and sticky, to their Unix values. Type bits are dropped.
func UnixPerm(m fs.FileMode) uint32 {
	perm := uint32(m.Perm())
	if m&fs.ModeSetuid != 0 {
		perm |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		perm |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		perm |= 0o1000
	}
	return perm
}

// AttrOf returns the stat record behind an info produced by this package
func AttrOf(info fs.FileInfo) (*fuse.Attr, bool) {
	attr, ok := info.Sys().(*fuse.Attr)
	return attr, ok
}
