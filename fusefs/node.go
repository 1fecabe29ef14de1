// Package fusefs serves a [vfs.FS] to the kernel through the go-fuse node
// API. Each request runs as the calling process's uid/gid so the kernel
// sees the same permission decisions as in-process callers of vfs.
package fusefs

import (
	"context"
	"os"
	"path"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/vfs"
)

// renameat2 flag; go-fuse only exports RENAME_EXCHANGE
const renameNoReplace = 0x1

// Node is the go-fuse inode for one path of the container
type Node struct {
	fs.Inode
	fsys *vfs.FS
}

var (
	_ fs.InodeEmbedder  = (*Node)(nil)
	_ fs.NodeLookuper   = (*Node)(nil)
	_ fs.NodeGetattrer  = (*Node)(nil)
	_ fs.NodeSetattrer  = (*Node)(nil)
	_ fs.NodeReaddirer  = (*Node)(nil)
	_ fs.NodeOpener     = (*Node)(nil)
	_ fs.NodeCreater    = (*Node)(nil)
	_ fs.NodeMkdirer    = (*Node)(nil)
	_ fs.NodeUnlinker   = (*Node)(nil)
	_ fs.NodeRmdirer    = (*Node)(nil)
	_ fs.NodeRenamer    = (*Node)(nil)
	_ fs.NodeSymlinker  = (*Node)(nil)
	_ fs.NodeReadlinker = (*Node)(nil)
)

// NewRoot returns the root node to pass to fs.Mount
func NewRoot(fsys *vfs.FS) *Node {
	return &Node{fsys: fsys}
}

// path is the container path of n
func (n *Node) path() string {
	return "/" + n.Path(nil)
}

func (n *Node) child(name string) string {
	return path.Join(n.path(), name)
}

// view returns the filesystem acting as the caller of the request in ctx.
// Without a caller (internal requests) the mount's own identity is used.
func (n *Node) view(ctx context.Context) *vfs.FS {
	if caller, ok := fuse.FromContext(ctx); ok {
		return n.fsys.As(caller.Uid, caller.Gid)
	}
	return n.fsys
}

// attach builds the go-fuse inode for the entry at p and fills out with its
// attributes
func (n *Node) attach(ctx context.Context, v *vfs.FS, p string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	info, err := v.Lstat(p)
	if err != nil {
		return nil, vfs.Errno(err)
	}
	attr, _ := vfs.AttrOf(info)
	out.Attr = *attr
	child := n.NewInode(ctx, &Node{fsys: n.fsys}, fs.StableAttr{
		Mode: attr.Mode & syscall.S_IFMT,
		Ino:  attr.Ino,
	})
	return child, fs.OK
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	logger := util.GetLogger("Fuse.Lookup")
	p := n.child(name)
	child, errno := n.attach(ctx, n.view(ctx), p, out)
	logger.Trace().Str("path", p).Int("errno", int(errno)).Msg("Lookup")
	return child, errno
}

func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if h, ok := f.(*handle); ok {
		return h.Getattr(ctx, out)
	}
	info, err := n.view(ctx).Lstat(n.path())
	if err != nil {
		return vfs.Errno(err)
	}
	attr, _ := vfs.AttrOf(info)
	out.Attr = *attr
	return fs.OK
}

// Setattr applies mode, owner and size changes in that order and stops at
// the first failure. Timestamp updates are accepted and ignored; the
// container keeps its own clock.
func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	logger := util.GetLogger("Fuse.Setattr")
	v := n.view(ctx)
	p := n.path()

	if mode, ok := in.GetMode(); ok {
		if err := v.Chmod(p, vfs.FileMode(mode)); err != nil {
			return vfs.Errno(err)
		}
	}
	uid, uok := in.GetUID()
	gid, gok := in.GetGID()
	if uok || gok {
		newUID, newGID := -1, -1
		if uok {
			newUID = int(uid)
		}
		if gok {
			newGID = int(gid)
		}
		if err := v.Chown(p, newUID, newGID); err != nil {
			return vfs.Errno(err)
		}
	}
	if size, ok := in.GetSize(); ok {
		var err error
		if h, isHandle := f.(*handle); isHandle {
			err = h.truncate(int64(size))
		} else {
			err = v.Truncate(p, int64(size))
		}
		if err != nil {
			return vfs.Errno(err)
		}
	}
	logger.Trace().Str("path", p).Msg("Setattr")
	return n.Getattr(ctx, nil, out)
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.view(ctx).ReadDir(n.path())
	if err != nil {
		return nil, vfs.Errno(err)
	}
	list := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		attr, _ := vfs.AttrOf(info)
		list = append(list, fuse.DirEntry{Name: e.Name(), Mode: attr.Mode, Ino: attr.Ino})
	}
	return fs.NewListDirStream(list), fs.OK
}

func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	logger := util.GetLogger("Fuse.Open")
	p := n.path()
	file, err := n.view(ctx).OpenFile(p, int(flags)&^os.O_CREATE, 0)
	if err != nil {
		logger.Debug().Str("path", p).Err(err).Msg("Open failed")
		return nil, 0, vfs.Errno(err)
	}
	return newHandle(file), 0, fs.OK
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	logger := util.GetLogger("Fuse.Create")
	v := n.view(ctx)
	p := n.child(name)
	file, err := v.OpenFile(p, int(flags)|os.O_CREATE, vfs.FileMode(mode))
	if err != nil {
		return nil, nil, 0, vfs.Errno(err)
	}
	child, errno := n.attach(ctx, v, p, out)
	if errno != fs.OK {
		file.Close()
		return nil, nil, 0, errno
	}
	logger.Debug().Str("path", p).Msg("Created file")
	return child, newHandle(file), 0, fs.OK
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	v := n.view(ctx)
	p := n.child(name)
	if err := v.Mkdir(p, vfs.FileMode(mode)); err != nil {
		return nil, vfs.Errno(err)
	}
	return n.attach(ctx, v, p, out)
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	v := n.view(ctx)
	p := n.child(name)
	info, err := v.Lstat(p)
	if err != nil {
		return vfs.Errno(err)
	}
	if info.IsDir() {
		return syscall.EISDIR
	}
	return vfs.Errno(v.Remove(p))
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	v := n.view(ctx)
	p := n.child(name)
	info, err := v.Lstat(p)
	if err != nil {
		return vfs.Errno(err)
	}
	if !info.IsDir() {
		return syscall.ENOTDIR
	}
	return vfs.Errno(v.Remove(p))
}

func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	logger := util.GetLogger("Fuse.Rename")
	if flags&fs.RENAME_EXCHANGE != 0 {
		return syscall.ENOTSUP
	}
	dst, ok := newParent.(*Node)
	if !ok {
		return syscall.EXDEV
	}
	v := n.view(ctx)
	from, to := n.child(name), dst.child(newName)
	if flags&renameNoReplace != 0 {
		if _, err := v.Lstat(to); err == nil {
			return syscall.EEXIST
		}
	}
	if err := v.Rename(from, to); err != nil {
		logger.Debug().Str("from", from).Str("to", to).Err(err).Msg("Rename failed")
		return vfs.Errno(err)
	}
	return fs.OK
}

// Symlink creates a link to target. Links point at existing nodes, so
// dangling targets fail with ENOENT.
func (n *Node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	v := n.view(ctx)
	p := n.child(name)
	if err := v.Symlink(linkTarget(n.path(), target), p); err != nil {
		return nil, vfs.Errno(err)
	}
	return n.attach(ctx, v, p, out)
}

// Readlink reports the target relative to the link so it stays inside the
// mount when the kernel follows it
func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	p := n.path()
	dest, err := n.view(ctx).Readlink(p)
	if err != nil {
		return nil, vfs.Errno(err)
	}
	return []byte(relativeTarget(path.Dir(p), dest)), fs.OK
}

// linkTarget resolves a symlink target given by the kernel against dir.
// Absolute targets are taken as container paths.
func linkTarget(dir, target string) string {
	if path.IsAbs(target) {
		return path.Clean(target)
	}
	return path.Join(dir, target)
}

// relativeTarget returns dest relative to dir; both are clean absolute paths
func relativeTarget(dir, dest string) string {
	dirSegs, destSegs := segments(dir), segments(dest)
	i := 0
	for i < len(dirSegs) && i < len(destSegs) && dirSegs[i] == destSegs[i] {
		i++
	}
	var rel []string
	for range dirSegs[i:] {
		rel = append(rel, "..")
	}
	rel = append(rel, destSegs[i:]...)
	if len(rel) == 0 {
		return "."
	}
	return path.Join(rel...)
}

func segments(p string) []string {
	var segs []string
	for p = path.Clean(p); p != "/" && p != "."; p = path.Dir(p) {
		segs = append([]string{path.Base(p)}, segs...)
	}
	return segs
}
