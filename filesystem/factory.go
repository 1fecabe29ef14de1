package filesystem

import (
	"os"
	"sync/atomic"

	"github.com/brettbedarf/memfs/config"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Factory is the only constructor of tree nodes. It captures the owning
// identity once and stamps every node it builds with that identity, a fresh
// inode number and the same instant for all three timestamps.
type Factory struct {
	uid       uint32
	gid       uint32
	rootPerms uint32
	clock     Clock
	lastIno   atomic.Uint64 // Last fuse Attr.Ino assigned; incremented when new nodes are created
}

// NewFactory builds a Factory from cfg. The identity comes from cfg.UID and
// cfg.GID when set, else from the running process; if the platform cannot
// report an identity the superuser is used. A nil clock means [SystemClock].
func NewFactory(cfg *config.Config, clock Clock) *Factory {
	if clock == nil {
		clock = SystemClock
	}
	uid, gid := processIdentity()
	if cfg.UID != nil {
		uid = *cfg.UID
	}
	if cfg.GID != nil {
		gid = *cfg.GID
	}
	f := &Factory{uid: uid, gid: gid, rootPerms: cfg.RootPerms, clock: clock}
	f.lastIno.Store(fuse.FUSE_ROOT_ID)
	return f
}

// processIdentity returns the uid/gid of this process. os.Getuid reports -1
// on platforms without Unix identities.
func processIdentity() (uid, gid uint32) {
	u, g := os.Getuid(), os.Getgid()
	if u < 0 || g < 0 {
		return SuperUserID, SuperUserID
	}
	return uint32(u), uint32(g)
}

// UID returns the identity stamped on new nodes
func (f *Factory) UID() uint32 { return f.uid }

// GID returns the group stamped on new nodes
func (f *Factory) GID() uint32 { return f.gid }

// Clock returns the clock used for timestamps
func (f *Factory) Clock() Clock { return f.clock }

// NewRoot builds a root directory with the configured root permissions and
// the fixed FUSE root inode number
func (f *Factory) NewRoot() *Node {
	attr := f.newAttr(fuse.FUSE_ROOT_ID, uint32(DirAttr)|f.rootPerms&PermMask)
	attr.Size = DirSize
	return f.build("", KindRoot, attr)
}

// NewDir builds a detached directory
func (f *Factory) NewDir(name string, perm uint32) *Node {
	attr := f.newAttr(f.lastIno.Add(1), uint32(DirAttr)|perm&PermMask)
	attr.Size = DirSize
	return f.build(name, KindDir, attr)
}

// NewFile builds a detached, empty file
func (f *Factory) NewFile(name string, perm uint32) *Node {
	attr := f.newAttr(f.lastIno.Add(1), uint32(FileAttr)|perm&PermMask)
	return f.build(name, KindFile, attr)
}

// NewLink builds a detached link to dest. Links carry 0777 like symlinks do.
func (f *Factory) NewLink(name string, dest *Node) *Node {
	attr := f.newAttr(f.lastIno.Add(1), uint32(SymlinkAttr)|0o777)
	node := f.build(name, KindLink, attr)
	node.target = dest
	return node
}

// ProjectDir builds the transient file-like stand-in used when a directory is
// opened for content I/O. It copies the directory's mode, owner and
// timestamps, has no content and is never attached to the tree, so the real
// directory is never mutated.
func (f *Factory) ProjectDir(dir *Node) *Node {
	attr := dir.CopyAttr()
	attr.Size = 0
	return f.build(dir.Name(), KindFile, &attr)
}

func (f *Factory) newAttr(ino uint64, mode uint32) *fuse.Attr {
	attr := &fuse.Attr{
		Ino:  ino,
		Mode: mode,
		Owner: fuse.Owner{
			Uid: f.uid,
			Gid: f.gid,
		},
		Blksize: BlockSize,
	}
	setTimes(attr, f.clock.Now())
	return attr
}

func (f *Factory) build(name string, kind Kind, attr *fuse.Attr) *Node {
	// inode is never nil here so newNode cannot fail
	node, _ := newNode(name, kind, NewInode(attr, f.clock))
	return node
}
