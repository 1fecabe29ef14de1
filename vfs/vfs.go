// Package vfs exposes a [filesystem.Container] through an os-like API.
//
// It is the policy layer the engine leaves to its callers: names are
// normalized, links are followed the way a Unix host follows them, the
// [filesystem.Checker] answers are turned into EACCES/EPERM denials and
// engine error kinds become errno values wrapped in *fs.PathError, so
// errors.Is(err, fs.ErrNotExist) and friends work as they do for package os.
package vfs

import (
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"syscall"

	"github.com/brettbedarf/memfs/filesystem"
	"github.com/brettbedarf/memfs/internal/util"
)

// FS is a view of a container for one identity
type FS struct {
	c       *filesystem.Container
	checker *filesystem.Checker
}

// New returns a view of c acting as the identity c was created with
func New(c *filesystem.Container) *FS {
	return &FS{c: c, checker: c.Checker()}
}

// As returns a view of the same container acting as uid/gid
func (f *FS) As(uid, gid uint32) *FS {
	return &FS{c: f.c, checker: filesystem.NewChecker(uid, gid)}
}

func (f *FS) Container() *filesystem.Container { return f.c }

// Checker returns the identity permission queries are answered for
func (f *FS) Checker() *filesystem.Checker { return f.checker }

// Stat returns the info of the node at name, following a trailing link
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	node, err := f.walk("stat", name, true)
	if err != nil {
		return nil, err
	}
	return newFileInfo(node), nil
}

// Lstat is Stat without following a trailing link
func (f *FS) Lstat(name string) (fs.FileInfo, error) {
	node, err := f.walk("lstat", name, false)
	if err != nil {
		return nil, err
	}
	return newFileInfo(node), nil
}

// Open opens name for reading
func (f *FS) Open(name string) (*File, error) {
	return f.OpenFile(name, os.O_RDONLY, 0)
}

// Create creates or truncates name for reading and writing
func (f *FS) Create(name string) (*File, error) {
	return f.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, fs.FileMode(f.c.Config().FilePerms))
}

// OpenFile opens name with the os.O_* flags in flag. A file created because
// of O_CREATE gets the permission bits of perm and is writable by the
// creator regardless of them. Directories may only be opened read only.
func (f *FS) OpenFile(name string, flag int, perm fs.FileMode) (*File, error) {
	logger := util.GetLogger("vfs.OpenFile")
	p := clean(name)
	mode := openMode(flag)
	appendMode := flag&os.O_APPEND != 0

	node, err := f.walk("open", p, true)
	created := false
	switch {
	case err == nil && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, pathErr("open", name, syscall.EEXIST)
	case err != nil && flag&os.O_CREATE != 0 && isNotExist(err):
		node, err = f.create(p, perm)
		if err != nil {
			return nil, err
		}
		created = true
	case err != nil:
		return nil, err
	}

	if node.IsDir() {
		if mode != filesystem.ReadOnly {
			return nil, pathErr("open", name, syscall.EISDIR)
		}
		if !f.checker.IsReadable(node) {
			return nil, f.deny("open", name, syscall.EACCES)
		}
		return f.openDir(p, node)
	}

	if !created {
		if mode != filesystem.WriteOnly && !f.checker.IsReadable(node) {
			return nil, f.deny("open", name, syscall.EACCES)
		}
		if (mode != filesystem.ReadOnly || flag&os.O_TRUNC != 0) && !f.checker.IsWritable(node) {
			return nil, f.deny("open", name, syscall.EACCES)
		}
	}

	h, err := f.c.Open(node, mode, appendMode)
	if err != nil {
		return nil, wrap("open", name, err)
	}
	if flag&os.O_TRUNC != 0 && mode != filesystem.ReadOnly {
		if err := h.Truncate(0); err != nil {
			return nil, wrap("open", name, err)
		}
	}
	logger.Trace().Str("path", p).Int("flag", flag).Bool("created", created).Msg("Opened file")
	return &File{name: p, node: h.Node(), h: h}, nil
}

func (f *FS) openDir(p string, node *filesystem.Node) (*File, error) {
	h, err := f.c.Open(node, filesystem.ReadOnly, false)
	if err != nil {
		return nil, wrap("open", p, err)
	}
	d, err := filesystem.OpenDir(node)
	if err != nil {
		return nil, wrap("open", p, err)
	}
	return &File{name: p, node: node, h: h, dir: d}, nil
}

// create makes an empty file at the normalized path p
func (f *FS) create(p string, perm fs.FileMode) (*filesystem.Node, error) {
	parent, target, err := f.parentOf("open", p)
	if err != nil {
		return nil, err
	}
	node, err := f.c.CreateFileMode(target, UnixPerm(perm))
	if err != nil {
		return nil, wrap("open", p, err)
	}
	logger := util.GetLogger("vfs.create")
	logger.Debug().
		Str("path", p).
		Uint64("parent", parent.Ino()).
		Msg("Created file")
	return node, nil
}

// Mkdir creates the directory name. The parent must exist.
func (f *FS) Mkdir(name string, perm fs.FileMode) error {
	p := clean(name)
	_, target, err := f.parentOf("mkdir", p)
	if err != nil {
		return err
	}
	_, err = f.c.CreateDir(target, false, UnixPerm(perm))
	return wrap("mkdir", name, err)
}

// MkdirAll creates name and any missing ancestors with perm. An existing
// directory at name is not an error.
func (f *FS) MkdirAll(name string, perm fs.FileMode) error {
	p := clean(name)
	segs := split(p)

	cur := f.c.Root()
	i := 0
	for ; i < len(segs); i++ {
		if !cur.IsDir() {
			return pathErr("mkdir", name, syscall.ENOTDIR)
		}
		if !f.checker.IsExecutable(cur) {
			return f.deny("mkdir", name, syscall.EACCES)
		}
		child, ok := cur.GetChild(segs[i])
		if !ok {
			break
		}
		resolved, err := child.Resolve()
		if err != nil {
			return wrap("mkdir", name, err)
		}
		cur = resolved
	}
	if i == len(segs) {
		if !cur.IsDir() {
			return pathErr("mkdir", name, syscall.ENOTDIR)
		}
		return nil
	}
	if !f.checker.IsWritable(cur) {
		return f.deny("mkdir", name, syscall.EACCES)
	}

	base, err := cur.Path()
	if err != nil {
		return pathErr("mkdir", name, syscall.ENOENT)
	}
	target := path.Join(append([]string{base}, segs[i:]...)...)
	_, err = f.c.CreateDir(target, true, UnixPerm(perm))
	return wrap("mkdir", name, err)
}

// Remove removes a file, link or empty directory
func (f *FS) Remove(name string) error {
	return f.remove("remove", name, false)
}

// RemoveAll removes name and everything below it. A missing name is not an
// error. Only write permission on the parent is checked.
func (f *FS) RemoveAll(name string) error {
	err := f.remove("removeall", name, true)
	if isNotExist(err) {
		return nil
	}
	return err
}

func (f *FS) remove(op, name string, recursive bool) error {
	p := clean(name)
	if p == "/" {
		return pathErr(op, name, syscall.EBUSY)
	}
	node, err := f.walk(op, p, false)
	if err != nil {
		return err
	}
	if _, _, err := f.parentOf(op, p); err != nil {
		return err
	}
	target, err := node.Path()
	if err != nil {
		return pathErr(op, name, syscall.ENOENT)
	}
	if recursive {
		return wrap(op, name, f.c.Remove(target, true))
	}
	return wrap(op, name, f.c.RemoveIfEmpty(target))
}

// Rename moves oldname to newname. An existing non-directory at newname is
// replaced; an existing directory is not.
func (f *FS) Rename(oldname, newname string) error {
	oldp, newp := clean(oldname), clean(newname)
	node, err := f.walk("rename", oldp, false)
	if err != nil {
		return err
	}
	if _, _, err := f.parentOf("rename", oldp); err != nil {
		return err
	}
	_, target, err := f.parentOf("rename", newp)
	if err != nil {
		return err
	}
	if node.IsDir() {
		if dst, err := f.walk("rename", newp, false); err == nil && !dst.IsDir() {
			return pathErr("rename", newname, syscall.ENOTDIR)
		}
	}
	from, err := node.Path()
	if err != nil {
		return pathErr("rename", oldname, syscall.ENOENT)
	}
	_, err = f.c.Move(from, target)
	return wrap("rename", oldname, err)
}

// Chmod replaces the permission bits of name. Only the owner or the
// superuser may do so.
func (f *FS) Chmod(name string, mode fs.FileMode) error {
	node, err := f.walk("chmod", name, true)
	if err != nil {
		return err
	}
	if !f.checker.UserIsOwner(node) && !f.checker.UserIsRoot() {
		return f.deny("chmod", name, syscall.EPERM)
	}
	node.SetMode(UnixPerm(mode))
	return nil
}

// Chown changes the owner of name; -1 leaves a field unchanged. The
// superuser may set any owner. The owner may only move the file to its own
// group.
func (f *FS) Chown(name string, uid, gid int) error {
	node, err := f.walk("chown", name, true)
	if err != nil {
		return err
	}
	newUID, newGID := node.UID(), node.GID()
	if uid >= 0 {
		newUID = uint32(uid)
	}
	if gid >= 0 {
		newGID = uint32(gid)
	}
	if !f.checker.UserIsRoot() {
		ownerOnly := f.checker.UserIsOwner(node) &&
			newUID == node.UID() &&
			(newGID == node.GID() || newGID == f.checker.GID())
		if !ownerOnly {
			return f.deny("chown", name, syscall.EPERM)
		}
	}
	node.SetOwner(newUID, newGID)
	return nil
}

// Symlink creates newname as a link to oldname. Links point at nodes, so
// oldname must exist.
func (f *FS) Symlink(oldname, newname string) error {
	dest, err := f.walk("symlink", oldname, false)
	if err != nil {
		return err
	}
	_, target, err := f.parentOf("symlink", clean(newname))
	if err != nil {
		return err
	}
	_, err = f.c.CreateLink(target, dest)
	return wrap("symlink", newname, err)
}

// Readlink returns the absolute path a link points at
func (f *FS) Readlink(name string) (string, error) {
	node, err := f.walk("readlink", name, false)
	if err != nil {
		return "", err
	}
	if !node.IsLink() {
		return "", pathErr("readlink", name, syscall.EINVAL)
	}
	dest := node.TargetPath()
	if dest == "" {
		return "", pathErr("readlink", name, syscall.ENOENT)
	}
	return dest, nil
}

// ReadDir returns the entries of the directory name sorted by name
func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := f.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return file.ReadDir(-1)
}

// ReadFile returns the whole content of name
func (f *FS) ReadFile(name string) ([]byte, error) {
	file, err := f.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if file.dir != nil {
		return nil, pathErr("read", name, syscall.EISDIR)
	}
	return io.ReadAll(file)
}

// WriteFile writes data to name, creating it with perm or truncating it
func (f *FS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	file, err := f.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	_, err = file.Write(data)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Truncate resizes the file name
func (f *FS) Truncate(name string, size int64) error {
	file, err := f.OpenFile(name, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer file.Close()
	return file.Truncate(size)
}

// walk resolves the normalized form of name segment by segment. Links in
// intermediate positions are always followed, a trailing link only when
// follow is set. Every directory passed through needs search permission.
func (f *FS) walk(op, name string, follow bool) (*filesystem.Node, error) {
	segs := split(clean(name))
	cur := f.c.Root()
	for i, seg := range segs {
		if !cur.IsDir() {
			return nil, pathErr(op, name, syscall.ENOTDIR)
		}
		if !f.checker.IsExecutable(cur) {
			return nil, f.deny(op, name, syscall.EACCES)
		}
		child, ok := cur.GetChild(seg)
		if !ok {
			return nil, pathErr(op, name, syscall.ENOENT)
		}
		if child.IsLink() && (follow || i < len(segs)-1) {
			resolved, err := child.Resolve()
			if err != nil {
				return nil, wrap(op, name, err)
			}
			child = resolved
		}
		cur = child
	}
	return cur, nil
}

// parentOf resolves the directory that holds p and checks the caller may
// add or remove entries in it. It returns the directory and the engine path
// p maps to once links in the parent chain are resolved.
func (f *FS) parentOf(op, p string) (*filesystem.Node, string, error) {
	dir, base := path.Split(p)
	if base == "" {
		return nil, "", pathErr(op, p, syscall.EINVAL)
	}
	parent, err := f.walk(op, dir, true)
	if err != nil {
		return nil, "", err
	}
	if !parent.IsDir() {
		return nil, "", pathErr(op, p, syscall.ENOTDIR)
	}
	if !f.checker.IsWritable(parent) || !f.checker.IsExecutable(parent) {
		return nil, "", f.deny(op, p, syscall.EACCES)
	}
	parentPath, err := parent.Path()
	if err != nil {
		return nil, "", pathErr(op, p, syscall.ENOENT)
	}
	return parent, path.Join(parentPath, base), nil
}

func (f *FS) deny(op, name string, errno syscall.Errno) error {
	logger := util.GetLogger("vfs")
	logger.Debug().
		Str("op", op).
		Str("path", name).
		Uint32("uid", f.checker.UID()).
		Uint32("gid", f.checker.GID()).
		Msg("Permission denied")
	return pathErr(op, name, errno)
}

// clean makes name absolute and lexically normal; relative names are taken
// from the root
func clean(name string) string {
	return path.Clean("/" + name)
}

func split(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func openMode(flag int) filesystem.OpenMode {
	switch flag & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR) {
	case os.O_WRONLY:
		return filesystem.WriteOnly
	case os.O_RDWR:
		return filesystem.ReadWrite
	default:
		return filesystem.ReadOnly
	}
}

func isNotExist(err error) bool {
	return err != nil && Errno(err) == syscall.ENOENT
}
