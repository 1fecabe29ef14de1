package vfs

import (
	"errors"
	"io"
	"io/fs"
	"math"
	"os"
	"sync"
	"syscall"
	"testing"

	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/filesystem"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerUID uint32 = 1000
	ownerGID uint32 = 1000
)

func createTestFS(t *testing.T) *FS {
	t.Helper()
	cfg := config.NewConfig(&config.ConfigOverride{
		UID: util.Pointer(ownerUID),
		GID: util.Pointer(ownerGID),
	})
	return New(filesystem.NewContainer(cfg))
}

func requireErrno(t *testing.T, err error, errno syscall.Errno) {
	t.Helper()
	require.Error(t, err)
	var pe *fs.PathError
	require.ErrorAs(t, err, &pe)
	require.Equalf(t, errno, Errno(err), "got %v", err)
}

func TestWriteFileReadFile(t *testing.T) {
	t.Parallel()
	v := createTestFS(t)

	require.NoError(t, v.WriteFile("/hello.txt", []byte("hello"), 0o644))
	data, err := v.ReadFile("/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, v.WriteFile("/hello.txt", []byte("hi"), 0o644))
	data, err = v.ReadFile("hello.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), data, "WriteFile truncates")

	info, err := v.Stat("/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size())
	assert.Equal(t, fs.FileMode(0o644), info.Mode())
	assert.False(t, info.IsDir())
}

func TestOpenFile(t *testing.T) {
	t.Parallel()

	t.Run("missing without create", func(t *testing.T) {
		v := createTestFS(t)
		_, err := v.Open("/nope")
		requireErrno(t, err, syscall.ENOENT)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("exclusive create", func(t *testing.T) {
		v := createTestFS(t)
		f, err := v.OpenFile("/f", os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		require.NoError(t, err)
		require.NoError(t, f.Close())

		_, err = v.OpenFile("/f", os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		requireErrno(t, err, syscall.EEXIST)
		assert.ErrorIs(t, err, fs.ErrExist)
	})

	t.Run("created file is writable by creator", func(t *testing.T) {
		v := createTestFS(t)
		f, err := v.OpenFile("/ro", os.O_WRONLY|os.O_CREATE, 0o444)
		require.NoError(t, err)
		_, err = f.Write([]byte("x"))
		require.NoError(t, err)
		require.NoError(t, f.Close())

		_, err = v.OpenFile("/ro", os.O_WRONLY, 0)
		requireErrno(t, err, syscall.EACCES)
	})

	t.Run("append", func(t *testing.T) {
		v := createTestFS(t)
		require.NoError(t, v.WriteFile("/log", []byte("a"), 0o644))
		f, err := v.OpenFile("/log", os.O_WRONLY|os.O_APPEND, 0)
		require.NoError(t, err)
		_, err = f.WriteString("b")
		require.NoError(t, err)
		require.NoError(t, f.Close())

		data, err := v.ReadFile("/log")
		require.NoError(t, err)
		assert.Equal(t, []byte("ab"), data)
	})

	t.Run("directory for writing", func(t *testing.T) {
		v := createTestFS(t)
		require.NoError(t, v.Mkdir("/d", 0o755))
		_, err := v.OpenFile("/d", os.O_RDWR, 0)
		requireErrno(t, err, syscall.EISDIR)
	})

	t.Run("missing parent", func(t *testing.T) {
		v := createTestFS(t)
		_, err := v.OpenFile("/a/b", os.O_WRONLY|os.O_CREATE, 0o644)
		requireErrno(t, err, syscall.ENOENT)
	})

	t.Run("wrong mode", func(t *testing.T) {
		v := createTestFS(t)
		require.NoError(t, v.WriteFile("/f", []byte("x"), 0o644))
		f, err := v.Open("/f")
		require.NoError(t, err)
		_, err = f.Write([]byte("y"))
		requireErrno(t, err, syscall.EBADF)
	})

	t.Run("close twice", func(t *testing.T) {
		v := createTestFS(t)
		f, err := v.Create("/f")
		require.NoError(t, err)
		require.NoError(t, f.Close())
		requireErrno(t, f.Close(), syscall.EBADF)
	})

	t.Run("write past max size", func(t *testing.T) {
		v := createTestFS(t)
		f, err := v.Create("/f")
		require.NoError(t, err)
		_, err = f.WriteAt([]byte("y"), math.MaxInt64)
		requireErrno(t, err, syscall.EFBIG)
		requireErrno(t, f.Truncate(math.MaxInt64), syscall.EFBIG)
	})
}

func TestFile_ReadAtEOF(t *testing.T) {
	t.Parallel()
	v := createTestFS(t)
	require.NoError(t, v.WriteFile("/f", []byte("abc"), 0o644))
	f, err := v.Open("/f")
	require.NoError(t, err)

	buf := make([]byte, 2)
	n, err := f.ReadAt(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("bc"), buf)

	n, err = f.Read(buf)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPermissions(t *testing.T) {
	t.Parallel()
	v := createTestFS(t)
	require.NoError(t, v.WriteFile("/secret", []byte("data"), 0o640))

	t.Run("owner", func(t *testing.T) {
		f, err := v.OpenFile("/secret", os.O_RDWR, 0)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	})

	t.Run("group reads but cannot write", func(t *testing.T) {
		group := v.As(2000, ownerGID)
		data, err := group.ReadFile("/secret")
		require.NoError(t, err)
		assert.Equal(t, []byte("data"), data)

		_, err = group.OpenFile("/secret", os.O_WRONLY, 0)
		requireErrno(t, err, syscall.EACCES)
		assert.ErrorIs(t, err, fs.ErrPermission)
	})

	t.Run("other is denied", func(t *testing.T) {
		other := v.As(2000, 2000)
		_, err := other.ReadFile("/secret")
		requireErrno(t, err, syscall.EACCES)
	})

	t.Run("superuser", func(t *testing.T) {
		root := v.As(filesystem.SuperUserID, filesystem.SuperUserID)
		require.NoError(t, root.WriteFile("/secret", []byte("root"), 0))
	})
}

func TestSearchPermission(t *testing.T) {
	t.Parallel()
	v := createTestFS(t)
	require.NoError(t, v.Mkdir("/private", 0o700))
	require.NoError(t, v.WriteFile("/private/f", []byte("x"), 0o644))
	other := v.As(2000, 2000)

	_, err := other.Stat("/private/f")
	requireErrno(t, err, syscall.EACCES)

	_, err = other.ReadDir("/private")
	requireErrno(t, err, syscall.EACCES)

	err = other.WriteFile("/private/g", nil, 0o644)
	requireErrno(t, err, syscall.EACCES)

	// stat of the directory itself only needs search permission on its parent
	_, err = other.Stat("/private")
	require.NoError(t, err)
}

func TestMkdirAll(t *testing.T) {
	t.Parallel()
	v := createTestFS(t)

	require.NoError(t, v.MkdirAll("/a/b/c", 0o750))
	info, err := v.Stat("/a/b")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, fs.ModeDir|0o750, info.Mode())

	require.NoError(t, v.MkdirAll("/a/b/c", 0o750), "existing directory is fine")
	require.NoError(t, v.MkdirAll("/", 0o750))

	require.NoError(t, v.WriteFile("/a/file", nil, 0o644))
	requireErrno(t, v.MkdirAll("/a/file/x", 0o755), syscall.ENOTDIR)
	requireErrno(t, v.MkdirAll("/a/file", 0o755), syscall.ENOTDIR)
}

func TestMkdir(t *testing.T) {
	t.Parallel()
	v := createTestFS(t)

	require.NoError(t, v.Mkdir("/d", 0o755))
	requireErrno(t, v.Mkdir("/d", 0o755), syscall.EEXIST)
	requireErrno(t, v.Mkdir("/x/y", 0o755), syscall.ENOENT)
	requireErrno(t, v.Mkdir("/", 0o755), syscall.EINVAL)
}

func TestRemove(t *testing.T) {
	t.Parallel()
	v := createTestFS(t)
	require.NoError(t, v.MkdirAll("/d/sub", 0o755))
	require.NoError(t, v.WriteFile("/d/sub/f", []byte("x"), 0o644))

	requireErrno(t, v.Remove("/d"), syscall.ENOTEMPTY)
	require.NoError(t, v.Remove("/d/sub/f"))
	require.NoError(t, v.Remove("/d/sub"))
	requireErrno(t, v.Remove("/d/sub"), syscall.ENOENT)
	requireErrno(t, v.Remove("/"), syscall.EBUSY)

	require.NoError(t, v.MkdirAll("/t/a/b", 0o755))
	require.NoError(t, v.RemoveAll("/t"))
	_, err := v.Stat("/t/a")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	require.NoError(t, v.RemoveAll("/t"), "missing path is not an error")

	other := v.As(2000, 2000)
	requireErrno(t, other.Remove("/d"), syscall.EACCES)
}

func TestRemove_ConcurrentCreate(t *testing.T) {
	t.Parallel()
	v := createTestFS(t)

	for range 200 {
		require.NoError(t, v.Mkdir("/d", 0o755))

		var removeErr, writeErr error
		var wg sync.WaitGroup
		wg.Go(func() { removeErr = v.Remove("/d") })
		wg.Go(func() { writeErr = v.WriteFile("/d/f", []byte("x"), 0o644) })
		wg.Wait()

		if removeErr == nil {
			requireErrno(t, writeErr, syscall.ENOENT)
			continue
		}
		requireErrno(t, removeErr, syscall.ENOTEMPTY)
		require.NoError(t, writeErr)
		require.NoError(t, v.RemoveAll("/d"))
	}
}

func TestRename(t *testing.T) {
	t.Parallel()

	t.Run("replaces file", func(t *testing.T) {
		v := createTestFS(t)
		require.NoError(t, v.WriteFile("/a", []byte("new"), 0o644))
		require.NoError(t, v.WriteFile("/b", []byte("old"), 0o644))

		require.NoError(t, v.Rename("/a", "/b"))
		data, err := v.ReadFile("/b")
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), data)
		_, err = v.Stat("/a")
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("directory onto file", func(t *testing.T) {
		v := createTestFS(t)
		require.NoError(t, v.Mkdir("/d", 0o755))
		require.NoError(t, v.WriteFile("/f", nil, 0o644))
		requireErrno(t, v.Rename("/d", "/f"), syscall.ENOTDIR)
	})

	t.Run("file onto directory", func(t *testing.T) {
		v := createTestFS(t)
		require.NoError(t, v.Mkdir("/d", 0o755))
		require.NoError(t, v.WriteFile("/f", nil, 0o644))
		requireErrno(t, v.Rename("/f", "/d"), syscall.EEXIST)
	})

	t.Run("into itself", func(t *testing.T) {
		v := createTestFS(t)
		require.NoError(t, v.MkdirAll("/d/e", 0o755))
		requireErrno(t, v.Rename("/d", "/d/e/d"), syscall.EINVAL)
	})

	t.Run("through linked parent", func(t *testing.T) {
		v := createTestFS(t)
		require.NoError(t, v.Mkdir("/real", 0o755))
		require.NoError(t, v.Symlink("/real", "/alias"))
		require.NoError(t, v.WriteFile("/f", []byte("x"), 0o644))

		require.NoError(t, v.Rename("/f", "/alias/f"))
		_, err := v.Lstat("/real/f")
		require.NoError(t, err)
	})
}

func TestSymlink(t *testing.T) {
	t.Parallel()
	v := createTestFS(t)
	require.NoError(t, v.MkdirAll("/dir", 0o755))
	require.NoError(t, v.WriteFile("/dir/f", []byte("content"), 0o644))
	require.NoError(t, v.Symlink("/dir/f", "/lf"))
	require.NoError(t, v.Symlink("/dir", "/ld"))

	target, err := v.Readlink("/lf")
	require.NoError(t, err)
	assert.Equal(t, "/dir/f", target)

	info, err := v.Lstat("/lf")
	require.NoError(t, err)
	assert.Equal(t, fs.ModeSymlink, info.Mode().Type())

	info, err = v.Stat("/lf")
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())

	data, err := v.ReadFile("/ld/f")
	require.NoError(t, err, "intermediate links are followed")
	assert.Equal(t, []byte("content"), data)

	_, err = v.Readlink("/dir")
	requireErrno(t, err, syscall.EINVAL)

	requireErrno(t, v.Symlink("/missing", "/lm"), syscall.ENOENT)

	require.NoError(t, v.Remove("/dir/f"))
	_, err = v.Stat("/lf")
	requireErrno(t, err, syscall.ENOENT)
	_, err = v.Readlink("/lf")
	requireErrno(t, err, syscall.ENOENT)
}

func TestSymlinkCycle(t *testing.T) {
	t.Parallel()
	v := createTestFS(t)
	require.NoError(t, v.WriteFile("/f", nil, 0o644))
	require.NoError(t, v.Symlink("/f", "/a"))
	require.NoError(t, v.Symlink("/a", "/b"))

	a, err := v.Container().GetNodeAt("/a")
	require.NoError(t, err)
	b, err := v.Container().GetNodeAt("/b")
	require.NoError(t, err)
	require.NoError(t, a.SetTarget(b))

	_, err = v.Stat("/a")
	requireErrno(t, err, syscall.ELOOP)
}

func TestChmodChown(t *testing.T) {
	t.Parallel()
	v := createTestFS(t)
	require.NoError(t, v.WriteFile("/f", nil, 0o644))

	require.NoError(t, v.Chmod("/f", 0o600|fs.ModeSetuid))
	info, err := v.Stat("/f")
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o600)|fs.ModeSetuid, info.Mode())

	other := v.As(2000, 2000)
	requireErrno(t, other.Chmod("/f", 0o777), syscall.EPERM)
	requireErrno(t, other.Chown("/f", 2000, 2000), syscall.EPERM)

	// the owner cannot give the file away
	requireErrno(t, v.Chown("/f", 2000, -1), syscall.EPERM)
	require.NoError(t, v.Chown("/f", -1, int(ownerGID)))

	root := v.As(filesystem.SuperUserID, filesystem.SuperUserID)
	require.NoError(t, root.Chown("/f", 2000, 3000))
	attr, ok := AttrOf(mustStat(t, v, "/f"))
	require.True(t, ok)
	assert.Equal(t, uint32(2000), attr.Uid)
	assert.Equal(t, uint32(3000), attr.Gid)
}

func mustStat(t *testing.T, v *FS, name string) fs.FileInfo {
	t.Helper()
	info, err := v.Stat(name)
	require.NoError(t, err)
	return info
}

func TestReadDir(t *testing.T) {
	t.Parallel()
	v := createTestFS(t)
	require.NoError(t, v.MkdirAll("/d/sub", 0o755))
	require.NoError(t, v.WriteFile("/d/b.txt", nil, 0o644))
	require.NoError(t, v.Symlink("/d/b.txt", "/d/a.lnk"))

	entries, err := v.ReadDir("/d")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a.lnk", entries[0].Name())
	assert.Equal(t, fs.ModeSymlink, entries[0].Type())
	assert.Equal(t, "b.txt", entries[1].Name())
	assert.True(t, entries[1].Type().IsRegular())
	assert.Equal(t, "sub", entries[2].Name())
	assert.True(t, entries[2].IsDir())

	_, err = v.ReadDir("/d/b.txt")
	requireErrno(t, err, syscall.ENOTDIR)
}

func TestFile_ReadDirBatches(t *testing.T) {
	t.Parallel()
	v := createTestFS(t)
	for _, name := range []string{"/a", "/b", "/c"} {
		require.NoError(t, v.WriteFile(name, nil, 0o644))
	}
	d, err := v.Open("/")
	require.NoError(t, err)
	defer d.Close()

	names, err := d.Readdirnames(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
	names, err = d.Readdirnames(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, names)
	_, err = d.Readdirnames(2)
	assert.ErrorIs(t, err, io.EOF)

	info, err := d.Stat()
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "/", info.Name())
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	v := createTestFS(t)
	require.NoError(t, v.WriteFile("/f", []byte("hello"), 0o644))

	require.NoError(t, v.Truncate("/f", 2))
	data, err := v.ReadFile("/f")
	require.NoError(t, err)
	assert.Equal(t, []byte("he"), data)

	require.NoError(t, v.Mkdir("/d", 0o755))
	requireErrno(t, v.Truncate("/d", 0), syscall.EISDIR)
	requireErrno(t, v.As(2000, 2000).Truncate("/f", 0), syscall.EACCES)
}

func TestErrno(t *testing.T) {
	t.Parallel()
	c := filesystem.NewContainer(config.NewDefaultConfig())
	_, notFound := c.GetNodeAt("/missing")

	assert.Equal(t, syscall.Errno(0), Errno(nil))
	assert.Equal(t, syscall.ENOENT, Errno(notFound))
	assert.Equal(t, syscall.EACCES, Errno(&fs.PathError{Op: "open", Path: "/x", Err: syscall.EACCES}))
	assert.Equal(t, syscall.EIO, Errno(errors.New("boom")))

	wrapped := wrap("stat", "/missing", notFound)
	assert.ErrorIs(t, wrapped, fs.ErrNotExist)
	assert.Same(t, wrapped, wrap("again", "/other", wrapped))
}

func TestFileMode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		unix uint32
		mode fs.FileMode
	}{
		{uint32(filesystem.FileAttr) | 0o644, 0o644},
		{uint32(filesystem.DirAttr) | 0o755, fs.ModeDir | 0o755},
		{uint32(filesystem.SymlinkAttr) | 0o777, fs.ModeSymlink | 0o777},
		{uint32(filesystem.DirAttr) | 0o1777, fs.ModeDir | fs.ModeSticky | 0o777},
		{uint32(filesystem.FileAttr) | 0o6755, fs.ModeSetuid | fs.ModeSetgid | 0o755},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.mode, FileMode(tt.unix))
		assert.Equal(t, tt.unix&filesystem.PermMask, UnixPerm(tt.mode))
	}
}
