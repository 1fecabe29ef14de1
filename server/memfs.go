package server

import (
	"errors"
	"sync"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/filesystem"
	"github.com/brettbedarf/memfs/fusefs"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/vfs"
)

// ErrMounted is returned by Serve on a MemFs that is already mounted
var ErrMounted = errors.New("filesystem already mounted")

// MemFs pairs a container with the FUSE server that exposes it
type MemFs struct {
	*vfs.FS
	cfg *config.Config

	mu     sync.Mutex // guards server
	server *fuse.Server
}

// New creates a MemFs with a fresh container built from cfg.
func New(cfg *config.Config) *MemFs {
	return NewWithContainer(cfg, filesystem.NewContainer(cfg))
}

// NewWithContainer serves an existing container, e.g. one from a registry
func NewWithContainer(cfg *config.Config, c *filesystem.Container) *MemFs {
	return &MemFs{
		FS:  vfs.New(c),
		cfg: cfg,
	}
}

// Options builds the go-fuse mount options from the config
func (m *MemFs) Options() *fs.Options {
	opts := m.cfg.MountOptions
	attrTimeout := seconds(m.cfg.AttrTimeout)
	entryTimeout := seconds(m.cfg.EntryTimeout)
	return &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:   opts.Name,
			FsName: opts.FsName,
			Debug:  opts.Debug || m.cfg.LogLvl == util.TraceLevel,
			Logger: util.NewLogLogger("FuseServer", util.TraceLevel),
		},
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
	}
}

// Serve mounts the filesystem at mountPoint and returns once the mount is
// live. Requests are served in the background until Unmount.
func (m *MemFs) Serve(mountPoint string) error {
	logger := util.GetLogger("Server.Serve")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server != nil {
		return ErrMounted
	}
	srv, err := fs.Mount(mountPoint, fusefs.NewRoot(m.FS), m.Options())
	if err != nil {
		return err
	}
	m.server = srv
	logger.Debug().
		Str("mountpoint", mountPoint).
		Str("container", m.Container().ID().String()).
		Msg("Mounted")
	return nil
}

func (m *MemFs) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- m.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Mounted reports whether Serve succeeded and Unmount has not since
func (m *MemFs) Mounted() bool {
	return m.fuseServer() != nil
}

// Wait blocks until the filesystem is unmounted. It returns at once if
// nothing is mounted.
func (m *MemFs) Wait() {
	if srv := m.fuseServer(); srv != nil {
		srv.Wait()
	}
}

// Unmount cleanly unmounts the filesystem. Unmounting a MemFs that is not
// mounted is a no-op.
func (m *MemFs) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server == nil {
		return nil
	}
	if err := m.server.Unmount(); err != nil {
		return err
	}
	m.server = nil
	return nil
}

func (m *MemFs) fuseServer() *fuse.Server {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.server
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
