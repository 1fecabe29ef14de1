// Package registry maps scheme keys to live containers. A container is
// created on registration and torn down on explicit unregistration; engine
// code never looks containers up by key.
package registry

import (
	"fmt"
	"slices"

	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/filesystem"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/puzpuzpuz/xsync/v4"
)

// Registry holds containers by scheme. Safe for concurrent use.
type Registry struct {
	containers *xsync.Map[string, *filesystem.Container]
}

func NewRegistry() *Registry {
	return &Registry{containers: xsync.NewMap[string, *filesystem.Container]()}
}

// Register stores c under scheme and returns the key used. An empty scheme
// registers c under its container ID. A scheme already in use is an error
// and leaves the existing container in place.
func (r *Registry) Register(scheme string, c *filesystem.Container) (string, error) {
	logger := util.GetLogger("Registry.Register")
	if c == nil {
		return "", fmt.Errorf("register %q: nil container", scheme)
	}
	if scheme == "" {
		scheme = c.ID().String()
	}
	if existing, loaded := r.containers.LoadOrStore(scheme, c); loaded {
		return "", fmt.Errorf("register %q: scheme already holds container %s", scheme, existing.ID())
	}
	logger.Debug().Str("scheme", scheme).Str("id", c.ID().String()).Msg("Registered container")
	return scheme, nil
}

// Create builds a new container from cfg and registers it under scheme
func (r *Registry) Create(scheme string, cfg *config.Config) (*filesystem.Container, string, error) {
	c := filesystem.NewContainer(cfg)
	key, err := r.Register(scheme, c)
	if err != nil {
		return nil, "", err
	}
	return c, key, nil
}

// Get returns the container registered under scheme
func (r *Registry) Get(scheme string) (*filesystem.Container, error) {
	c, ok := r.containers.Load(scheme)
	if !ok {
		return nil, fmt.Errorf("no container registered for %q", scheme)
	}
	return c, nil
}

// Unregister removes scheme and returns the container it held. The caller
// owns the container from then on; when dropped, its tree is garbage.
func (r *Registry) Unregister(scheme string) (*filesystem.Container, bool) {
	c, ok := r.containers.LoadAndDelete(scheme)
	if ok {
		logger := util.GetLogger("Registry.Unregister")
		logger.Debug().
			Str("scheme", scheme).
			Str("id", c.ID().String()).
			Msg("Unregistered container")
	}
	return c, ok
}

// Schemes lists the registered keys in sorted order
func (r *Registry) Schemes() []string {
	keys := make([]string, 0, r.containers.Size())
	r.containers.Range(func(k string, _ *filesystem.Container) bool {
		keys = append(keys, k)
		return true
	})
	slices.Sort(keys)
	return keys
}

// Len returns the number of registered containers
func (r *Registry) Len() int { return r.containers.Size() }

// Default is the process wide registry used by the memfs binary
var Default = NewRegistry()
