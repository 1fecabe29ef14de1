package filesystem

import (
	"strings"
	"sync"

	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/google/uuid"
)

// Container owns the root of one tree and performs every path addressed
// lookup and structural mutation on it.
//
// Paths are absolute and slash separated. They are expected to be normalized
// by the caller: "." and ".." have no special meaning, empty segments from
// repeated or trailing slashes are skipped. Links are never followed during
// resolution; a link in an intermediate position is a NotADirectory failure.
//
// Structural mutations hold mu exclusively and lookups hold it shared, so a
// concurrent reader observes a Move or Remove either entirely or not at all.
// Permission policy is not enforced here; callers combine [Container.Checker]
// with these operations.
type Container struct {
	cfg     *config.Config
	id      uuid.UUID
	root    *Node
	factory *Factory
	checker *Checker
	mu      sync.RWMutex
}

// NewContainer creates an empty tree using the system clock
func NewContainer(cfg *config.Config) *Container {
	return NewContainerWithClock(cfg, nil)
}

// NewContainerWithClock creates an empty tree whose nodes take their
// timestamps from clock
func NewContainerWithClock(cfg *config.Config, clock Clock) *Container {
	logger := util.GetLogger("NewContainer")
	factory := NewFactory(cfg, clock)
	c := &Container{
		cfg:     cfg,
		id:      uuid.New(),
		root:    factory.NewRoot(),
		factory: factory,
		checker: NewChecker(factory.UID(), factory.GID()),
	}
	logger.Debug().
		Str("id", c.id.String()).
		Uint32("uid", factory.UID()).
		Uint32("gid", factory.GID()).
		Msg("Created container")
	return c
}

// ID uniquely identifies this container for logging and registries
func (c *Container) ID() uuid.UUID { return c.id }

func (c *Container) Root() *Node { return c.root }

// Checker answers permission queries for the identity the container was
// created with
func (c *Container) Checker() *Checker { return c.checker }

func (c *Container) Factory() *Factory { return c.factory }

func (c *Container) Config() *config.Config { return c.cfg }

// HasNodeAt reports whether p resolves
func (c *Container) HasNodeAt(p string) bool {
	_, err := c.GetNodeAt(p)
	return err == nil
}

// GetNodeAt resolves p. A trailing link is returned as is.
func (c *Container) GetNodeAt(p string) (*Node, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolveLocked("lookup", p)
}

// GetDirectoryAt resolves p and requires the result to be a directory
func (c *Container) GetDirectoryAt(p string) (*Node, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	node, err := c.resolveLocked("lookup", p)
	if err != nil {
		return nil, err
	}
	if !node.IsDir() {
		return nil, newError("lookup", p, NotADirectory, node.Kind())
	}
	return node, nil
}

// CreateFile creates an empty file at p with the configured file permissions.
// The parent must already exist.
func (c *Container) CreateFile(p string) (*Node, error) {
	return c.CreateFileMode(p, c.cfg.FilePerms)
}

// CreateFileMode creates an empty file at p with permission bits perm
func (c *Container) CreateFileMode(p string, perm uint32) (*Node, error) {
	logger := util.GetLogger("Container.CreateFile")
	c.mu.Lock()
	defer c.mu.Unlock()

	parent, name, err := c.parentLocked("create", p)
	if err != nil {
		return nil, err
	}
	if existing, ok := parent.GetChild(name); ok {
		return nil, newError("create", p, PathAlreadyExists, existing.Kind())
	}

	node := c.factory.NewFile(name, perm)
	c.attachLocked(parent, node)
	logger.Debug().Str("path", p).Msg("Created file")
	return node, nil
}

// CreateDir creates a directory at p with permission bits perm. When
// recursive is set, missing ancestors are created with the same perm;
// otherwise the parent must exist. An occupied target always fails.
func (c *Container) CreateDir(p string, recursive bool, perm uint32) (*Node, error) {
	logger := util.GetLogger("Container.CreateDir")
	c.mu.Lock()
	defer c.mu.Unlock()

	segs, err := splitPath("mkdir", p)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, newError("mkdir", p, PathAlreadyExists, KindRoot)
	}

	var parent *Node
	if recursive {
		parent, err = c.ensureDirsLocked(p, segs[:len(segs)-1], perm)
	} else {
		parent, _, err = c.parentLocked("mkdir", p)
	}
	if err != nil {
		return nil, err
	}

	name := segs[len(segs)-1]
	if existing, ok := parent.GetChild(name); ok {
		return nil, newError("mkdir", p, PathAlreadyExists, existing.Kind())
	}
	node := c.factory.NewDir(name, perm)
	c.attachLocked(parent, node)
	logger.Debug().Str("path", p).Bool("recursive", recursive).Msg("Created directory")
	return node, nil
}

// CreateLink creates a link at p pointing to dest. The link is not resolved
// and dest may itself be a link.
func (c *Container) CreateLink(p string, dest *Node) (*Node, error) {
	logger := util.GetLogger("Container.CreateLink")
	if dest == nil || dest.IsDel() {
		return nil, newError("symlink", p, PathNotFound, KindNone)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	parent, name, err := c.parentLocked("symlink", p)
	if err != nil {
		return nil, err
	}
	if existing, ok := parent.GetChild(name); ok {
		return nil, newError("symlink", p, PathAlreadyExists, existing.Kind())
	}

	node := c.factory.NewLink(name, dest)
	c.attachLocked(parent, node)
	logger.Debug().Str("path", p).Str("target", dest.Name()).Msg("Created link")
	return node, nil
}

// Move detaches the node at from and reattaches it at to under the new
// basename, keeping its identity. An existing non-directory at to is
// replaced; an existing directory fails with PathAlreadyExists. Moving the
// root, or a directory beneath itself, fails with InvalidPath.
func (c *Container) Move(from, to string) (*Node, error) {
	logger := util.GetLogger("Container.Move")
	c.mu.Lock()
	defer c.mu.Unlock()

	node, err := c.resolveLocked("move", from)
	if err != nil {
		return nil, err
	}
	if node.IsRoot() {
		return nil, newError("move", from, InvalidPath, KindRoot)
	}
	dstParent, dstName, err := c.parentLocked("move", to)
	if err != nil {
		return nil, err
	}
	for anc := dstParent; anc != nil; anc = anc.Parent() {
		if anc == node {
			return nil, newError("move", to, InvalidPath, node.Kind())
		}
	}

	existing, occupied := dstParent.GetChild(dstName)
	if occupied && existing == node {
		return node, nil
	}
	if occupied && existing.IsDir() {
		return nil, newError("move", to, PathAlreadyExists, existing.Kind())
	}

	srcParent := node.Parent()
	if occupied {
		dstParent.RemoveChild(dstName)
		existing.Del()
	}
	srcParent.RemoveChild(node.Name())
	node.setName(dstName)
	dstParent.AddChild(node)

	node.touch(touchCtime)
	srcParent.touch(touchMtime | touchCtime)
	if dstParent != srcParent {
		dstParent.touch(touchMtime | touchCtime)
	}
	logger.Debug().Str("from", from).Str("to", to).Bool("replaced", occupied).Msg("Moved node")
	return node, nil
}

// Remove detaches the node at p from its parent and marks its subtree
// deleted. Emptiness of directories is caller policy and is not checked
// here; recursive only documents the caller's intent in the logs.
func (c *Container) Remove(p string, recursive bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked("remove", p, recursive, false)
}

// RemoveIfEmpty is Remove for callers that refuse to drop a non-empty
// directory. The emptiness check and the detach happen under one hold of
// the structural lock, so a concurrent create cannot land in between.
// A non-empty directory fails with NotEmpty and the tree is unchanged.
func (c *Container) RemoveIfEmpty(p string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked("remove", p, false, true)
}

// removeLocked does the work of Remove. Caller must hold c.mu.Lock().
func (c *Container) removeLocked(op, p string, recursive, requireEmpty bool) error {
	logger := util.GetLogger("Container.Remove")
	node, err := c.resolveLocked(op, p)
	if err != nil {
		return err
	}
	if node.IsRoot() {
		return newError(op, p, InvalidPath, KindRoot)
	}
	if requireEmpty && node.IsDir() && node.ChildCount() > 0 {
		return newError(op, p, NotEmpty, KindDir)
	}

	parent := node.Parent()
	parent.RemoveChild(node.Name())
	node.Del()
	parent.touch(touchMtime | touchCtime)
	logger.Debug().
		Str("path", p).
		Bool("recursive", recursive).
		Int("children", node.ChildCount()).
		Msg("Removed node")
	return nil
}

// attachLocked links a freshly built node under parent.
// Caller must hold c.mu.Lock().
func (c *Container) attachLocked(parent, node *Node) {
	parent.AddChild(node)
	parent.touch(touchMtime | touchCtime)
}

// ensureDirsLocked walks segs from the root creating missing directories
// with perm and returns the last one. Caller must hold c.mu.Lock().
func (c *Container) ensureDirsLocked(p string, segs []string, perm uint32) (*Node, error) {
	logger := util.GetLogger("Container.ensureDirs")
	cur := c.root
	newCnt := 0
	for _, name := range segs {
		if child, ok := cur.GetChild(name); ok {
			if !child.IsDir() {
				return nil, newError("mkdir", p, NotADirectory, child.Kind())
			}
			cur = child
			continue
		}
		dir := c.factory.NewDir(name, perm)
		c.attachLocked(cur, dir)
		newCnt++
		cur = dir
	}
	if newCnt > 0 {
		logger.Debug().Str("path", p).Int("created", newCnt).Msg("Created missing ancestor directories")
	}
	return cur, nil
}

// resolveLocked walks p from the root. Caller must hold c.mu.
func (c *Container) resolveLocked(op, p string) (*Node, error) {
	segs, err := splitPath(op, p)
	if err != nil {
		return nil, err
	}
	return c.walkLocked(op, p, segs)
}

func (c *Container) walkLocked(op, p string, segs []string) (*Node, error) {
	cur := c.root
	for _, name := range segs {
		if !cur.IsDir() {
			return nil, newError(op, p, NotADirectory, cur.Kind())
		}
		child, ok := cur.GetChild(name)
		if !ok {
			return nil, newError(op, p, PathNotFound, KindNone)
		}
		cur = child
	}
	return cur, nil
}

// parentLocked resolves the directory that would hold p and returns it with
// p's basename. Caller must hold c.mu.
func (c *Container) parentLocked(op, p string) (*Node, string, error) {
	segs, err := splitPath(op, p)
	if err != nil {
		return nil, "", err
	}
	if len(segs) == 0 {
		return nil, "", newError(op, p, InvalidPath, KindRoot)
	}
	parent, err := c.walkLocked(op, p, segs[:len(segs)-1])
	if err != nil {
		return nil, "", err
	}
	if !parent.IsDir() {
		return nil, "", newError(op, p, NotADirectory, parent.Kind())
	}
	return parent, segs[len(segs)-1], nil
}

// splitPath breaks an absolute path into its non-empty segments.
// "/" yields no segments.
func splitPath(op, p string) ([]string, error) {
	if !strings.HasPrefix(p, "/") {
		return nil, newError(op, p, InvalidPath, KindNone)
	}
	raw := strings.Split(p, "/")
	segs := raw[:0]
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs, nil
}
