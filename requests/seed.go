package requests

import (
	"fmt"
	"path"

	"github.com/brettbedarf/memfs/filesystem"
	"github.com/brettbedarf/memfs/internal/util"
)

// Seed applies every request of tree to c in order. Missing ancestors are
// created with the container's directory permissions. A directory request
// for an existing directory updates its permissions and owner; any other
// occupied path is an error. Seeding stops at the first failure and leaves
// what was already applied in place.
func Seed(c *filesystem.Container, tree *Tree) error {
	logger := util.GetLogger("requests.Seed")
	for _, req := range tree.Requests {
		node, err := apply(c, req)
		if err != nil {
			return fmt.Errorf("seed %s: %w", req.Base().Path, err)
		}
		base := req.Base()
		if base.OwnerUID != nil || base.OwnerGID != nil {
			node.SetOwner(util.ValueOrDefault(base.OwnerUID, node.UID()), util.ValueOrDefault(base.OwnerGID, node.GID()))
		}
		logger.Trace().Str("path", base.Path).Str("type", string(base.Type)).Msg("Seeded node")
	}
	logger.Debug().Int("count", len(tree.Requests)).Msg("Seeded container")
	return nil
}

func apply(c *filesystem.Container, req Request) (*filesystem.Node, error) {
	switch r := req.(type) {
	case *DirRequest:
		if existing, err := c.GetNodeAt(r.Path); err == nil && existing.IsDir() {
			existing.SetMode(r.Perms)
			return existing, nil
		}
		if err := ensureParent(c, r.Path); err != nil {
			return nil, err
		}
		return c.CreateDir(r.Path, false, r.Perms)
	case *FileRequest:
		if err := ensureParent(c, r.Path); err != nil {
			return nil, err
		}
		node, err := c.CreateFileMode(r.Path, r.Perms)
		if err != nil {
			return nil, err
		}
		if len(r.Content) > 0 {
			node.SetContent(r.Content)
		}
		return node, nil
	case *LinkRequest:
		dest, err := c.GetNodeAt(r.Target)
		if err != nil {
			return nil, err
		}
		if err := ensureParent(c, r.Path); err != nil {
			return nil, err
		}
		return c.CreateLink(r.Path, dest)
	}
	return nil, fmt.Errorf("unknown request type %T", req)
}

func ensureParent(c *filesystem.Container, p string) error {
	dir := path.Dir(p)
	if c.HasNodeAt(dir) {
		return nil
	}
	_, err := c.CreateDir(dir, true, c.Config().DirPerms)
	return err
}
