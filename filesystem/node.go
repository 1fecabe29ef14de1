package filesystem

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// Kind tags the variant of a [Node]
type Kind int

const (
	KindNone Kind = iota
	KindFile
	KindDir
	KindRoot
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "directory"
	case KindRoot:
		return "root directory"
	case KindLink:
		return "link"
	default:
		return "none"
	}
}

// Node is an element of the tree: a file, directory, root directory or link.
// Directories own their children; a link only references its target and a
// child only references its parent.
type Node struct {
	name     string                    // Name of the node (last part of the path). Protected by mu
	parent   *Node                     // Protected by mu
	target   *Node                     // Link destination. Protected by mu
	mu       sync.RWMutex              // Protects the fields above
	kind     Kind                      // Immutable
	children *xsync.Map[string, *Node] // thread-safe map of child nodes by name; nil unless a directory
	isDel    atomic.Bool
	*Inode
}

// newNode creates a detached Node. Only the [Factory] calls this so every
// node is stamped with identity and timestamps.
//
// NOTE: Parent node is responsible for adding itself to the returned Node's
// Parent ref when linking as its child
func newNode(name string, kind Kind, inode *Inode) (*Node, error) {
	if inode == nil {
		return nil, fmt.Errorf("cannot create node with nil inode")
	}
	node := &Node{
		Inode: inode,
		name:  name,
		kind:  kind,
	}
	if kind == KindDir || kind == KindRoot {
		node.children = xsync.NewMap[string, *Node]()
	}
	return node, nil
}

// Name returns the node's basename. The root's name is empty.
func (n *Node) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

func (n *Node) setName(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.name = name
}

func (n *Node) Kind() Kind { return n.kind }

// IsDir is true for directories, including the root
func (n *Node) IsDir() bool  { return n.kind == KindDir || n.kind == KindRoot }
func (n *Node) IsFile() bool { return n.kind == KindFile }
func (n *Node) IsLink() bool { return n.kind == KindLink }
func (n *Node) IsRoot() bool { return n.kind == KindRoot }

// Parent returns the owning directory; nil for the root and detached nodes
func (n *Node) Parent() *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent
}

// Path returns the absolute path of the node. The root's path is "/".
//
// Returns an error if the node or an ancestor is detached or deleted, along
// with the partial path built so far
func (n *Node) Path() (string, error) {
	if n.IsRoot() {
		return "/", nil
	}
	var parts []string
	cur := n
	for !cur.IsRoot() {
		if cur.IsDel() {
			return "", fmt.Errorf("deleted node: %s", cur.Name())
		}
		cur.mu.RLock()
		name, parent := cur.name, cur.parent
		cur.mu.RUnlock()
		parts = append(parts, name)
		if parent == nil {
			slices.Reverse(parts)
			return strings.Join(parts, "/"), fmt.Errorf("detached node: %s", name)
		}
		cur = parent
	}
	slices.Reverse(parts)
	return "/" + strings.Join(parts, "/"), nil
}

// AddChild adds a child node to the node's children map
// and sets the child's parent to this node. Timestamps are left alone.
func (n *Node) AddChild(child *Node) {
	child.mu.Lock()
	child.parent = n
	name := child.name
	child.mu.Unlock()
	n.children.Store(name, child)
}

// GetChild returns a child node by basename
func (n *Node) GetChild(name string) (child *Node, ok bool) {
	if n.children == nil {
		return nil, false
	}
	return n.children.Load(name)
}

// RemoveChild detaches and returns the named child. Timestamps are left alone.
func (n *Node) RemoveChild(name string) (*Node, bool) {
	if n.children == nil {
		return nil, false
	}
	child, exists := n.children.LoadAndDelete(name)
	if !exists {
		return nil, false
	}
	child.mu.Lock()
	defer child.mu.Unlock()
	child.parent = nil
	return child, true
}

// Children returns the basenames of the direct children in sorted order
func (n *Node) Children() []string {
	if n.children == nil {
		return nil
	}
	names := make([]string, 0, n.children.Size())
	n.children.Range(func(name string, _ *Node) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

// ChildCount returns the number of direct children
func (n *Node) ChildCount() int {
	if n.children == nil {
		return 0
	}
	return n.children.Size()
}

func (n *Node) IsDel() bool {
	return n.isDel.Load()
}

// Del marks the node and its whole subtree as deleted. Links pointing into a
// deleted subtree dangle from then on.
func (n *Node) Del() {
	n.isDel.Store(true)
	if n.children == nil {
		return
	}
	n.children.Range(func(_ string, child *Node) bool {
		child.Del()
		return true
	})
}

// Stat returns the stat projection of the node. Size is the content length
// for files, [DirSize] for directories and the target path length for links.
func (n *Node) Stat() fuse.Attr {
	attr := n.CopyAttr()
	attr.Nlink = 1
	switch n.kind {
	case KindDir, KindRoot:
		attr.Size = DirSize
		attr.Nlink = 2
	case KindLink:
		attr.Size = uint64(len(n.TargetPath()))
	}
	attr.Blocks = (attr.Size + 511) / 512
	return attr
}
