package filesystem

// Permission bit triplets, shifted into owner/group/other position by class
const (
	permRead  uint32 = 0o4
	permWrite uint32 = 0o2
	permExec  uint32 = 0o1
)

// Checker answers permission queries for one identity. It never raises
// errors or logs; callers decide what a false answer means.
type Checker struct {
	uid uint32
	gid uint32
}

// NewChecker returns a Checker for the identity uid/gid.
// A uid of [SuperUserID] passes every access query.
func NewChecker(uid, gid uint32) *Checker {
	return &Checker{uid: uid, gid: gid}
}

func (c *Checker) UID() uint32 { return c.uid }
func (c *Checker) GID() uint32 { return c.gid }

func (c *Checker) IsReadable(n *Node) bool   { return c.allowed(n, permRead) }
func (c *Checker) IsWritable(n *Node) bool   { return c.allowed(n, permWrite) }
func (c *Checker) IsExecutable(n *Node) bool { return c.allowed(n, permExec) }

// UserIsOwner reports a uid match only; the superuser is not treated as owner
func (c *Checker) UserIsOwner(n *Node) bool {
	return c.uid == n.UID()
}

// UserIsRoot reports whether the checking identity is the superuser
func (c *Checker) UserIsRoot() bool {
	return c.uid == SuperUserID
}

// allowed selects the owner, group or other bit triplet, in that order of
// precedence, and tests bit against it
func (c *Checker) allowed(n *Node, bit uint32) bool {
	if c.UserIsRoot() {
		return true
	}
	attr := n.CopyAttr()
	switch {
	case c.uid == attr.Uid:
		return attr.Mode&(bit<<6) != 0
	case c.gid == attr.Gid:
		return attr.Mode&(bit<<3) != 0
	default:
		return attr.Mode&bit != 0
	}
}
