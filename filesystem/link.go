package filesystem

// Target returns the immediate destination of a link; nil for other kinds
func (n *Node) Target() *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.target
}

// SetTarget repoints a link. Updates ctime.
func (n *Node) SetTarget(dest *Node) error {
	if n.kind != KindLink {
		return newError("settarget", n.Name(), InvalidArgument, n.kind)
	}
	if dest == nil {
		return newError("settarget", n.Name(), InvalidArgument, KindNone)
	}
	n.mu.Lock()
	n.target = dest
	n.mu.Unlock()
	n.touch(touchCtime)
	return nil
}

// TargetPath returns the absolute path of the link's immediate destination,
// or "" when the node is not a link or the destination is no longer attached.
func (n *Node) TargetPath() string {
	dest := n.Target()
	if dest == nil {
		return ""
	}
	p, err := dest.Path()
	if err != nil {
		return ""
	}
	return p
}

// Resolve follows the link chain until it reaches a node that is not a link.
// Non-link nodes resolve to themselves. Fails with CyclicLink if the chain
// revisits a node and with PathNotFound if a destination has been removed.
func (n *Node) Resolve() (*Node, error) {
	visited := make(map[*Node]struct{})
	cur := n
	for cur.IsLink() {
		if _, seen := visited[cur]; seen {
			return nil, newError("resolve", n.Name(), CyclicLink, KindLink)
		}
		visited[cur] = struct{}{}

		next := cur.Target()
		if next == nil || next.IsDel() {
			return nil, newError("resolve", n.Name(), PathNotFound, KindLink)
		}
		cur = next
	}
	return cur, nil
}
