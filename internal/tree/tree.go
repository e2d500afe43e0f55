package tree

import (
	"sync"

	"github.com/cdptech/cdpclient/internal/cdperrors"
	"github.com/cdptech/cdpclient/internal/pending"
	"github.com/cdptech/cdpclient/internal/wire"
)

// NodeTree owns at most one root Node, selected from the server's
// system-structure response as the child flagged "local" (spec.md §4.2,
// SPEC_FULL.md §12.2), and indexes into it by id and path. It survives
// reconnects: node ids may be reassigned by the server, but the tree's
// shape and Node pointers are preserved wherever names match
// (spec.md §4.3.1). mu guards every Node's structural fields and
// subscriber lists, since the goroutines awaiting a structure/value round
// trip are not the single dispatching goroutine (spec.md §9).
type NodeTree struct {
	mu   sync.Mutex
	root *Node
	req  Requester

	rootWaiters  []*pending.Future
	fetchingRoot bool
}

// New constructs an empty NodeTree. Root is nil until Root() or Refresh()
// materialises it from a system-structure response.
func New(req Requester) *NodeTree {
	return &NodeTree{req: req}
}

// Root resolves the tree's root: if not yet materialised, requests the
// system/root structure (path=nil), selects the child flagged "local",
// installs it as root, and performs its initial refresh; otherwise
// resolves immediately with the cached root (spec.md §4.2).
func (t *NodeTree) Root() *pending.Future {
	t.mu.Lock()
	if t.root != nil {
		r := t.root
		t.mu.Unlock()
		f := pending.NewFuture()
		resolveNow(f, r, nil)
		return f
	}
	f := pending.NewFuture()
	t.rootWaiters = append(t.rootWaiters, f)
	already := t.fetchingRoot
	t.fetchingRoot = true
	t.mu.Unlock()

	if !already {
		go t.fetchRoot()
	}
	return f
}

// CachedRoot returns the current root Node without triggering a fetch,
// or nil if it has not yet been resolved (SPEC_FULL.md §11.3 debugsrv,
// which needs a synchronous snapshot rather than a Future).
func (t *NodeTree) CachedRoot() *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

func (t *NodeTree) fetchRoot() {
	sysFut := t.req.RequestStructure(nil, 0, true)
	outcome := sysFut.Recv()

	var err error
	if outcome.Err != nil {
		err = outcome.Err
	} else {
		children, _ := outcome.Value.([]wire.NodeInfo)
		err = t.installOrUpdateRoot(children)
	}

	t.mu.Lock()
	waiters := t.rootWaiters
	t.rootWaiters = nil
	t.fetchingRoot = false
	root := t.root
	t.mu.Unlock()

	for _, w := range waiters {
		if err != nil {
			w.Resolve(pending.Outcome{Err: err})
		} else {
			w.Resolve(pending.Outcome{Value: root})
		}
	}
}

// installOrUpdateRoot picks the child flagged "local" out of a
// system-structure response and either updates the existing root in
// place (if the selected application's name is unchanged across
// reconnect) or replaces it with a freshly constructed Node, then
// performs its initial/refresh structure fetch.
func (t *NodeTree) installOrUpdateRoot(children []wire.NodeInfo) error {
	var local *wire.NodeInfo
	for i := range children {
		if children[i].Flags.IsLocal() {
			local = &children[i]
			break
		}
	}
	if local == nil {
		return &cdperrors.UnknownError{Msg: "no local application in system structure"}
	}

	t.mu.Lock()
	var node *Node
	if t.root != nil && t.root.name == local.Name {
		node = t.root
		node.id = local.ID
		node.kind = local.Kind
		node.valueType = local.ValueType
		node.flags = local.Flags
	} else {
		node = newNode(*local, nil, t)
		t.root = node
	}
	t.mu.Unlock()

	return t.refreshRoot(node)
}

// refreshRoot issues (and synchronously, within the caller's own
// goroutine, awaits) a structure request for node's own children. A LEAF
// root has no sub-structure to fetch.
func (t *NodeTree) refreshRoot(node *Node) error {
	if node.IsLeaf() {
		return nil
	}
	path := node.Path()
	fut := t.req.RequestStructure(&path, node.id, false)
	outcome := fut.Recv()
	if outcome.Err != nil {
		return outcome.Err
	}
	children, _ := outcome.Value.([]wire.NodeInfo)
	node.applyStructure(children)
	return nil
}

// FindByID walks the cached tree depth-first looking for id. Returns nil
// if no cached node has that id (e.g. in an unexpanded subtree) or no
// root has been materialised yet.
func (t *NodeTree) FindByID(id uint32) *Node {
	t.mu.Lock()
	root := t.root
	t.mu.Unlock()
	if root == nil {
		return nil
	}
	return t.findByID(root, id)
}

// findByID reads each node's id and children snapshot under t.mu, since
// applyStructure mutates both from other goroutines (spec.md §9).
func (t *NodeTree) findByID(n *Node, id uint32) *Node {
	t.mu.Lock()
	nid := n.id
	children := append([]*Node(nil), n.children...)
	t.mu.Unlock()

	if nid == id {
		return n
	}
	for _, c := range children {
		if found := t.findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// FindByPath resolves a dotted path against the locally cached tree only;
// it never issues wire traffic and returns nil if any segment along the
// way is not yet cached (spec.md §4.2). The leading segment, the root's
// own name, may be included or omitted.
func (t *NodeTree) FindByPath(dotted string) *Node {
	t.mu.Lock()
	cur := t.root
	t.mu.Unlock()
	if cur == nil {
		return nil
	}

	tokens := pathTokens(dotted)
	if len(tokens) == 0 {
		return nil
	}
	start := 0
	if tokens[0] == cur.name {
		start = 1
	}
	for _, tok := range tokens[start:] {
		t.mu.Lock()
		cur = cur.findChildByName(tok)
		t.mu.Unlock()
		if cur == nil {
			return nil
		}
	}
	return cur
}

// ApplyValue routes a decoded Variant to the cached Node with its id.
func (t *NodeTree) ApplyValue(v wire.Variant) error {
	n := t.FindByID(v.NodeID)
	if n == nil {
		return &cdperrors.NotFoundError{Name: "<unknown node id>"}
	}
	return n.applyValue(v)
}

// RefreshNode re-requests structure for the cached node with this id and
// applies the result; fire-and-forget, used for StructureChangeResponse
// (spec.md §4.4 dispatch table). A no-op if the id isn't cached or names
// a leaf.
func (t *NodeTree) RefreshNode(id uint32) {
	n := t.FindByID(id)
	if n == nil {
		return
	}
	t.mu.Lock()
	isRoot := n == t.root
	t.mu.Unlock()
	if isRoot {
		go func() { _ = t.refreshRoot(n) }()
		return
	}
	if n.IsLeaf() {
		return
	}
	path := n.Path()
	fut := t.req.RequestStructure(&path, n.id, false)
	go func() {
		outcome := fut.Recv()
		if outcome.Err != nil {
			return
		}
		children, _ := outcome.Value.([]wire.NodeInfo)
		n.applyStructure(children)
	}()
}

// Refresh re-fetches the system structure, re-resolves the root (which
// may now be a different application than before), then recursively
// refreshes every already-expanded subtree, skipping subtrees never
// expanded (spec.md §4.2).
func (t *NodeTree) Refresh() *pending.Future {
	f := pending.NewFuture()
	go func() {
		sysFut := t.req.RequestStructure(nil, 0, true)
		outcome := sysFut.Recv()
		if outcome.Err != nil {
			resolveNow(f, nil, outcome.Err)
			return
		}
		children, _ := outcome.Value.([]wire.NodeInfo)
		if err := t.installOrUpdateRoot(children); err != nil {
			resolveNow(f, nil, err)
			return
		}

		t.mu.Lock()
		root := t.root
		t.mu.Unlock()
		if root != nil {
			t.refreshExpandedChildren(root)
		}
		resolveNow(f, nil, nil)
	}()
	return f
}

func (t *NodeTree) refreshExpandedChildren(n *Node) {
	t.mu.Lock()
	kids := append([]*Node(nil), n.children...)
	t.mu.Unlock()

	for _, c := range kids {
		if c.expanded && !c.IsLeaf() {
			path := c.Path()
			fut := t.req.RequestStructure(&path, c.id, false)
			outcome := fut.Recv()
			if outcome.Err == nil {
				children, _ := outcome.Value.([]wire.NodeInfo)
				c.applyStructure(children)
			}
		}
		t.refreshExpandedChildren(c)
	}
}
