// Package tree implements the NodeTree/Node cache (spec.md §4.2–§4.3): a
// lazily populated, server-authoritative tree of typed nodes.
package tree

import (
	"strings"

	"github.com/cdptech/cdpclient/internal/cdperrors"
	"github.com/cdptech/cdpclient/internal/pending"
	"github.com/cdptech/cdpclient/internal/wire"
)

// StructureSubscriber is invoked with the names added/removed by a
// structural diff (spec.md §3).
type StructureSubscriber func(added, removed []string)

// ValueSubscriber is invoked with a decoded value and its absolute
// timestamp (server time + session offset, both in nanoseconds).
type ValueSubscriber func(value any, timestampNS int64)

// Node represents one tree position (spec.md §3). Structural fields
// (children, id, kind, value_type, flags) and the subscriber lists are
// guarded by the owning NodeTree's single mutex, since suspension points
// (structure/value round trips) run on caller-spawned goroutines rather
// than a single dedicated loop goroutine (spec.md §5, §9 "futures vs.
// threads" note). name and parent are fixed at construction and never
// locked.
type Node struct {
	tree *NodeTree

	id        uint32
	name      string
	kind      wire.NodeKind
	valueType wire.ValueType
	flags     wire.NodeFlags

	parent   *Node
	children []*Node

	lastValue   any
	lastValueNS int64

	structureSubs []StructureSubscriber
	valueSubs     []valueSub
	nextSubID     uint64

	// expanded is true once this node's children have been fetched at
	// least once via Child/refresh.
	expanded bool
}

func newNode(info wire.NodeInfo, parent *Node, t *NodeTree) *Node {
	return &Node{
		tree:      t,
		id:        info.ID,
		name:      info.Name,
		kind:      info.Kind,
		valueType: info.ValueType,
		flags:     info.Flags,
		parent:    parent,
		lastValue: wire.ZeroValue(info.ValueType),
	}
}

// ID returns the node's current server-assigned id. Not stable across
// reconnects (spec.md §3).
func (n *Node) ID() uint32 { return n.id }

// Name returns the node's name, unique among its siblings.
func (n *Node) Name() string { return n.name }

// Kind returns the node's kind.
func (n *Node) Kind() wire.NodeKind { return n.kind }

// ValueType returns the node's scalar value type.
func (n *Node) ValueType() wire.ValueType { return n.valueType }

// IsLeaf reports whether the LEAF flag is set.
func (n *Node) IsLeaf() bool { return n.flags.Leaf() }

// IsReadOnly reports whether the READ_ONLY flag is set.
func (n *Node) IsReadOnly() bool { return n.flags.ReadOnly() }

// Path computes the dotted path: the node's own name at the root, else
// parent.Path() + "." + name (spec.md §3 invariant i). name and parent
// never change after construction, so this needs no lock.
func (n *Node) Path() string {
	if n.parent == nil {
		return n.name
	}
	return n.parent.Path() + "." + n.name
}

// Parent returns the (non-owning) parent reference, nil at the root.
func (n *Node) Parent() *Node { return n.parent }

// ChildNames returns the names of locally cached children, in order.
func (n *Node) ChildNames() []string {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	names := make([]string, len(n.children))
	for i, c := range n.children {
		names[i] = c.name
	}
	return names
}

// findChildByName must be called with n.tree.mu held.
func (n *Node) findChildByName(name string) *Node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Child resolves the named child's full structure. If no such child is
// cached, the Future resolves with a *cdperrors.NotFoundError. A cached
// LEAF child resolves immediately without wire traffic, since leaves
// cannot have sub-structure. Otherwise a StructureRequest is issued for
// the child and the Future resolves once the response is applied.
func (n *Node) Child(name string) *pending.Future {
	f := pending.NewFuture()

	n.tree.mu.Lock()
	c := n.findChildByName(name)
	n.tree.mu.Unlock()

	if c == nil {
		resolveNow(f, nil, &cdperrors.NotFoundError{Name: name})
		return f
	}
	if c.IsLeaf() {
		resolveNow(f, c, nil)
		return f
	}

	path := c.Path()
	structFut := n.tree.req.RequestStructure(&path, c.id, false)
	go func() {
		outcome := structFut.Recv()
		if outcome.Err != nil {
			resolveNow(f, nil, outcome.Err)
			return
		}
		children, _ := outcome.Value.([]wire.NodeInfo)
		c.applyStructure(children)
		resolveNow(f, c, nil)
	}()
	return f
}

// resolveNow fulfills a freshly created, not-yet-shared Future
// synchronously; kept as a named helper so every resolution path in this
// file reads the same way.
func resolveNow(f *pending.Future, value any, err error) {
	f.Resolve(pending.Outcome{Value: value, Err: err})
}

// Children resolves every cached child's full structure, joined.
func (n *Node) Children() *pending.Future {
	f := pending.NewFuture()
	names := n.ChildNames()
	go func() {
		out := make([]*Node, 0, len(names))
		for _, name := range names {
			cf := n.Child(name)
			res := cf.Recv()
			if res.Err != nil {
				resolveNow(f, nil, res.Err)
				return
			}
			out = append(out, res.Value.(*Node))
		}
		resolveNow(f, out, nil)
	}()
	return f
}

// ForEachChild is the fire-and-forget variant of Children: cb is invoked
// for each resolved child as it arrives, from one goroutine per child, so
// the order of calls is not defined.
func (n *Node) ForEachChild(cb func(*Node)) {
	for _, name := range n.ChildNames() {
		cf := n.Child(name)
		go func(cf *pending.Future) {
			res := cf.Recv()
			if res.Err == nil {
				cb(res.Value.(*Node))
			}
		}(cf)
	}
}

// SetValue encodes v as a Variant of the node's value type and sends a
// fire-and-forget setter request. A zero timestampNS means "let the
// server stamp it" (SPEC_FULL.md §12.4).
func (n *Node) SetValue(v any, timestampNS int64) error {
	variant, err := wire.EncodeVariant(n.valueType, n.id, timestampNS, v)
	if err != nil {
		return err
	}
	n.tree.req.SendSetter(variant)
	return nil
}

// LastValue returns the most recently observed value.
func (n *Node) LastValue() any {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	return n.lastValue
}

// LastValueTimestampNS returns the absolute timestamp of LastValue.
func (n *Node) LastValueTimestampNS() int64 {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	return n.lastValueNS
}

// valueSub pairs a subscriber with a stable id, so that unsubscribing one
// callback never disturbs the others' positions (a plain slice index
// would, once any earlier entry is removed).
type valueSub struct {
	id uint64
	cb ValueSubscriber
}

// ValueSubHandle identifies one subscription returned by
// SubscribeToValueChanges, opaque to callers.
type ValueSubHandle struct {
	subID uint64
}

// SubscribeToValueChanges appends cb and returns a handle for later
// unsubscription. If this is the node's first value subscriber, a getter
// start request is emitted (spec.md §4.3).
func (n *Node) SubscribeToValueChanges(cb ValueSubscriber) *ValueSubHandle {
	n.tree.mu.Lock()
	first := len(n.valueSubs) == 0
	n.nextSubID++
	id := n.nextSubID
	n.valueSubs = append(n.valueSubs, valueSub{id: id, cb: cb})
	n.tree.mu.Unlock()

	if first {
		n.tree.req.SendGetter(n.id, false)
	}
	return &ValueSubHandle{subID: id}
}

// UnsubscribeFromValueChanges removes the subscription identified by h. If
// no value subscribers remain afterward, a getter-stop request is emitted,
// fire-and-forget (SPEC_FULL.md §12.3: no acknowledgement is awaited).
// Removing a subscription that isn't the last one emits no wire traffic.
func (n *Node) UnsubscribeFromValueChanges(h *ValueSubHandle) {
	n.tree.mu.Lock()
	kept := n.valueSubs[:0:0]
	for _, s := range n.valueSubs {
		if s.id != h.subID {
			kept = append(kept, s)
		}
	}
	n.valueSubs = kept
	empty := len(n.valueSubs) == 0
	n.tree.mu.Unlock()

	if empty {
		n.tree.req.SendGetter(n.id, true)
	}
}

// SubscribeToStructureChanges appends cb. Local only: no wire traffic.
func (n *Node) SubscribeToStructureChanges(cb StructureSubscriber) {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	n.structureSubs = append(n.structureSubs, cb)
}

// applyStructure runs the three-pass diff of spec.md §4.3.1 against a
// freshly received child list and fans out notifications.
func (n *Node) applyStructure(incoming []wire.NodeInfo) {
	n.tree.mu.Lock()

	// Pass 1: metadata update for children matched by name. This must run
	// before the identity diff because a child-structure response issued
	// before this refresh may already be in flight keyed by the OLD id;
	// updating the cached child's id now means that response still lands
	// on the right Node when it arrives.
	byName := make(map[string]*Node, len(n.children))
	for _, c := range n.children {
		byName[c.name] = c
	}
	matchedIncoming := make(map[int]*Node) // index into incoming -> existing Node
	for i, info := range incoming {
		if existing, ok := byName[info.Name]; ok {
			existing.id = info.ID
			existing.kind = info.Kind
			existing.valueType = info.ValueType
			existing.flags = info.Flags
			matchedIncoming[i] = existing
		}
	}

	// Pass 2: identity diff using post-update ids.
	incomingIDs := make(map[uint32]bool, len(incoming))
	for _, info := range incoming {
		incomingIDs[info.ID] = true
	}
	var removed []*Node
	var kept []*Node
	for _, c := range n.children {
		if incomingIDs[c.id] {
			kept = append(kept, c)
		} else {
			removed = append(removed, c)
		}
	}
	var added []*Node
	for i, info := range incoming {
		if _, ok := matchedIncoming[i]; ok {
			continue
		}
		added = append(added, newNode(info, n, n.tree))
	}

	// Pass 3: apply & notify.
	newChildren := make([]*Node, 0, len(kept)+len(added))
	newChildren = append(newChildren, kept...)
	newChildren = append(newChildren, added...)
	n.children = newChildren
	n.expanded = true
	if n.flags.Leaf() {
		n.children = nil
	}

	subs := append([]StructureSubscriber(nil), n.structureSubs...)
	n.tree.mu.Unlock()

	if len(added) == 0 && len(removed) == 0 {
		return
	}
	addedNames := make([]string, len(added))
	for i, c := range added {
		addedNames[i] = c.name
	}
	removedNames := make([]string, len(removed))
	for i, c := range removed {
		removedNames[i] = c.name
	}
	for _, sub := range subs {
		sub(addedNames, removedNames)
	}
}

// applyValue decodes a Variant targeting this node and fans it out to
// value subscribers (spec.md §4.3.2).
func (n *Node) applyValue(v wire.Variant) error {
	decoded, err := wire.DecodeVariant(v)
	if err != nil {
		return err
	}
	absoluteNS := v.TimestampNS + n.tree.req.TimeOffsetNS()

	n.tree.mu.Lock()
	n.lastValue = decoded
	n.lastValueNS = absoluteNS
	subs := append([]valueSub(nil), n.valueSubs...)
	n.tree.mu.Unlock()

	for _, sub := range subs {
		sub.cb(decoded, absoluteNS)
	}
	return nil
}

// pathTokens splits a dotted path into tokens, used by NodeTree.FindByPath.
func pathTokens(dotted string) []string {
	return strings.Split(dotted, ".")
}
