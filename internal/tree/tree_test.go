package tree

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdptech/cdpclient/internal/pending"
	"github.com/cdptech/cdpclient/internal/wire"
)

// fakeRequester is a Requester backed by an in-memory structure table
// keyed by path ("" for root/system), resolving every RequestStructure
// synchronously so tests don't need a real transport.
type fakeRequester struct {
	mu         sync.Mutex
	structures map[string][]wire.NodeInfo
	offsetNS   int64

	getterCalls []uint32
	setterCalls []wire.Variant
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{structures: make(map[string][]wire.NodeInfo)}
}

func (f *fakeRequester) setStructure(path string, children []wire.NodeInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.structures[path] = children
}

func (f *fakeRequester) RequestStructure(path *string, nodeID uint32, isRoot bool) *pending.Future {
	key := ""
	if path != nil {
		key = *path
	}
	f.mu.Lock()
	children := f.structures[key]
	f.mu.Unlock()

	fut := pending.NewFuture()
	fut.Resolve(pending.Outcome{Value: children})
	return fut
}

func (f *fakeRequester) SendGetter(nodeID uint32, stop bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getterCalls = append(f.getterCalls, nodeID)
}

func (f *fakeRequester) SendSetter(value wire.Variant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setterCalls = append(f.setterCalls, value)
}

func (f *fakeRequester) TimeOffsetNS() int64 { return f.offsetNS }

var _ Requester = (*fakeRequester)(nil)

func systemStructure() []wire.NodeInfo {
	return []wire.NodeInfo{
		{ID: 1, Name: "OtherApp", Kind: wire.KindApplication},
		{ID: 2, Name: "MyApp", Kind: wire.KindApplication, Flags: wire.FlagIsLocal},
	}
}

func recvWithin(t *testing.T, f *pending.Future, d time.Duration) pending.Outcome {
	t.Helper()
	select {
	case o := <-f.Chan():
		return o
	case <-time.After(d):
		t.Fatal("future did not resolve in time")
		return pending.Outcome{}
	}
}

func TestRootSelectsLocalFlaggedChild(t *testing.T) {
	req := newFakeRequester()
	req.setStructure("", systemStructure())
	req.setStructure("MyApp", nil)

	nt := New(req)
	outcome := recvWithin(t, nt.Root(), time.Second)
	require.NoError(t, outcome.Err)

	root := outcome.Value.(*Node)
	assert.Equal(t, "MyApp", root.Name())
	assert.Equal(t, "MyApp", root.Path(), "root's own Path must be just its name, not prefixed by a placeholder")
}

func TestRootCachedOnSecondCall(t *testing.T) {
	req := newFakeRequester()
	req.setStructure("", systemStructure())
	req.setStructure("MyApp", nil)

	nt := New(req)
	first := recvWithin(t, nt.Root(), time.Second)
	require.NoError(t, first.Err)

	second := recvWithin(t, nt.Root(), time.Second)
	require.NoError(t, second.Err)
	assert.Same(t, first.Value.(*Node), second.Value.(*Node))
}

func TestRootNoLocalApplicationErrors(t *testing.T) {
	req := newFakeRequester()
	req.setStructure("", []wire.NodeInfo{{ID: 1, Name: "OtherApp"}})

	nt := New(req)
	outcome := recvWithin(t, nt.Root(), time.Second)
	assert.Error(t, outcome.Err)
}

func TestChildFetchesAndCachesStructure(t *testing.T) {
	req := newFakeRequester()
	req.setStructure("", systemStructure())
	req.setStructure("MyApp", []wire.NodeInfo{
		{ID: 10, Name: "Comp", Kind: wire.KindComponent},
	})
	req.setStructure("MyApp.Comp", []wire.NodeInfo{
		{ID: 11, Name: "Leaf", Flags: wire.FlagLeaf, ValueType: wire.ValueDouble},
	})

	nt := New(req)
	rootOutcome := recvWithin(t, nt.Root(), time.Second)
	require.NoError(t, rootOutcome.Err)
	root := rootOutcome.Value.(*Node)

	childOutcome := recvWithin(t, root.Child("Comp"), time.Second)
	require.NoError(t, childOutcome.Err)
	comp := childOutcome.Value.(*Node)
	assert.Equal(t, "MyApp.Comp", comp.Path())

	leafOutcome := recvWithin(t, comp.Child("Leaf"), time.Second)
	require.NoError(t, leafOutcome.Err)
	leaf := leafOutcome.Value.(*Node)
	assert.True(t, leaf.IsLeaf())
	assert.Equal(t, float64(0), leaf.LastValue(), "freshly constructed leaf starts at its type's zero value")
}

func TestChildNotFound(t *testing.T) {
	req := newFakeRequester()
	req.setStructure("", systemStructure())
	req.setStructure("MyApp", nil)

	nt := New(req)
	rootOutcome := recvWithin(t, nt.Root(), time.Second)
	require.NoError(t, rootOutcome.Err)
	root := rootOutcome.Value.(*Node)

	outcome := recvWithin(t, root.Child("DoesNotExist"), time.Second)
	assert.Error(t, outcome.Err)
}

// TestApplyStructurePreservesIdentityAcrossIDChurn verifies the three-pass
// diff (spec.md §4.3.1): a child matched by name keeps its Node pointer
// even when the server reassigns its id.
func TestApplyStructurePreservesIdentityAcrossIDChurn(t *testing.T) {
	req := newFakeRequester()
	req.setStructure("", systemStructure())
	req.setStructure("MyApp", []wire.NodeInfo{{ID: 10, Name: "Comp"}})

	nt := New(req)
	rootOutcome := recvWithin(t, nt.Root(), time.Second)
	require.NoError(t, rootOutcome.Err)
	root := rootOutcome.Value.(*Node)

	firstOutcome := recvWithin(t, root.Child("Comp"), time.Second)
	require.NoError(t, firstOutcome.Err)
	first := firstOutcome.Value.(*Node)

	var addedNames, removedNames []string
	root.SubscribeToStructureChanges(func(added, removed []string) {
		addedNames, removedNames = added, removed
	})

	// Reassign Comp's id and add a new sibling.
	root.applyStructure([]wire.NodeInfo{
		{ID: 99, Name: "Comp"},
		{ID: 20, Name: "NewSibling"},
	})

	assert.Equal(t, []string{"NewSibling"}, addedNames)
	assert.Empty(t, removedNames)
	assert.Equal(t, uint32(99), first.ID(), "existing Node's id must be updated in place")
	assert.Contains(t, root.ChildNames(), "Comp")
	assert.Contains(t, root.ChildNames(), "NewSibling")
}

func TestApplyStructureRemovesMissingChildren(t *testing.T) {
	req := newFakeRequester()
	root := newNode(wire.NodeInfo{ID: 1, Name: "Root"}, nil, New(req))
	root.tree.root = root
	root.applyStructure([]wire.NodeInfo{{ID: 2, Name: "A"}, {ID: 3, Name: "B"}})

	var removedNames []string
	root.SubscribeToStructureChanges(func(added, removed []string) {
		removedNames = append(removedNames, removed...)
	})
	root.applyStructure([]wire.NodeInfo{{ID: 2, Name: "A"}})

	assert.Equal(t, []string{"B"}, removedNames)
	assert.Equal(t, []string{"A"}, root.ChildNames())
}

func TestValueSubscriptionStartsAndStopsGetter(t *testing.T) {
	req := newFakeRequester()
	nt := New(req)
	n := newNode(wire.NodeInfo{ID: 5, Name: "Leaf", Flags: wire.FlagLeaf, ValueType: wire.ValueInt}, nil, nt)

	h1 := n.SubscribeToValueChanges(func(v any, ts int64) {})
	h2 := n.SubscribeToValueChanges(func(v any, ts int64) {})
	assert.Equal(t, []uint32{5}, req.getterCalls, "only the first subscriber should trigger a getter start")

	n.UnsubscribeFromValueChanges(h1)
	assert.Len(t, req.getterCalls, 1, "unsubscribing while another subscriber remains must not send a stop")

	n.UnsubscribeFromValueChanges(h2)
	require.Len(t, req.getterCalls, 2, "the last unsubscriber should send a getter stop")
}

func TestApplyValueNotifiesSubscribersWithOffsetAppliedTimestamp(t *testing.T) {
	req := newFakeRequester()
	req.offsetNS = 500
	nt := New(req)
	n := newNode(wire.NodeInfo{ID: 5, Name: "Leaf", Flags: wire.FlagLeaf, ValueType: wire.ValueInt}, nil, nt)
	nt.mu.Lock()
	nt.root = n
	nt.mu.Unlock()

	var gotValue any
	var gotTS int64
	n.SubscribeToValueChanges(func(v any, ts int64) {
		gotValue, gotTS = v, ts
	})

	v, err := wire.EncodeVariant(wire.ValueInt, 5, 1000, int32(7))
	require.NoError(t, err)
	require.NoError(t, nt.ApplyValue(v))

	assert.Equal(t, int32(7), gotValue)
	assert.Equal(t, int64(1500), gotTS)
	assert.Equal(t, int64(1500), n.LastValueTimestampNS())
}

func TestSetValueEncodesAndSendsSetter(t *testing.T) {
	req := newFakeRequester()
	nt := New(req)
	n := newNode(wire.NodeInfo{ID: 9, Name: "Setting", ValueType: wire.ValueBool}, nil, nt)

	require.NoError(t, n.SetValue(true, 0))
	require.Len(t, req.setterCalls, 1)
	assert.Equal(t, uint32(9), req.setterCalls[0].NodeID)
	assert.True(t, req.setterCalls[0].BoolValue)
}

func TestFindByPathIsLocalOnly(t *testing.T) {
	req := newFakeRequester()
	nt := New(req)
	root := newNode(wire.NodeInfo{ID: 1, Name: "MyApp"}, nil, nt)
	nt.mu.Lock()
	nt.root = root
	nt.mu.Unlock()
	root.applyStructure([]wire.NodeInfo{{ID: 2, Name: "Comp"}})

	assert.NotNil(t, nt.FindByPath("MyApp.Comp"))
	assert.NotNil(t, nt.FindByPath("Comp"))
	assert.Nil(t, nt.FindByPath("MyApp.Missing"))
}

func TestRefreshReselectsRootAcrossReconnect(t *testing.T) {
	req := newFakeRequester()
	req.setStructure("", systemStructure())
	req.setStructure("MyApp", nil)

	nt := New(req)
	outcome := recvWithin(t, nt.Root(), time.Second)
	require.NoError(t, outcome.Err)
	assert.Equal(t, "MyApp", outcome.Value.(*Node).Name())

	// A different application becomes "local" after reconnect.
	req.setStructure("", []wire.NodeInfo{
		{ID: 1, Name: "MyApp"},
		{ID: 3, Name: "OtherApp", Flags: wire.FlagIsLocal},
	})
	req.setStructure("OtherApp", nil)

	refreshOutcome := recvWithin(t, nt.Refresh(), time.Second)
	require.NoError(t, refreshOutcome.Err)

	rootOutcome := recvWithin(t, nt.Root(), time.Second)
	require.NoError(t, rootOutcome.Err)
	assert.Equal(t, "OtherApp", rootOutcome.Value.(*Node).Name())
}
