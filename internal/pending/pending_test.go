package pending

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDeliversToAllWaiters(t *testing.T) {
	r := New()
	path := "App.Comp"
	f1, f2 := NewFuture(), NewFuture()
	r.Add(&path, f1)
	r.Add(&path, f2)
	assert.Equal(t, 1, r.Len())

	r.Resolve(&path, 7)

	o1 := f1.Recv()
	o2 := f2.Recv()
	require.NoError(t, o1.Err)
	require.NoError(t, o2.Err)
	assert.Equal(t, 7, o1.Value)
	assert.Equal(t, 7, o2.Value)
	assert.Equal(t, 0, r.Len())
}

func TestResolveNilPathIsRootEntry(t *testing.T) {
	r := New()
	f := NewFuture()
	r.Add(nil, f)

	other := "Other"
	r.Resolve(&other, "wrong")
	assert.Equal(t, 1, r.Len(), "resolving an unrelated path must not touch the root entry")

	r.Resolve(nil, "root-children")
	o := f.Recv()
	assert.Equal(t, "root-children", o.Value)
}

func TestResolveUnknownPathIsNoop(t *testing.T) {
	r := New()
	r.Resolve(nil, "unsolicited")
	assert.Equal(t, 0, r.Len())
}

func TestClearRejectsEveryWaiter(t *testing.T) {
	r := New()
	p1, p2 := "A", "B"
	f1 := NewFuture()
	f2 := NewFuture()
	f3 := NewFuture()
	r.Add(&p1, f1)
	r.Add(&p2, f2)
	r.Add(&p2, f3)

	wantErr := errors.New("connection lost")
	r.Clear(wantErr)

	for _, f := range []*Future{f1, f2, f3} {
		o := f.Recv()
		assert.Same(t, wantErr, o.Err)
	}
	assert.Equal(t, 0, r.Len())
}

func TestAddDeduplicatesSameFuture(t *testing.T) {
	r := New()
	path := "X"
	f := NewFuture()
	r.Add(&path, f)
	r.Add(&path, f)

	waiters, ok := r.Find(&path)
	require.True(t, ok)
	assert.Len(t, waiters, 1)
}

func TestPathsListsOutstandingEntries(t *testing.T) {
	r := New()
	p := "A.B"
	r.Add(nil, NewFuture())
	r.Add(&p, NewFuture())

	paths := r.Paths()
	assert.Len(t, paths, 2)
}

func TestFutureResolveExported(t *testing.T) {
	f := NewFuture()
	f.Resolve(Outcome{Value: "direct"})
	o := f.Recv()
	assert.Equal(t, "direct", o.Value)
}
