// Package pending implements PendingRequests (spec.md §4.1): the table of
// outstanding structure requests, keyed by node path so that responses can
// be matched to callers across reconnects, when the server may have
// reassigned node ids.
package pending

import "sync"

// Outcome is delivered to every waiter of an entry when it resolves or is
// rejected.
type Outcome struct {
	Value any
	Err   error
}

// Future is a single-slot completion a caller awaits via Recv.
type Future struct {
	ch chan Outcome
}

// NewFuture creates an unresolved Future.
func NewFuture() *Future {
	return &Future{ch: make(chan Outcome, 1)}
}

// Recv blocks (the caller's goroutine, not the event loop) until the
// Future resolves.
func (f *Future) Recv() Outcome { return <-f.ch }

// Chan exposes the receive side for use in a select alongside a context's
// Done channel.
func (f *Future) Chan() <-chan Outcome { return f.ch }

func (f *Future) resolve(o Outcome) { f.ch <- o }

// Resolve fulfills f with o. Exported for callers such as package tree
// that hand out standalone futures (e.g. a Child lookup that resolves
// synchronously from the local cache) never registered in a Requests
// table, alongside the table-driven Requests.Resolve/Clear paths below.
func (f *Future) Resolve(o Outcome) { f.resolve(o) }

// entry is one path's outstanding request, holding every waiter that
// asked for it before it resolved.
type entry struct {
	path    *string // nil means the root/system request
	waiters []*Future
}

func samePath(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Requests is PendingRequests: a path-keyed table of outstanding
// completions. Zero value is ready to use. Safe for concurrent use: every
// method takes mu, since Session and the tree call it from several
// goroutines.
type Requests struct {
	mu      sync.Mutex
	entries []*entry
}

// New constructs an empty table.
func New() *Requests { return &Requests{} }

// Add registers completion f as a waiter for path. If an entry for path
// already exists, f is appended to it (unless already present); otherwise
// a new entry is created.
func (r *Requests) Add(path *string, f *Future) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if samePath(e.path, path) {
			for _, w := range e.waiters {
				if w == f {
					return
				}
			}
			e.waiters = append(e.waiters, f)
			return
		}
	}
	r.entries = append(r.entries, &entry{path: path, waiters: []*Future{f}})
}

// Find returns the entry for path, if any.
func (r *Requests) Find(path *string) (waiters []*Future, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if samePath(e.path, path) {
			return append([]*Future(nil), e.waiters...), true
		}
	}
	return nil, false
}

// Remove deletes the entry for path without resolving its waiters.
// Resolve and Clear remove the entries they deliver to on their own.
func (r *Requests) Remove(path *string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if samePath(e.path, path) {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// Resolve delivers value to every waiter of path's entry, in insertion
// order, then removes the entry. It is a no-op if no entry exists for
// path (e.g. an unsolicited or duplicate response).
func (r *Requests) Resolve(path *string, value any) {
	r.mu.Lock()
	var waiters []*Future
	for i, e := range r.entries {
		if samePath(e.path, path) {
			waiters = e.waiters
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	for _, w := range waiters {
		w.resolve(Outcome{Value: value})
	}
}

// Paths lists every path currently outstanding (nil entries included as
// nil), for re-issuing requests once READY is reached after a reconnect.
func (r *Requests) Paths() []*string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.path
	}
	return out
}

// Len reports the number of outstanding entries.
func (r *Requests) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear rejects every waiter in every entry with err, then empties the
// table.
func (r *Requests) Clear(err error) {
	r.mu.Lock()
	all := r.entries
	r.entries = nil
	r.mu.Unlock()

	for _, e := range all {
		for _, w := range e.waiters {
			w.resolve(Outcome{Err: err})
		}
	}
}
