package session

import (
	"github.com/cdptech/cdpclient/internal/pending"
	"github.com/cdptech/cdpclient/internal/wire"
)

// RequestStructure implements tree.Requester. The waiter is registered in
// the pending table keyed by path before anything is sent, so a response
// that arrives (or a reconnect that requires re-issuing the request) can
// always find it; the request itself is only put on the wire immediately
// when the connection is READY, otherwise flushPendingStructureRequests
// sends it once READY is (re)reached (spec.md §4.4.1).
func (s *Session) RequestStructure(path *string, nodeID uint32, isRoot bool) *pending.Future {
	f := pending.NewFuture()
	s.pending.Add(path, f)
	s.metrics.SetPendingCount(s.pending.Len())

	s.mu.Lock()
	ready := s.state == StateReady
	s.mu.Unlock()
	if ready {
		s.sendStructureRequest(nodeID, isRoot)
		s.maybeRefreshTime()
	}
	return f
}

// SendGetter implements tree.Requester. Getter start/stop requests are
// fire-and-forget (spec.md §4.3.2): no PendingRequests entry, the node's
// subscriber list is the only correlation.
func (s *Session) SendGetter(nodeID uint32, stop bool) {
	frame, err := wire.Encode(wire.MsgGetterRequest, wire.GetterRequest{
		NodeID: nodeID,
		FS:     wire.GetterSampleFrequency,
		Stop:   stop,
	})
	if err != nil {
		return
	}
	_ = s.send(frame)
	s.maybeRefreshTime()
}

// SendSetter implements tree.Requester: a fire-and-forget value write
// (spec.md §4.3.2, SPEC_FULL.md §12.4 zero-timestamp sentinel already
// baked into value by the caller).
func (s *Session) SendSetter(value wire.Variant) {
	frame, err := wire.Encode(wire.MsgSetterRequest, wire.SetterRequest{Value: value})
	if err != nil {
		return
	}
	_ = s.send(frame)
	s.maybeRefreshTime()
}
