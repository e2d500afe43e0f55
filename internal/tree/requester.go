package tree

import (
	"github.com/cdptech/cdpclient/internal/pending"
	"github.com/cdptech/cdpclient/internal/wire"
)

// Requester is the narrow slice of Session that NodeTree/Node need to
// issue wire traffic. Session implements it; keeping it as an interface
// here (rather than importing session) avoids a tree<->session import
// cycle, since Session in turn calls back into tree to apply responses.
type Requester interface {
	// RequestStructure issues a StructureRequest for nodeID (isRoot with a
	// nil path means root/system; nodeID is then ignored) and returns a
	// Future resolving to []wire.NodeInfo.
	RequestStructure(path *string, nodeID uint32, isRoot bool) *pending.Future

	// SendGetter emits a getter start/stop request. No reply is
	// correlated; the Node's subscriber list is the sink.
	SendGetter(nodeID uint32, stop bool)

	// SendSetter emits a fire-and-forget value write.
	SendSetter(value wire.Variant)

	// TimeOffsetNS returns the current client-minus-server offset in
	// nanoseconds, applied to value timestamps delivered to subscribers.
	TimeOffsetNS() int64
}
