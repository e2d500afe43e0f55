// Package transport provides the WebSocket transport Session is driven
// over. spec.md §1 treats frame-level I/O and TLS as an external
// collaborator; this package is the concrete implementation consumed
// through the narrow Transport interface.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

// Transport is the narrow collaborator interface spec.md §6 names: send,
// receive, and lifecycle callbacks over a single WebSocket connection.
// Session calls Send from several goroutines (time sync, re-auth, tree
// fetches, subscribers), so implementations serialise concurrent Send
// calls themselves.
type Transport interface {
	// Dial opens the connection. url is e.g. "ws://host:port" or
	// "wss://host:port".
	Dial(ctx context.Context, url string) error

	// Send writes one frame.
	Send(frame []byte) error

	// Recv returns a channel of inbound frames. The channel is closed when
	// the connection is closed. When the remote side closes or the
	// connection fails, OnClose/OnError has already fired by then; a Close
	// call made locally fires neither.
	Recv() <-chan []byte

	// Close closes the connection. Idempotent.
	Close() error

	// OnOpen/OnClose/OnError register lifecycle callbacks. Each may be
	// called at most once per Dial; OnError may fire instead of OnClose
	// for abnormal termination, never both.
	OnOpen(func())
	OnClose(func())
	OnError(func(error))
}
