// Package faketransport implements transport.Transport over in-process
// channels, so session tests can drive a full handshake without a
// real socket. Analogous in spirit to the teacher's stubBackend +
// bufconn.Listener (libevm/rpcroute/server_test.go), minus the gRPC
// surface this client has no use for.
package faketransport

import (
	"context"
	"sync"

	"github.com/cdptech/cdpclient/internal/transport"
)

// Fake is a Transport whose "server side" is driven directly by a test via
// Push (inbound frames) and Sent (outbound frames written by the code
// under test).
type Fake struct {
	mu      sync.Mutex
	recv    chan []byte
	sent    chan []byte
	closed  bool
	onOpen  func()
	onClose func()
	onError func(error)

	DialErr error
}

// New constructs a Fake transport.
func New() *Fake {
	return &Fake{
		recv: make(chan []byte, 256),
		sent: make(chan []byte, 256),
	}
}

func (f *Fake) Dial(ctx context.Context, url string) error {
	if f.DialErr != nil {
		return f.DialErr
	}
	if f.onOpen != nil {
		f.onOpen()
	}
	return nil
}

func (f *Fake) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrClosed
	}
	f.sent <- frame
	return nil
}

func (f *Fake) Recv() <-chan []byte { return f.recv }

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.recv)
	return nil
}

func (f *Fake) OnOpen(fn func())       { f.onOpen = fn }
func (f *Fake) OnClose(fn func())      { f.onClose = fn }
func (f *Fake) OnError(fn func(error)) { f.onError = fn }

// Push injects one inbound frame, as if received from the server.
func (f *Fake) Push(frame []byte) {
	f.recv <- frame
}

// SimulateError fires the registered OnError callback, as the WebSocket
// implementation would on an unexpected close.
func (f *Fake) SimulateError(err error) {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	if f.onError != nil {
		f.onError(err)
	}
}

// Sent returns the channel of frames written via Send, for assertions.
func (f *Fake) Sent() <-chan []byte { return f.sent }

var _ transport.Transport = (*Fake)(nil)
