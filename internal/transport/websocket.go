package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// TLSOptions configures wss:// dialing. A zero value disables TLS
// customisation (the gorilla default dialer's TLS config is used).
type TLSOptions struct {
	Config *tls.Config
}

// WebSocket is the gorilla/websocket-backed Transport implementation
// (spec.md §6 "Transport URL"). Grounded on libevm/rpcroute/backend.go's
// dialWS/heightLoop: a single connection dialed up front, read in a
// dedicated goroutine, with unexpected-close detection feeding OnError.
type WebSocket struct {
	dialer *websocket.Dialer

	// writeMu serialises WriteMessage: gorilla/websocket allows at most
	// one concurrent writer per connection.
	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	recv    chan []byte
	closed  bool
	onOpen  func()
	onClose func()
	onError func(error)
}

// New constructs a WebSocket transport. tlsOpts may be nil for ws://.
func New(tlsOpts *TLSOptions) *WebSocket {
	d := &websocket.Dialer{}
	if tlsOpts != nil {
		d.TLSClientConfig = tlsOpts.Config
	}
	return &WebSocket{dialer: d, recv: make(chan []byte, 64)}
}

func (w *WebSocket) Dial(ctx context.Context, url string) error {
	conn, _, err := w.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if w.onOpen != nil {
		w.onOpen()
	}
	go w.readLoop()
	return nil
}

func (w *WebSocket) readLoop() {
	defer close(w.recv)
	for {
		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			alreadyClosed := w.closed
			w.closed = true
			w.mu.Unlock()
			if alreadyClosed {
				return
			}
			if isExpectedClose(err) {
				if w.onClose != nil {
					w.onClose()
				}
			} else if w.onError != nil {
				w.onError(err)
			}
			return
		}
		w.recv <- msg
	}
}

func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, io.EOF)
}

func (w *WebSocket) Send(frame []byte) error {
	w.mu.Lock()
	conn := w.conn
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return errors.New("transport: not connected")
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (w *WebSocket) Recv() <-chan []byte { return w.recv }

func (w *WebSocket) Close() error {
	w.mu.Lock()
	already := w.closed
	w.closed = true
	conn := w.conn
	w.mu.Unlock()
	if already || conn == nil {
		return nil
	}
	return conn.Close()
}

func (w *WebSocket) OnOpen(f func())       { w.onOpen = f }
func (w *WebSocket) OnClose(f func())      { w.onClose = f }
func (w *WebSocket) OnError(f func(error)) { w.onError = f }

var _ Transport = (*WebSocket)(nil)
