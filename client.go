// Package cdpclient is the public façade over a CDP connection (spec.md
// §4.6): construct a Client, run its event loop, and look up nodes by
// root or dotted path.
package cdpclient

import (
	"context"
	"crypto/tls"
	"strings"

	"golang.org/x/exp/slog"

	"github.com/cdptech/cdpclient/internal/cdperrors"
	"github.com/cdptech/cdpclient/internal/pending"
	"github.com/cdptech/cdpclient/internal/session"
	"github.com/cdptech/cdpclient/internal/transport"
	"github.com/cdptech/cdpclient/internal/tree"
)

// Node is the public handle onto one tree position, re-exported so
// callers never need to import internal/tree directly.
type Node = tree.Node

// ValueSubscriber and StructureSubscriber are re-exported subscription
// callback shapes (spec.md §3).
type ValueSubscriber = tree.ValueSubscriber
type StructureSubscriber = tree.StructureSubscriber
type ValueSubHandle = tree.ValueSubHandle

// Listener is the embedder callback interface (spec.md §6).
type Listener = session.Listener
type AcceptanceRequest = session.AcceptanceRequest
type CredentialsRequest = session.CredentialsRequest

// Metrics is the narrow reporting interface a Client forwards session
// lifecycle events through (SPEC_FULL.md §11 domain stack).
type Metrics = session.Metrics

// Options configures a Client (spec.md §4.6 new()).
type Options struct {
	Host string
	Port int // defaults to 7689

	// AutoReconnect, when true, keeps retrying the connection with a
	// fixed 1s backoff instead of giving up on the first failure
	// (spec.md §4.6). It is a plain bool that New does not default, so
	// an Options that leaves it unset does not reconnect.
	AutoReconnect bool

	Listener Listener
	Logger   *slog.Logger
	Metrics  Metrics

	// TLSConfig, if non-nil, dials wss:// instead of ws:// (spec.md §6).
	TLSConfig *tls.Config
}

// Client is the entry point applications embed (spec.md §4.6).
type Client struct {
	sess *session.Session
}

// New constructs a Client. It does not connect until RunEventLoop is
// called.
func New(opts Options) *Client {
	if opts.Port == 0 {
		opts.Port = 7689
	}

	var tlsOpts *transport.TLSOptions
	if opts.TLSConfig != nil {
		tlsOpts = &transport.TLSOptions{Config: opts.TLSConfig}
	}
	newTransport := func() transport.Transport {
		return transport.New(tlsOpts)
	}

	sess := session.New(session.Config{
		Host:          opts.Host,
		Port:          opts.Port,
		TLS:           opts.TLSConfig != nil,
		AutoReconnect: opts.AutoReconnect,
		Listener:      opts.Listener,
		Logger:        opts.Logger,
		Metrics:       opts.Metrics,
		NewTransport:  newTransport,
	})
	return &Client{sess: sess}
}

// RunEventLoop runs the transport until ctx is cancelled, Disconnect is
// called, or (with AutoReconnect disabled) a connection attempt fails
// terminally (spec.md §4.6 run_event_loop).
func (c *Client) RunEventLoop(ctx context.Context) error {
	return c.sess.Run(ctx)
}

// Disconnect disables auto-reconnect, fails every pending request with a
// ConnectionError, and closes the transport (spec.md §4.6).
func (c *Client) Disconnect() {
	c.sess.Disconnect()
}

// State reports the client's current connection state, primarily useful
// for health reporting (SPEC_FULL.md §11.3 debugsrv).
func (c *Client) State() string {
	return c.sess.State().String()
}

// Root resolves the tree's root node: the application flagged "local" in
// the server's system structure (spec.md §4.2, SPEC_FULL.md §12.2). The
// returned future resolves once that structure has been fetched.
func (c *Client) Root() *pending.Future {
	return c.sess.Tree().Root()
}

// CachedRoot returns the current root Node without triggering a fetch, or
// nil if it has not yet been resolved (SPEC_FULL.md §11.3 debugsrv).
func (c *Client) CachedRoot() *Node {
	return c.sess.Tree().CachedRoot()
}

// FindNode descends token-by-token from the root through dotted (e.g.
// "App.Component.Leaf") to resolve a single Node (spec.md §4.6
// find_node), fetching structure lazily one level at a time.
func (c *Client) FindNode(dotted string) *pending.Future {
	f := pending.NewFuture()
	tokens := strings.Split(dotted, ".")
	if len(tokens) == 0 {
		f.Resolve(pending.Outcome{Err: &cdperrors.NotFoundError{Name: dotted}})
		return f
	}

	go func() {
		rootOutcome := c.sess.Tree().Root().Recv()
		if rootOutcome.Err != nil {
			f.Resolve(pending.Outcome{Err: rootOutcome.Err})
			return
		}
		cur := rootOutcome.Value.(*Node)

		start := 0
		if tokens[0] == cur.Name() {
			start = 1
		}
		for _, tok := range tokens[start:] {
			childOutcome := cur.Child(tok).Recv()
			if childOutcome.Err != nil {
				f.Resolve(pending.Outcome{Err: childOutcome.Err})
				return
			}
			cur = childOutcome.Value.(*Node)
		}
		f.Resolve(pending.Outcome{Value: cur})
	}()
	return f
}
