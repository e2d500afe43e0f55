// Package debugsrv is an optional localhost introspection HTTP server
// (SPEC_FULL.md §11.3): liveness, Prometheus exposition, and a
// JWT-guarded JSON dump of the node tree. The dump starts from the cached
// root but resolves each child through Node.Child, so a non-leaf child
// costs a structure round trip that the handler waits for; children whose
// fetch fails are left out. Shaped after the
// teacher's rpcroute.Server — a small net/http surface owned by a
// long-lived struct with its own Close() (libevm/rpcroute/server.go,
// http.go) — generalized from a reverse proxy to a introspection
// endpoint set.
package debugsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/slog"

	"github.com/cdptech/cdpclient/internal/metrics"
	"github.com/cdptech/cdpclient/internal/tree"
)

// TreeSnapshot is one Node's JSON representation for GET /tree.
type TreeSnapshot struct {
	Name        string          `json:"name"`
	ID          uint32          `json:"id"`
	Kind        int             `json:"kind"`
	ValueType   int             `json:"value_type"`
	LastValue   any             `json:"last_value,omitempty"`
	TimestampNS int64           `json:"timestamp_ns,omitempty"`
	Children    []*TreeSnapshot `json:"children,omitempty"`
}

// Server is the optional debug/introspection HTTP server.
type Server struct {
	httpSrv *http.Server
	logger  *slog.Logger
}

// New starts listening on addr. token, if non-empty, is the HS256 shared
// secret guarding GET /tree; an empty token disables that route entirely
// rather than serving it unauthenticated.
func New(addr string, collector *metrics.Collector, snapshot func() *tree.Node, token string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if collector != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	}
	if token != "" {
		mux.HandleFunc("/tree", treeHandler(snapshot, token))
	}

	s := &Server{
		httpSrv: &http.Server{Addr: addr, Handler: mux},
		logger:  logger.With("component", "debugsrv", "addr", addr),
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("debugsrv: listen %s: %w", addr, err)
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("debug server stopped", "error", err)
		}
	}()
	s.logger.Info("debug server listening")
	return s, nil
}

func treeHandler(snapshot func() *tree.Node, token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, token) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		root := snapshot()
		if root == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": "root not yet resolved"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snapshotOf(root))
	}
}

func snapshotOf(n *tree.Node) *TreeSnapshot {
	out := &TreeSnapshot{
		Name:        n.Name(),
		ID:          n.ID(),
		Kind:        int(n.Kind()),
		ValueType:   int(n.ValueType()),
		LastValue:   n.LastValue(),
		TimestampNS: n.LastValueTimestampNS(),
	}
	for _, name := range n.ChildNames() {
		childOutcome := n.Child(name).Recv()
		if childOutcome.Err != nil {
			continue
		}
		out.Children = append(out.Children, snapshotOf(childOutcome.Value.(*tree.Node)))
	}
	return out
}

func authorized(r *http.Request, token string) bool {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return false
	}
	raw := h[len(prefix):]
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("debugsrv: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(token), nil
	})
	return err == nil && parsed.Valid
}

// Close shuts the server down, waiting up to 5s for in-flight requests.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}
