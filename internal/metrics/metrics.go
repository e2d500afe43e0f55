// Package metrics exposes the connection and protocol counters named in
// SPEC_FULL.md §11's dependency table via a real Prometheus registry,
// standing in for the teacher's abstracted metrics.Registry
// (metrics/prometheus/interfaces.libevm.go) with the concrete
// client_golang registry this module actually has a use for.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cdptech/cdpclient/internal/session"
)

// Collector implements session.Metrics and additionally exposes a
// Registerer for wiring into an HTTP exposition handler (internal/debugsrv).
type Collector struct {
	registry *prometheus.Registry

	connected        prometheus.Gauge
	reconnectAttempt prometheus.Counter
	pendingCount     prometheus.Gauge
	timeOffsetNS     prometheus.Gauge
}

// New constructs a Collector registered against a fresh Prometheus
// registry (not the global default, so multiple Clients in one process
// don't collide).
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		connected: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "cdpclient",
			Name:      "connected",
			Help:      "1 if the session currently has an open, READY connection.",
		}),
		reconnectAttempt: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "cdpclient",
			Name:      "reconnect_attempts_total",
			Help:      "Number of reconnect attempts made after a dropped connection.",
		}),
		pendingCount: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "cdpclient",
			Name:      "pending_requests",
			Help:      "Number of outstanding structure requests awaiting a response.",
		}),
		timeOffsetNS: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "cdpclient",
			Name:      "time_offset_nanoseconds",
			Help:      "Most recently estimated client-minus-server clock offset.",
		}),
	}
	return c
}

// Registry exposes the underlying Prometheus registry for an HTTP
// exposition handler.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) SetConnected(v bool) {
	if v {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
}

func (c *Collector) IncReconnectAttempt() { c.reconnectAttempt.Inc() }
func (c *Collector) SetPendingCount(n int) { c.pendingCount.Set(float64(n)) }
func (c *Collector) SetTimeOffsetNS(ns int64) { c.timeOffsetNS.Set(float64(ns)) }

var _ session.Metrics = (*Collector)(nil)
