// Package metrics exposes the optional Prometheus counters and gauges
// named in SPEC_FULL.md §11: RPCs sent/received, active lookups, routing
// table size, and record store size. It is never on the PublicAPI hot
// path — every recording method is a no-op on a nil *Metrics, so a
// KademliaNode that never calls WithMetrics pays nothing for this
// package beyond the import.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector this node reports. Grounded on the
// teacher's metrics registration pattern (plain prometheus collectors
// registered against an injected *prometheus.Registry rather than the
// global default registry, so more than one node can run in the same
// process during tests without collector name collisions).
type Metrics struct {
	rpcsSent     *prometheus.CounterVec
	rpcsReceived *prometheus.CounterVec
	rpcErrors    *prometheus.CounterVec

	activeLookups    prometheus.Gauge
	routingTableSize prometheus.Gauge
	recordStoreSize  prometheus.Gauge
	peerCount        prometheus.Gauge
}

// New builds and registers a Metrics against reg. namespace distinguishes
// collectors from more than one node sharing a registry (e.g. in a test
// binary that runs several nodes in one process).
func New(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		rpcsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpcs_sent_total",
			Help:      "RPC requests sent, by body type.",
		}, []string{"type"}),
		rpcsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpcs_received_total",
			Help:      "RPC requests received, by body type.",
		}, []string{"type"}),
		rpcErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_errors_total",
			Help:      "RPC calls that returned an error, by body type.",
		}, []string{"type"}),
		activeLookups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_lookups",
			Help:      "Iterative lookups currently in flight.",
		}),
		routingTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "routing_table_size",
			Help:      "Peers currently held across all k-buckets.",
		}),
		recordStoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "record_store_size",
			Help:      "Records currently held in the local store.",
		}),
		peerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peer_count",
			Help:      "Open channels currently held in the peer table.",
		}),
	}
	reg.MustRegister(m.rpcsSent, m.rpcsReceived, m.rpcErrors,
		m.activeLookups, m.routingTableSize, m.recordStoreSize, m.peerCount)
	return m
}

// RecordRPCSent increments the sent counter for typ. Safe on a nil *Metrics.
func (m *Metrics) RecordRPCSent(typ string) {
	if m == nil {
		return
	}
	m.rpcsSent.WithLabelValues(typ).Inc()
}

// RecordRPCReceived increments the received counter for typ.
func (m *Metrics) RecordRPCReceived(typ string) {
	if m == nil {
		return
	}
	m.rpcsReceived.WithLabelValues(typ).Inc()
}

// RecordRPCError increments the error counter for typ.
func (m *Metrics) RecordRPCError(typ string) {
	if m == nil {
		return
	}
	m.rpcErrors.WithLabelValues(typ).Inc()
}

// SetActiveLookups reports the current count of in-flight lookups.
func (m *Metrics) SetActiveLookups(n int64) {
	if m == nil {
		return
	}
	m.activeLookups.Set(float64(n))
}

// SetRoutingTableSize reports the current routing table population.
func (m *Metrics) SetRoutingTableSize(n int) {
	if m == nil {
		return
	}
	m.routingTableSize.Set(float64(n))
}

// SetRecordStoreSize reports the current record store population.
func (m *Metrics) SetRecordStoreSize(n int) {
	if m == nil {
		return
	}
	m.recordStoreSize.Set(float64(n))
}

// SetPeerCount reports the current peer table population.
func (m *Metrics) SetPeerCount(n int) {
	if m == nil {
		return
	}
	m.peerCount.Set(float64(n))
}
