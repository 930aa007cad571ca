// Package metrics exposes the node's Prometheus counters and gauges:
// block production, mempool admission, and retention/GC activity.
// Grounded on the promauto.NewCounter/NewGauge registration style used
// throughout the sibling example repos' beacon-chain and consensus
// packages (prysmaticlabs-prysm), wired against the teacher's declared
// github.com/prometheus/client_golang dependency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every counter/gauge the node exports, registered
// against a dedicated registry rather than the global default so a
// single process can run more than one node instance in tests.
type Metrics struct {
	registry *prometheus.Registry

	BlocksProduced   prometheus.Counter
	BlockHeight      prometheus.Gauge
	TxsAdmitted      prometheus.Counter
	TxsRejected      *prometheus.CounterVec
	MempoolSize      prometheus.Gauge
	GCHeightsPruned  prometheus.Counter
	GCNodesDeleted   prometheus.Counter
	ConsensusViewChanges prometheus.Counter
}

// New constructs a Metrics bundle on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BlocksProduced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kernel",
			Name:      "blocks_produced_total",
			Help:      "Total number of blocks committed by this node.",
		}),
		BlockHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "kernel",
			Name:      "block_height",
			Help:      "Height of the last committed block.",
		}),
		TxsAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kernel",
			Name:      "mempool_txs_admitted_total",
			Help:      "Total number of transactions admitted into the mempool.",
		}),
		TxsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernel",
			Name:      "mempool_txs_rejected_total",
			Help:      "Total number of transactions rejected during ingestion, by reason.",
		}, []string{"reason"}),
		MempoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "kernel",
			Name:      "mempool_size",
			Help:      "Current number of transactions held in the mempool.",
		}),
		GCHeightsPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kernel",
			Name:      "retention_heights_pruned_total",
			Help:      "Total number of heights dropped by the retention GC pass.",
		}),
		GCNodesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kernel",
			Name:      "retention_nodes_deleted_total",
			Help:      "Total number of node-store entries deleted by the retention GC pass.",
		}),
		ConsensusViewChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kernel",
			Name:      "consensus_view_changes_total",
			Help:      "Total number of view-change votes cast by the consensus engine.",
		}),
	}
}

// Handler returns the HTTP handler serving this bundle's registry in
// the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
