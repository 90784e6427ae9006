// Package observability exposes the Prometheus instrumentation for the
// overlay node.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ProcessorMetrics records block processing activity.
type ProcessorMetrics struct {
	BlocksProcessed prometheus.Counter
	BlockHeight     prometheus.Gauge
	Intents         *prometheus.CounterVec
	IntentsRejected *prometheus.CounterVec
	TradesMatched   prometheus.Counter
	FeeDistributed  prometheus.Counter
	Rollbacks       prometheus.Counter
}

var (
	processorOnce sync.Once
	processorReg  *ProcessorMetrics
)

// Processor returns the lazily-initialised processor metrics, registered on
// the default Prometheus registry.
func Processor() *ProcessorMetrics {
	processorOnce.Do(func() {
		processorReg = &ProcessorMetrics{
			BlocksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cchlayer",
				Subsystem: "processor",
				Name:      "blocks_processed_total",
				Help:      "Total blocks applied to the overlay state.",
			}),
			BlockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "cchlayer",
				Subsystem: "processor",
				Name:      "block_height",
				Help:      "Height of the last applied block.",
			}),
			Intents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cchlayer",
				Subsystem: "processor",
				Name:      "intents_total",
				Help:      "Total transaction intents processed, segmented by kind.",
			}, []string{"kind"}),
			IntentsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cchlayer",
				Subsystem: "processor",
				Name:      "intents_rejected_total",
				Help:      "Total transaction intents rejected without state change, segmented by kind.",
			}, []string{"kind"}),
			TradesMatched: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cchlayer",
				Subsystem: "metadex",
				Name:      "trades_matched_total",
				Help:      "Total MetaDEx trade intents that produced at least one fill.",
			}),
			FeeDistributed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cchlayer",
				Subsystem: "fees",
				Name:      "distributions_total",
				Help:      "Total threshold-triggered fee distributions.",
			}),
			Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cchlayer",
				Subsystem: "processor",
				Name:      "rollbacks_total",
				Help:      "Total reorg-triggered block rollbacks.",
			}),
		}
		prometheus.MustRegister(
			processorReg.BlocksProcessed,
			processorReg.BlockHeight,
			processorReg.Intents,
			processorReg.IntentsRejected,
			processorReg.TradesMatched,
			processorReg.FeeDistributed,
			processorReg.Rollbacks,
		)
	})
	return processorReg
}
