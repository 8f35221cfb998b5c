package stats

import (
	"strconv"

	"github.com/hydrobb/pumpsched/internal/constraints"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirrors a Statistics tally into Prometheus counters and gauges.
type Metrics struct {
	PruneTotal *prometheus.CounterVec
	BestCost   prometheus.Gauge
	Depth      prometheus.Gauge
}

// NewMetrics registers the bb_* series on reg. Pass prometheus.NewRegistry()
// in tests to avoid colliding with the global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PruneTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bb_prune_total",
			Help: "Evaluations by outcome reason (NONE when accepted) and search depth.",
		}, []string{"reason", "depth"}),
		BestCost: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bb_best_cost",
			Help: "Current best-known incumbent cost for this rank.",
		}),
		Depth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bb_search_depth",
			Help: "Current search depth of the explicit DFS stack.",
		}),
	}
}

// Observe increments the counter for reason/depth. Call it from the
// same place Statistics.Add is called so the two never drift apart.
func (m *Metrics) Observe(reason constraints.Reason, depth int) {
	m.PruneTotal.WithLabelValues(reason.String(), strconv.Itoa(depth)).Inc()
}

// SetBestCost mirrors a newly found incumbent into the gauge.
func (m *Metrics) SetBestCost(cost float64) {
	m.BestCost.Set(cost)
}

// SetDepth mirrors the current stack depth into the gauge.
func (m *Metrics) SetDepth(depth int) {
	m.Depth.Set(float64(depth))
}
