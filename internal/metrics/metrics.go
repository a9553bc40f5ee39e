package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine holds the reservation-engine counters. A nil *Engine is valid and
// records nothing, so library code never has to guard call sites.
type Engine struct {
	Checkouts      *prometheus.CounterVec
	StoreConflicts prometheus.Counter
	SweepReclaimed prometheus.Counter
}

func NewEngine(service string) *Engine {
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storereserve",
		Subsystem: service,
		Name:      "checkouts_total",
		Help:      "Checkout attempts by result.",
	}, []string{"result"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storereserve",
		Subsystem: service,
		Name:      "store_conflicts_total",
		Help:      "Optimistic-concurrency conflicts observed (pre-retry).",
	})
	reclaimed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storereserve",
		Subsystem: service,
		Name:      "sweep_reclaimed_total",
		Help:      "Expired reservations reclaimed by the sweep.",
	})

	prometheus.MustRegister(checkouts, conflicts, reclaimed)
	return &Engine{Checkouts: checkouts, StoreConflicts: conflicts, SweepReclaimed: reclaimed}
}

func (m *Engine) IncCheckout(result string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(result).Inc()
}

func (m *Engine) IncConflict() {
	if m == nil {
		return
	}
	m.StoreConflicts.Inc()
}

func (m *Engine) AddReclaimed(n int) {
	if m == nil {
		return
	}
	m.SweepReclaimed.Add(float64(n))
}

func Handler() http.Handler {
	return promhttp.Handler()
}
