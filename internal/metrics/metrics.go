package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts confirmed fills by region and action.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockflux",
		Name:      "trades_total",
		Help:      "Confirmed trades recorded into the risk manager.",
	}, []string{"region", "action"})

	// RejectionsTotal counts trade validation rejections by reason.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockflux",
		Name:      "trade_rejections_total",
		Help:      "Trades rejected by risk validation.",
	}, []string{"region", "reason"})

	// ForcedExitsTotal counts stop-loss and trailing-stop exits.
	ForcedExitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockflux",
		Name:      "forced_exits_total",
		Help:      "Positions closed by stop-loss or trailing-stop.",
	}, []string{"region"})

	// CircuitBreakerTrips counts circuit breaker activations.
	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockflux",
		Name:      "circuit_breaker_trips_total",
		Help:      "Trading cycles skipped because the region circuit breaker was active.",
	}, []string{"region"})

	// CycleDuration observes the wall time of a full trading cycle.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stockflux",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one full trading cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a metrics endpoint on addr. It blocks, so run it in its own
// goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
