package api

import (
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-entity or per-player labels).
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "match_tick_duration_seconds",
		Help:    "Time spent in one simulation tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	turnCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "match_turns_total",
		Help: "Lockstep turns completed",
	})

	entityCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "match_entity_count",
		Help: "Live entities in the simulation",
	})

	waitingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "match_waiting_for_players",
		Help: "1 while the lockstep is stalled on missing peer inputs",
	})

	desyncCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "match_desync_total",
		Help: "Checksum mismatches detected (fatal per match)",
	})

	eventLogDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_log_dropped_total",
		Help: "Events dropped due to rate limiting or buffer full",
	})
)

// RecordTickDuration feeds the tick histogram.
func RecordTickDuration(seconds float64) {
	tickDuration.Observe(seconds)
}

// RecordTurnComplete bumps the turn counter.
func RecordTurnComplete() {
	turnCounter.Inc()
}

// RecordEntityCount updates the live entity gauge.
func RecordEntityCount(n int) {
	entityCount.Set(float64(n))
}

// RecordWaiting flips the stall gauge.
func RecordWaiting(waiting bool) {
	if waiting {
		waitingGauge.Set(1)
	} else {
		waitingGauge.Set(0)
	}
}

// RecordDesync bumps the desync counter.
func RecordDesync() {
	desyncCounter.Inc()
}

// RecordEventLogDropped publishes the cumulative dropped-event count.
func RecordEventLogDropped(n uint64) {
	eventLogDropped.Set(float64(n))
}

// mountObservability attaches /metrics and /debug/pprof to the router.
func mountObservability(mux interface {
	Handle(pattern string, handler http.Handler)
	HandleFunc(pattern string, handler http.HandlerFunc)
}) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/heap", pprof.Handler("heap").ServeHTTP)
}
