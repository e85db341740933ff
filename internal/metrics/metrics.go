// Package metrics exposes Prometheus instrumentation for memory operations.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/noosphere/internal/apperr"
)

var (
	// operationDuration measures memory operation latency.
	// Labels: op (apply_deltas, create_entry, ...), status (ok, not_found, invalid, error)
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "noosphere",
		Subsystem: "memory",
		Name:      "operation_duration_seconds",
		Help:      "Memory operation latency in seconds",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	}, []string{"op", "status"})

	// operations counts memory operations by outcome.
	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noosphere",
		Subsystem: "memory",
		Name:      "operations_total",
		Help:      "Total memory operations by outcome",
	}, []string{"op", "status"})

	// deltasApplied counts individual state deltas by kind (scalar, list).
	deltasApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noosphere",
		Subsystem: "state",
		Name:      "deltas_applied_total",
		Help:      "Total state deltas applied by kind",
	}, []string{"kind"})

	// searchResults records how many hits each search returned.
	searchResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "noosphere",
		Subsystem: "entries",
		Name:      "search_results",
		Help:      "Number of results returned per search",
		Buckets:   []float64{0, 1, 2, 5, 10, 20},
	})

	// classified counts browse classifications by class.
	classified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noosphere",
		Subsystem: "synthesis",
		Name:      "classified_entries_total",
		Help:      "Entries classified during browse, by class",
	}, []string{"class"})
)

// Status maps an operation error to a metric label.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrInvalid):
		return "invalid"
	default:
		return "error"
	}
}

// ObserveOperation records one operation that started at start.
func ObserveOperation(op string, start time.Time, err error) {
	status := Status(err)
	operationDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	operations.WithLabelValues(op, status).Inc()
}

// AddDeltas records applied deltas.
func AddDeltas(scalar, list int) {
	if scalar > 0 {
		deltasApplied.WithLabelValues("scalar").Add(float64(scalar))
	}
	if list > 0 {
		deltasApplied.WithLabelValues("list").Add(float64(list))
	}
}

// ObserveSearchResults records the size of a search result set.
func ObserveSearchResults(n int) {
	searchResults.Observe(float64(n))
}

// IncClassified records one classified entry.
func IncClassified(class string) {
	classified.WithLabelValues(class).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
