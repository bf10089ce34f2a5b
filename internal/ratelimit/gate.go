package ratelimit

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/maaquib/djl-serving/internal/config"
)

// Error categories gated by the server.
const (
	CategoryWlm    = "wlm"
	CategoryServer = "server"
	CategoryModel  = "model"
	// CategoryAny is the fallback limiter consulted when a category limiter is
	// absent or has not tripped.
	CategoryAny = "any"
)

var (
	errorsObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serving_errors_observed_total",
		Help: "Errors reported to the admission gate, by category.",
	}, []string{"category"})

	gateTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serving_gate_trips_total",
		Help: "Admission gate trips, by the limiter that fired.",
	}, []string{"limiter"})
)

// Gate owns one limiter per configured error category plus the optional "any"
// fallback. The limiter set is fixed at construction; individual limiters
// handle their own synchronization, so concurrent checks need no locking here.
type Gate struct {
	limiters map[string]*Limiter
}

// NewGate builds a Gate from the category to spec mapping of a policy
// snapshot. Any malformed spec aborts construction, naming the offending
// configuration key.
func NewGate(specs map[string]string) (*Gate, error) {
	limiters := make(map[string]*Limiter, len(specs))
	for category, spec := range specs {
		l, err := Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", config.LimiterSpecKey(category), err)
		}
		limiters[category] = l
	}
	return &Gate{limiters: limiters}, nil
}

// OnWlmError reports whether the workload manager error rate is exceeded.
func (g *Gate) OnWlmError() bool {
	return g.onError(CategoryWlm, time.Now())
}

// OnServerError reports whether the server error rate is exceeded.
func (g *Gate) OnServerError() bool {
	return g.onError(CategoryServer, time.Now())
}

// OnModelError reports whether the model error rate is exceeded.
func (g *Gate) OnModelError() bool {
	return g.onError(CategoryModel, time.Now())
}

// onError consults the category limiter first; if it exists and trips, the
// "any" limiter keeps its budget. Otherwise the "any" limiter, when
// configured, has the final say. With neither configured admission is always
// allowed.
func (g *Gate) onError(category string, now time.Time) bool {
	errorsObserved.WithLabelValues(category).Inc()

	if l := g.limiters[category]; l != nil && l.ExceedAt(now) {
		gateTrips.WithLabelValues(category).Inc()
		return true
	}
	if l := g.limiters[CategoryAny]; l != nil {
		if l.ExceedAt(now) {
			gateTrips.WithLabelValues(CategoryAny).Inc()
			return true
		}
	}
	return false
}
