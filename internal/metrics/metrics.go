// Package metrics exposes Prometheus collectors for the consent engine.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registered collectors. A nil *Metrics records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	statusTransitions *prometheus.CounterVec
	validationResults *prometheus.CounterVec
	idempotentReplays *prometheus.CounterVec
	sessionLookups    *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers the collectors on reg. Collectors that are already
// registered are reused, so New may be called more than once per registry.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	m := &Metrics{gatherer: gatherer}

	var err error
	if m.statusTransitions, err = registerCounter(reg, prometheus.CounterOpts{
		Name: "consent_status_transitions_total",
		Help: "Consent status transitions by source and target status",
	}, "from", "to"); err != nil {
		return nil, err
	}
	if m.validationResults, err = registerCounter(reg, prometheus.CounterOpts{
		Name: "consent_validation_results_total",
		Help: "Submission validation outcomes by consent type",
	}, "consent_type", "result"); err != nil {
		return nil, err
	}
	if m.idempotentReplays, err = registerCounter(reg, prometheus.CounterOpts{
		Name: "consent_idempotent_replays_total",
		Help: "Requests answered from an idempotency record",
	}, "operation"); err != nil {
		return nil, err
	}
	if m.sessionLookups, err = registerCounter(reg, prometheus.CounterOpts{
		Name: "consent_session_lookups_total",
		Help: "Consent session lookups by store and result",
	}, "store", "result"); err != nil {
		return nil, err
	}
	if m.httpRequests, err = registerCounter(reg, prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests processed",
	}, "method", "path", "status"); err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
	if err := reg.Register(duration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		duration = existing
	}
	m.httpDuration = duration

	return m, nil
}

func registerCounter(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return counter, nil
}

// Handler serves the gathered metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) StatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ValidationResult(consentType string, valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.validationResults.WithLabelValues(consentType, result).Inc()
}

func (m *Metrics) IdempotentReplay(operation string) {
	if m == nil {
		return
	}
	m.idempotentReplays.WithLabelValues(operation).Inc()
}

func (m *Metrics) SessionLookup(store, result string) {
	if m == nil {
		return
	}
	m.sessionLookups.WithLabelValues(store, result).Inc()
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
