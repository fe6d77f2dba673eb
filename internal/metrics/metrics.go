// Package metrics exports prediction, learning and sync counters to
// Prometheus. A nil *Recorder records nothing.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kanaserve"

// Operation labels.
const (
	OpPredict = "predict"
	OpFinish  = "finish"
	OpRevert  = "revert"
	OpSync    = "sync"
	OpReload  = "reload"
)

type Recorder struct {
	gatherer   prometheus.Gatherer
	duration   *prometheus.HistogramVec
	operations *prometheus.CounterVec
	candidates *prometheus.HistogramVec
	entries    prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{
		gatherer: reg,
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of predictor operations.",
			Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .5},
		}, []string{"operation"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Predictor operations by outcome.",
		}, []string{"operation", "status"}),
		candidates: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_candidates",
			Help:      "Number of candidates returned per prediction.",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		}, []string{"source"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_entries",
			Help:      "Live entries in the user history.",
		}),
	}
	var err error
	if r.duration, err = register(reg, r.duration); err != nil {
		return nil, err
	}
	if r.operations, err = register(reg, r.operations); err != nil {
		return nil, err
	}
	if r.candidates, err = register(reg, r.candidates); err != nil {
		return nil, err
	}
	if r.entries, err = register(reg, r.entries); err != nil {
		return nil, err
	}
	return r, nil
}

// register adds c to reg, reusing the collector already registered under the
// same descriptor.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("register metrics: %w", err)
}

// Observe records one operation that started at start.
func (r *Recorder) Observe(op string, start time.Time, err error) {
	if r == nil {
		return
	}
	r.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.operations.WithLabelValues(op, status).Inc()
}

// Candidates records the result count of a prediction from source
// ("history" or "dictionary").
func (r *Recorder) Candidates(source string, n int) {
	if r == nil {
		return
	}
	r.candidates.WithLabelValues(source).Observe(float64(n))
}

func (r *Recorder) SetEntries(n int) {
	if r == nil {
		return
	}
	r.entries.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
