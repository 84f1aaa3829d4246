// Package promexport exposes four Prometheus families - requests, failures,
// errors, and response time, each labeled by endpoint - built on
// github.com/prometheus/client_golang's CounterVec/GaugeVec.
package promexport

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"loadgen/internal/events"
	"loadgen/internal/results"
)

var labelNames = []string{"endpoint_type", "endpoint_name", "user_id", "user_name"}

// Exporter owns its own registry so one test's metrics never leak into
// another's, and records per-endpoint counters the way PrometheusExporter's
// add_success/add_failure/add_error do.
type Exporter struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	failures     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	responseTime *prometheus.GaugeVec
}

// New registers the four metric families under their fixed names.
func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rocust_request", Help: "Total number of requests",
		}, labelNames),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rocust_failure", Help: "Total number of failures",
		}, labelNames),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rocust_error", Help: "Total number of errors",
		}, labelNames),
		responseTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rocust_response_time", Help: "Last observed response time in seconds",
		}, labelNames),
	}
	e.registry.MustRegister(e.requests, e.failures, e.errors, e.responseTime)
	return e
}

// Handler serves the registry in the format promhttp expects, for mounting
// a /metrics endpoint on the introspection server alongside /results.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func labels(userID uint64, userName string, key results.EndpointKey) prometheus.Labels {
	return prometheus.Labels{
		"endpoint_type": key.Type,
		"endpoint_name": key.Name,
		"user_id":       fmt.Sprintf("%d", userID),
		"user_name":     userName,
	}
}

// AddSuccess mirrors PrometheusExporter::add_success.
func (e *Exporter) AddSuccess(userID uint64, userName string, key results.EndpointKey, responseTime time.Duration) {
	l := labels(userID, userName, key)
	e.requests.With(l).Inc()
	e.responseTime.With(l).Set(responseTime.Seconds())
}

// AddFailure mirrors PrometheusExporter::add_failure.
func (e *Exporter) AddFailure(userID uint64, userName string, key results.EndpointKey) {
	l := labels(userID, userName, key)
	e.requests.With(l).Inc()
	e.failures.With(l).Inc()
}

// AddError mirrors PrometheusExporter::add_error.
func (e *Exporter) AddError(userID uint64, userName string, key results.EndpointKey) {
	l := labels(userID, userName, key)
	e.requests.With(l).Inc()
	e.errors.With(l).Inc()
}

// Sink adapts the exporter into the aggregator's per-message hook
// (results.Aggregator.SetSink), so every request the aggregator applies also
// updates the Prometheus families without the exporter touching the events
// channel itself.
func (e *Exporter) Sink() func(events.Message) {
	return func(msg events.Message) {
		switch m := msg.(type) {
		case events.Success:
			e.AddSuccess(m.User.ID, m.User.Name, m.Key, m.ResponseTime)
		case events.Failure:
			e.AddFailure(m.User.ID, m.User.Name, m.Key)
		case events.Error:
			e.AddError(m.User.ID, m.User.Name, m.Key)
		}
	}
}

// gather renders the registry in Prometheus text exposition format.
func (e *Exporter) gather() ([]byte, error) {
	families, err := e.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return nil, fmt.Errorf("encode metrics: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// WriteCurrentMetricsFile overwrites one file with the current text
// exposition snapshot.
func (e *Exporter) WriteCurrentMetricsFile(path string) error {
	data, err := e.gather()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteHistorySnapshot writes one timestamp-prefixed file per update tick
// into folder, named "{timestamp_ms}_metrics.prom".
func (e *Exporter) WriteHistorySnapshot(folder string, at time.Time) error {
	data, err := e.gather()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("create metrics history directory: %w", err)
	}
	name := fmt.Sprintf("%d_metrics.prom", at.UnixMilli())
	return os.WriteFile(filepath.Join(folder, name), data, 0o644)
}
