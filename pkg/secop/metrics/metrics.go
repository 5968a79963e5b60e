// Package metrics exposes Prometheus counters for module polling,
// updates and errors (SPEC_FULL.md §3 "Ambient addition — metrics"),
// mirrored through OpenTelemetry metric instruments the way the
// teacher's validation metrics double-report through both a local
// aggregate and an OTel meter (pkg/core/events/metrics.go).
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "secop_param_polls_total",
		Help: "Number of times a parameter's read wrapper was invoked by a poller.",
	}, []string{"module", "parameter"})

	updatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "secop_param_updates_total",
		Help: "Number of successful announceUpdate calls per parameter.",
	}, []string{"module", "parameter"})

	readErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "secop_param_read_errors_total",
		Help: "Number of announceUpdate calls that carried a read error.",
	}, []string{"module", "parameter"})

	writesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "secop_param_writes_total",
		Help: "Number of successful write wrapper invocations per parameter.",
	}, []string{"module", "parameter"})
)

// Registry is the collector set cmd/secopd registers against an
// http.Handler; exported so callers aren't forced to use the global
// prometheus.DefaultRegisterer.
var Registry = prometheus.NewRegistry()

// meter and its instruments mirror the counters above through whatever
// otel.MeterProvider the process installs. With no provider installed
// (the common case for this repo's example binary) otel falls back to
// its no-op implementation, so these calls are always safe to make.
var (
	meter           = otel.Meter("github.com/vitalybin/frappy/pkg/secop/metrics")
	pollsCounter, _ = meter.Int64Counter("secop.param.polls",
		metric.WithDescription("Number of times a parameter's read wrapper was invoked by a poller."))
	updatesCounter, _ = meter.Int64Counter("secop.param.updates",
		metric.WithDescription("Number of successful announceUpdate calls per parameter."))
	readErrorsCounter, _ = meter.Int64Counter("secop.param.read_errors",
		metric.WithDescription("Number of announceUpdate calls that carried a read error."))
	writesCounter, _ = meter.Int64Counter("secop.param.writes",
		metric.WithDescription("Number of successful write wrapper invocations per parameter."))
)

func init() {
	Registry.MustRegister(pollsTotal, updatesTotal, readErrorsTotal, writesTotal)
}

func attrs(module, parameter string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("module", module), attribute.String("parameter", parameter))
}

// ObservePoll records one poll of (module, parameter).
func ObservePoll(module, parameter string) {
	pollsTotal.WithLabelValues(module, parameter).Inc()
	pollsCounter.Add(context.Background(), 1, attrs(module, parameter))
}

// ObserveUpdate records one successful value update of (module, parameter).
func ObserveUpdate(module, parameter string) {
	updatesTotal.WithLabelValues(module, parameter).Inc()
	updatesCounter.Add(context.Background(), 1, attrs(module, parameter))
}

// ObserveReadError records one read error reported for (module, parameter).
func ObserveReadError(module, parameter string) {
	readErrorsTotal.WithLabelValues(module, parameter).Inc()
	readErrorsCounter.Add(context.Background(), 1, attrs(module, parameter))
}

// ObserveWrite records one successful write of (module, parameter).
func ObserveWrite(module, parameter string) {
	writesTotal.WithLabelValues(module, parameter).Inc()
	writesCounter.Add(context.Background(), 1, attrs(module, parameter))
}
