// Package observability holds the Prometheus metrics and OpenTelemetry
// tracing used by the signing service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the signing service collectors.
type Metrics struct {
	// OperationsTotal counts sign operations by outcome and error kind
	OperationsTotal *prometheus.CounterVec

	// OperationDuration tracks whole operation duration in seconds
	OperationDuration *prometheus.HistogramVec

	// StageDuration tracks the duration of each state in seconds
	StageDuration *prometheus.HistogramVec

	// SignedBytesTotal counts bytes of signed output written
	SignedBytesTotal prometheus.Counter

	// SignatureBytes tracks the size of produced CMS objects
	SignatureBytes prometheus.Histogram
}

// NewMetrics creates and registers the collectors on reg. A nil reg
// registers nothing.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfsign_operations_total",
				Help: "Total number of sign operations by outcome",
			},
			[]string{"outcome", "kind"}, // outcome: success, failure
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdfsign_operation_duration_seconds",
				Help:    "Sign operation duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to 10s
			},
			[]string{"outcome"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdfsign_stage_duration_seconds",
				Help:    "Duration of each signing stage in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"stage"},
		),
		SignedBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pdfsign_signed_bytes_total",
				Help: "Total number of signed document bytes written",
			},
		),
		SignatureBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pdfsign_signature_bytes",
				Help:    "Size of produced CMS signatures in bytes",
				Buckets: prometheus.LinearBuckets(1024, 1024, 8),
			},
		),
	}
}

// ObserveOperation records the outcome of one operation. kind is empty on
// success.
func (m *Metrics) ObserveOperation(kind string, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if kind != "" {
		outcome = "failure"
	}
	m.OperationsTotal.WithLabelValues(outcome, kind).Inc()
	m.OperationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveStage records the time spent in stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveOutput records a finished document and its signature size.
func (m *Metrics) ObserveOutput(documentBytes, signatureBytes int) {
	if m == nil {
		return
	}
	m.SignedBytesTotal.Add(float64(documentBytes))
	m.SignatureBytes.Observe(float64(signatureBytes))
}

// WriteTextfile writes the metrics gathered by g in the text exposition
// format, for the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
