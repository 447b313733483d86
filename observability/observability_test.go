package observability

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestObserveOperation(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveOperation("", 20*time.Millisecond)
	m.ObserveOperation("", 30*time.Millisecond)
	m.ObserveOperation("KeyStoreError", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("failure", "KeyStoreError")))
}

func TestObserveOutput(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveOutput(4096, 1500)
	m.ObserveOutput(1024, 1500)

	assert.Equal(t, 5120.0, testutil.ToFloat64(m.SignedBytesTotal))
}

func TestNilMetricsAreIgnored(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("", time.Second)
	m.ObserveStage("Digested", time.Second)
	m.ObserveOutput(1, 1)
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveStage("Digested", 2*time.Millisecond)

	path := filepath.Join(t.TempDir(), "pdfsign.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `pdfsign_stage_duration_seconds_count{stage="Digested"} 1`)
}

func TestEndSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tracer := tp.Tracer(TracerName)

	_, ok := tracer.Start(context.Background(), "ok")
	EndSpan(ok, nil)
	_, failed := tracer.Start(context.Background(), "failed")
	EndSpan(failed, errors.New("boom"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}

func TestSetupTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultTracerConfig()
	cfg.ExporterType = "stdout"
	cfg.Writer = &buf

	tp, err := SetupTracing(context.Background(), cfg)
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "sign")
	span.End()
	require.NoError(t, ShutdownTracing(context.Background(), tp))

	assert.True(t, strings.Contains(buf.String(), `"Name": "sign"`), buf.String())
}

func TestSetupTracingRejectsUnknownExporter(t *testing.T) {
	cfg := DefaultTracerConfig()
	cfg.ExporterType = "zipkin"
	_, err := SetupTracing(context.Background(), cfg)
	assert.Error(t, err)
}
