package telemetry

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/melih/servery/internal/core/ports"
)

func TestMetrics_ObserveProvision(t *testing.T) {
	m := NewMetrics()

	m.ObserveProvision("created", 2*time.Second)
	m.ObserveProvision("created", time.Second)
	m.ObserveProvision("runtime_error", time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(m.provisions.WithLabelValues("created")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.provisions.WithLabelValues("runtime_error")))
}

func TestMetrics_HandlerExposesSeries(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("GET", "/api/v1/servers", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `servery_http_requests_total{code="200",method="GET",route="/api/v1/servers"} 1`)
	require.Contains(t, string(body), "go_goroutines")
}

func TestTracerProvider_DisabledIsNoop(t *testing.T) {
	p, err := NewTracerProvider(TracingConfig{})
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "x")
	require.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestTracerProvider_StdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewTracerProvider(TracingConfig{Enabled: true, Exporter: "stdout", Writer: &buf})
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "provision.create")
	require.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	require.Contains(t, buf.String(), "provision.create")
}

func TestTracerProvider_UnknownExporter(t *testing.T) {
	_, err := NewTracerProvider(TracingConfig{Enabled: true, Exporter: "zipkin"})
	require.Error(t, err)
}

var _ ports.ProvisionObserver = (*Metrics)(nil)
