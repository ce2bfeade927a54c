package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	tel, err := Init(ctx, nil)
	require.NoError(t, err)
	assert.NotNil(t, tel.tracer)
	assert.NotNil(t, tel.meter)

	cfg := &Config{Enabled: false, ServiceName: "botfleet-test"}
	tel, err = Init(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg, tel.Config())
	assert.Equal(t, tel, Get())
}

func TestInit_Enabled(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := &Config{
		Enabled:        true,
		ServiceName:    "botfleet-test",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		CollectorAddr:  "localhost:4317",
	}

	tel, err := Init(ctx, cfg)
	require.NoError(t, err)
	assert.NotNil(t, tel.tracerProvider)
	assert.NotNil(t, tel.meterProvider)
	assert.Equal(t, 15*time.Second, cfg.MetricInterval)
	assert.Equal(t, 1.0, cfg.SampleRatio)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	_ = Shutdown(shutdownCtx)
}

func TestShutdown_NilGlobal(t *testing.T) {
	globalTelemetry = nil
	assert.NoError(t, Shutdown(context.Background()))
}

func TestStartSpan_BeforeInit(t *testing.T) {
	globalTelemetry = nil
	ctx, span := StartSpan(context.Background(), "before-init")
	defer span.End()
	assert.NotNil(t, ctx)
	SetSpanAttributes(ctx, TenantIDAttr(4))

	// no panic on nil error or real error
	RecordError(span, nil)
	RecordError(span, errors.New("boom"))
	assert.Equal(t, "", GetTraceID(context.Background()))
}

func TestCounters_Disabled(t *testing.T) {
	_, err := Init(context.Background(), &Config{Enabled: false, ServiceName: "botfleet-test"})
	require.NoError(t, err)

	counter, err := NewCounter(MetricOpts{Name: "renewals_total", Description: "renewals", Unit: "1"})
	require.NoError(t, err)
	counter.Inc(context.Background(), TenantIDAttr(1), PaymentStatusAttr("paid"))
	counter.Add(context.Background(), 3)

	hist, err := NewHistogram(MetricOpts{Name: "handle_seconds", Unit: "s"})
	require.NoError(t, err)
	hist.Record(context.Background(), 0.25, StageAttr("READY"))

	var nilCounter *Counter
	nilCounter.Inc(context.Background())
	MustCounter(MetricOpts{Name: "must_total"}).Inc(context.Background())
}

func TestAttributeHelpers(t *testing.T) {
	assert.Equal(t, AttrTenantID, string(TenantIDAttr(7).Key))
	assert.Equal(t, int64(7), TenantIDAttr(7).Value.AsInt64())
	assert.Equal(t, "quota", DecisionAttr("quota").Value.AsString())
	assert.Equal(t, "AWAIT_KEY", StageAttr("AWAIT_KEY").Value.AsString())
	assert.Equal(t, "start", OperationAttr("start").Value.AsString())
	assert.Equal(t, "u1", UserIDAttr("u1").Value.AsString())
	assert.Equal(t, "timeout", ErrorTypeAttr("timeout").Value.AsString())
}
