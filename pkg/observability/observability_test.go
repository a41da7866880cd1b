package observability_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/plaenen/assetlimits/pkg/observability"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
					total += dp.Value
				}
			}
			return total
		}
	}
	return 0
}

func TestInit_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()

	tel, err := observability.Init(ctx, observability.Config{
		ServiceName:  "assetlimits-test",
		MetricReader: reader,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)
	defer tel.Shutdown(ctx)

	tel.Metrics.RecordAssignment(ctx, "assigned")
	tel.Metrics.RecordAssignment(ctx, "assigned")
	tel.Metrics.RecordAssignment(ctx, "rejected")
	tel.Metrics.RecordSuspiciousEvent(ctx, "duplicate_assignment")
	tel.Metrics.RecordCommand(ctx, "AssignAsset", 5*time.Millisecond, errors.New("boom"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(2), sumOf(t, rm, "limiting.assignments", attribute.String("outcome", "assigned")))
	assert.Equal(t, int64(1), sumOf(t, rm, "limiting.assignments", attribute.String("outcome", "rejected")))
	assert.Equal(t, int64(1), sumOf(t, rm, "limiting.suspicious_events", attribute.String("kind", "duplicate_assignment")))
	assert.Equal(t, int64(1), sumOf(t, rm, "limiting.command.errors", attribute.String("command", "AssignAsset")))
}

func TestInit_TracesSpans(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()

	tel, err := observability.Init(ctx, observability.Config{
		ServiceName:     "assetlimits-test",
		TraceExporter:   exporter,
		TraceSampleRate: 1.0,
		Logger:          quietLogger(),
	})
	require.NoError(t, err)
	defer tel.Shutdown(ctx)

	tracer := tel.Tracer(observability.InstrumentationName)

	_, ok := observability.StartSpan(ctx, tracer, "limiting.AssignAsset",
		observability.WithAttributes(observability.AssetAttrs("acc-1", "123", "US")...))
	observability.EndSpan(ok, nil)

	spanCtx, failed := observability.StartSpan(ctx, tracer, "limiting.RemoveAsset")
	assert.NotEmpty(t, observability.TraceID(spanCtx))
	observability.EndSpan(failed, errors.New("boom"))

	tp, isSDK := tel.TracerProvider.(*sdktrace.TracerProvider)
	require.True(t, isSDK)
	require.NoError(t, tp.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "limiting.AssignAsset", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Contains(t, spans[0].Attributes, observability.AttrAccountID.String("acc-1"))
	assert.Equal(t, codes.Error, spans[1].Status.Code)
}

func TestInit_DisabledSignalsAreNoops(t *testing.T) {
	ctx := context.Background()
	tel, err := observability.Init(ctx, observability.Config{ServiceName: "x", Logger: quietLogger()})
	require.NoError(t, err)

	require.NotNil(t, tel.Metrics)
	tel.Metrics.RecordConflict(ctx, "AssignAsset")

	spanCtx, span := observability.StartSpan(ctx, tel.Tracer("x"), "noop")
	observability.EndSpan(span, nil)
	assert.Empty(t, observability.TraceID(spanCtx))
	assert.NoError(t, tel.Shutdown(ctx))
}

func TestNoopMetrics(t *testing.T) {
	m := observability.NoopMetrics()
	m.RecordSinkFailure(context.Background())
	m.RecordNATSMessage(context.Background(), "limit-changes", "receive", "ack")
}

func TestNewOTLPExporter(t *testing.T) {
	exporter, err := observability.NewOTLPExporter(context.Background(), "http://127.0.0.1:4318")
	require.NoError(t, err)
	assert.NoError(t, exporter.Shutdown(context.Background()))
}
