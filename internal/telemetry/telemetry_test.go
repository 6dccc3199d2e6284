package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitLoggerWritesJSON(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "logs", "datachat.log")
	logger, closer, err := InitLogger(path, slog.LevelInfo)
	if err != nil {
		t.Fatalf("InitLogger: %v", err)
	}
	logger.Info("upload failed", "file", "a.csv")
	logger.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, `"msg":"upload failed"`) || !strings.Contains(out, `"file":"a.csv"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level")
	}
}

func TestRecorderCountsFailures(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	rec, err := NewRecorder(tp.Tracer("test"), mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	_, end := rec.Start(context.Background(), "query")
	end(errors.New("boom"))
	_, end = rec.Start(context.Background(), "upload")
	end(nil)

	ended := spans.Ended()
	if len(ended) != 2 || ended[0].Name() != "query" || ended[1].Name() != "upload" {
		t.Fatalf("unexpected spans: %d", len(ended))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	if totals["datachat.requests"] != 2 || totals["datachat.request_failures"] != 1 {
		t.Fatalf("unexpected totals: %v", totals)
	}
}

func TestNilAndNoopRecorders(t *testing.T) {
	var nilRec *Recorder
	_, end := nilRec.Start(context.Background(), "query")
	end(nil)
	_, end = Noop().Start(context.Background(), "query")
	end(errors.New("ignored"))
}

type trackedExporter struct {
	sdktrace.SpanExporter
	shutdown bool
}

func (e *trackedExporter) Shutdown(ctx context.Context) error {
	e.shutdown = true
	return e.SpanExporter.Shutdown(ctx)
}

func TestInitTearsDownOnMetricExporterError(t *testing.T) {
	prevTrace, prevMetric := newTraceExporter, newMetricExporter
	defer func() { newTraceExporter, newMetricExporter = prevTrace, prevMetric }()

	tracked := &trackedExporter{SpanExporter: tracetest.NewInMemoryExporter()}
	newTraceExporter = func(io.Writer) (sdktrace.SpanExporter, error) { return tracked, nil }
	newMetricExporter = func(io.Writer) (sdkmetric.Exporter, error) { return nil, errors.New("no exporter") }

	before := otel.GetTracerProvider()
	rec, cleanup, err := Init(context.Background(), t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "metric exporter") {
		t.Fatalf("expected metric exporter error, got %v", err)
	}
	if rec != nil || cleanup != nil {
		t.Fatalf("expected no recorder or cleanup on failure")
	}
	if !tracked.shutdown {
		t.Fatalf("tracer provider was not shut down")
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("global tracer provider replaced by a failed Init")
	}
}
