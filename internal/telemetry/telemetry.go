package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "datachat"

func rotating(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger sets up JSON logging to a rotated file. The file is the
// client's developer console: nothing is written to the terminal.
func InitLogger(path string, level slog.Level) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	w := rotating(path)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, w, nil
}

// Recorder wraps the spans and instruments recorded around backend calls.
type Recorder struct {
	tracer   trace.Tracer
	requests metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRecorder builds the instruments from a tracer and meter.
func NewRecorder(tracer trace.Tracer, meter metric.Meter) (*Recorder, error) {
	requests, err := meter.Int64Counter("datachat.requests",
		metric.WithDescription("Backend requests by operation"))
	if err != nil {
		return nil, fmt.Errorf("create requests counter: %w", err)
	}
	failures, err := meter.Int64Counter("datachat.request_failures",
		metric.WithDescription("Failed backend requests by operation"))
	if err != nil {
		return nil, fmt.Errorf("create failures counter: %w", err)
	}
	duration, err := meter.Float64Histogram("datachat.request_duration_ms",
		metric.WithDescription("Backend request duration in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return &Recorder{tracer: tracer, requests: requests, failures: failures, duration: duration}, nil
}

// Noop returns a recorder that records nothing.
func Noop() *Recorder {
	r, _ := NewRecorder(tracenoop.NewTracerProvider().Tracer(serviceName), metricnoop.NewMeterProvider().Meter(serviceName))
	return r
}

// Start opens a span for op. The returned func ends it and records the
// outcome; pass the call's error or nil.
func (r *Recorder) Start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if r == nil {
		return ctx, func(error) {}
	}
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	opAttr := metric.WithAttributes(attribute.String("operation", op))
	r.requests.Add(ctx, 1, opAttr)
	return ctx, func(err error) {
		r.duration.Record(ctx, float64(time.Since(start).Milliseconds()), opAttr)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.failures.Add(ctx, 1, opAttr)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// Init sets up tracing and metrics exported into rotated files under dir.
// The cleanup func flushes and closes everything.
func Init(ctx context.Context, dir string) (*Recorder, func(), error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	// Everything built so far is torn down in reverse if a later step fails.
	var closers []func(context.Context) error
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](ctx); err != nil {
				slog.Error("telemetry shutdown failed", "error", err)
			}
		}
	}
	fail := func(err error) (*Recorder, func(), error) {
		cleanup()
		return nil, nil, err
	}
	closeFile := func(f io.Closer) func(context.Context) error {
		return func(context.Context) error { return f.Close() }
	}

	traceFile := rotating(filepath.Join(dir, "datachat_traces.log"))
	closers = append(closers, closeFile(traceFile))
	traceExporter, err := newTraceExporter(traceFile)
	if err != nil {
		return fail(fmt.Errorf("failed to create trace exporter: %w", err))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	closers = append(closers, tp.Shutdown)

	metricsFile := rotating(filepath.Join(dir, "datachat_metrics.log"))
	closers = append(closers, closeFile(metricsFile))
	metricExporter, err := newMetricExporter(metricsFile)
	if err != nil {
		return fail(fmt.Errorf("failed to create metric exporter: %w", err))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(30*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	closers = append(closers, mp.Shutdown)

	rec, err := NewRecorder(tp.Tracer(serviceName), mp.Meter(serviceName))
	if err != nil {
		return fail(err)
	}
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return rec, cleanup, nil
}

// Exporter constructors; tests replace them to exercise failure paths.
var (
	newTraceExporter = func(w io.Writer) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	}
	newMetricExporter = func(w io.Writer) (sdkmetric.Exporter, error) {
		return stdoutmetric.New(stdoutmetric.WithWriter(w), stdoutmetric.WithPrettyPrint())
	}
)
