// Package monitoring provides Prometheus metrics, OpenTelemetry tracing, and
// unified structured logging helpers for the fix pipeline.
package monitoring

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const namespace = "soar"

// logging level: 0=info, 1=debug
var logLevel int32

var (
	// EnvelopesReceived counts envelopes accepted by an ingress adapter, by source.
	EnvelopesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "ingest", Name: "envelopes_received_total", Help: "Envelopes accepted by an ingress adapter."},
		[]string{"source"},
	)
	EnvelopesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "ingest", Name: "envelopes_dropped_total", Help: "Envelopes dropped because a downstream queue was full and non-blocking shedding was in effect."},
		[]string{"source"},
	)
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Subsystem: "ingest", Name: "queue_depth", Help: "Current depth of an internal bounded queue."},
		[]string{"queue"},
	)
	ParseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "decode", Name: "parse_errors_total", Help: "Malformed protocol messages, by source."},
		[]string{"source"},
	)
	FixesPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "tracker", Name: "fixes_persisted_total", Help: "Fixes successfully written to the store, by source."},
		[]string{"source"},
	)
	FixesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "tracker", Name: "fixes_dropped_total", Help: "Fixes dropped after a persistence failure."},
		[]string{"reason"},
	)
	FlightTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "tracker", Name: "flight_transitions_total", Help: "Flight lifecycle transitions, by kind."},
		[]string{"kind"},
	)
	ActiveFlights = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Subsystem: "tracker", Name: "active_flights", Help: "Number of flights currently in the Active state (in-memory view)."},
	)
	AircraftStateEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Subsystem: "tracker", Name: "aircraft_state_entries", Help: "Number of entries currently held in the in-memory aircraft state map."},
	)
	AccumulatorEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "decode", Name: "accumulator_evictions_total", Help: "CPR/SBS accumulator entries evicted for being stale, plus Beast even/odd CPR pairs discarded for exceeding the pairing window, by source."},
		[]string{"source"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Subsystem: "http", Name: "requests_total", Help: "Admin HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Subsystem: "http", Name: "duration_seconds", Help: "Admin HTTP request duration.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		EnvelopesReceived, EnvelopesDropped, QueueDepth, ParseErrors,
		FixesPersisted, FixesDropped, FlightTransitions, ActiveFlights,
		AircraftStateEntries, AccumulatorEvictions, HTTPRequests, HTTPDuration,
	)
	SetLogLevel("info")
}

// SetLogLevel sets the process logging verbosity ("debug" or "info").
func SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		atomic.StoreInt32(&logLevel, 1)
		log.Printf("log_level=debug")
	default:
		atomic.StoreInt32(&logLevel, 0)
		log.Printf("log_level=info")
	}
}

func IsDebug() bool { return atomic.LoadInt32(&logLevel) == 1 }

func Debugf(format string, args ...interface{}) {
	if IsDebug() {
		log.Printf("DEBUG "+format, args...)
	}
}

// PrometheusHandler exposes registered metrics.
func PrometheusHandler() http.Handler { return promhttp.Handler() }

var tracer = otel.Tracer("soar")

// InitTracer installs an OpenTelemetry tracer provider. If endpoint is empty it installs
// a no-op-exporting provider so spans can still be created (and so context propagation
// keeps working) without a configured collector.
func InitTracer(endpoint, serviceName string) func() {
	ctx := context.Background()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	if endpoint == "" {
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName))),
		)
		otel.SetTracerProvider(tp)
		return func() { _ = tp.Shutdown(ctx) }
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		log.Printf("failed to create OTEL exporter: %v", err)
		return func() {}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName))),
	)
	otel.SetTracerProvider(tp)
	return func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer: %v", err)
		}
	}
}

// StartSpan starts a span on the pipeline tracer.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// StartClientSpan starts a client-kind span for an outbound call to an external
// collaborator (elevation service, device registry).
func StartClientSpan(ctx context.Context, name, target string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("soar-client").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("net.peer.target", target))
	return ctx, span
}
