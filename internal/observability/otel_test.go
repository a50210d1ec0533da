package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/tbourn/go-prompt-manager/internal/config"
)

func enabled(name string, ratio float64) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: ratio,
	}
}

// keepGlobals restores the global provider and propagator after the test.
func keepGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

// stubExporter routes Setup's exporter to an in-memory one.
func stubExporter(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	mem := tracetest.NewInMemoryExporter()
	orig := newExporter
	t.Cleanup(func() { newExporter = orig })
	newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) { return mem, nil }
	return mem
}

func flush(t *testing.T) {
	t.Helper()
	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	if !ok {
		t.Fatalf("global provider is %T", otel.GetTracerProvider())
	}
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestSetup_DisabledLeavesGlobalsAlone(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), config.OTELConfig{Endpoint: "ignored:4317"}, "v0")
	if err != nil || shutdown == nil {
		t.Fatalf("Setup = %v, %v", shutdown, err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("disabled tracing replaced the provider")
	}
}

func TestSetup_ExportsSpansWithServiceResource(t *testing.T) {
	keepGlobals(t)
	mem := stubExporter(t)

	shutdown, err := Setup(context.Background(), enabled("promptd-test", 1), "v1.2.3")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	_, span := otel.Tracer("test").Start(context.Background(), "prompts.list")
	span.End()
	flush(t)

	spans := mem.GetSpans()
	if len(spans) != 1 || spans[0].Name != "prompts.list" {
		t.Fatalf("exported spans = %+v", spans)
	}
	attrs := spans[0].Resource.Set()
	if v, _ := attrs.Value(semconv.ServiceNameKey); v.AsString() != "promptd-test" {
		t.Fatalf("service.name = %q", v.AsString())
	}
	if v, _ := attrs.Value(semconv.ServiceVersionKey); v.AsString() != "v1.2.3" {
		t.Fatalf("service.version = %q", v.AsString())
	}
}

func TestSetup_ZeroRatioDropsRootSpans(t *testing.T) {
	keepGlobals(t)
	mem := stubExporter(t)

	shutdown, err := Setup(context.Background(), enabled("svc", 0), "v1")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	_, span := otel.Tracer("test").Start(context.Background(), "dropped")
	if span.SpanContext().IsSampled() {
		t.Fatalf("root span sampled at ratio 0")
	}
	span.End()
	flush(t)
	if n := len(mem.GetSpans()); n != 0 {
		t.Fatalf("exported %d spans; want 0", n)
	}
}

func TestSetup_PropagatesTraceContext(t *testing.T) {
	keepGlobals(t)
	stubExporter(t)

	shutdown, err := Setup(context.Background(), enabled("svc", 1), "v1")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	ctx, span := otel.Tracer("test").Start(context.Background(), "outbound")
	defer span.End()

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	tp := carrier.Get("traceparent")
	if !strings.Contains(tp, span.SpanContext().TraceID().String()) {
		t.Fatalf("traceparent %q does not carry trace id", tp)
	}
}

func TestSetup_RealExporterIsLazy(t *testing.T) {
	keepGlobals(t)

	// the gRPC exporter connects lazily, so a dead endpoint and a canceled
	// context still produce a working provider
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	shutdown, err := Setup(ctx, enabled("svc", 1), "v1")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	sctx, stop := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer stop()
	_ = shutdown(sctx)

	cfg := enabled("svc-tls", 1)
	cfg.Insecure = false
	shutdown, err = Setup(context.Background(), cfg, "v1")
	if err != nil {
		t.Fatalf("Setup TLS: %v", err)
	}
	_ = shutdown(sctx)
}

type shutdownCounter struct {
	sdktrace.SpanExporter
	calls int
}

func (s *shutdownCounter) Shutdown(context.Context) error { s.calls++; return nil }

func TestSetup_FailuresKeepGlobals(t *testing.T) {
	t.Run("exporter", func(t *testing.T) {
		keepGlobals(t)
		orig := newExporter
		t.Cleanup(func() { newExporter = orig })
		newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) {
			return nil, errors.New("boom-exporter")
		}

		before := otel.GetTracerProvider()
		if _, err := Setup(context.Background(), enabled("svc", 1), "v0"); err == nil || !strings.Contains(err.Error(), "boom-exporter") {
			t.Fatalf("err = %v", err)
		}
		if otel.GetTracerProvider() != before {
			t.Fatalf("provider changed on failure")
		}
	})

	t.Run("resource", func(t *testing.T) {
		keepGlobals(t)
		exp := &shutdownCounter{SpanExporter: tracetest.NewInMemoryExporter()}
		origExp, origRes := newExporter, newResource
		t.Cleanup(func() { newExporter, newResource = origExp, origRes })
		newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) { return exp, nil }
		newResource = func(context.Context, string, string) (*resource.Resource, error) {
			return nil, errors.New("boom-resource")
		}

		before := otel.GetTracerProvider()
		if _, err := Setup(context.Background(), enabled("svc", 1), "v0"); err == nil || !strings.Contains(err.Error(), "boom-resource") {
			t.Fatalf("err = %v", err)
		}
		if otel.GetTracerProvider() != before {
			t.Fatalf("provider changed on failure")
		}
		if exp.calls != 1 {
			t.Fatalf("exporter not shut down after resource failure (calls=%d)", exp.calls)
		}
	})
}

func TestSampler_Bounds(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tc := range cases {
		if got := sampler(tc.ratio).Description(); !strings.Contains(got, tc.want) {
			t.Errorf("sampler(%v) = %q; want it to mention %q", tc.ratio, got, tc.want)
		}
	}
}

func TestClientOptions_InsecureAndTLS(t *testing.T) {
	if n := len(clientOptions(config.OTELConfig{Endpoint: "x:4317", Insecure: true})); n != 2 {
		t.Fatalf("insecure options = %d; want 2", n)
	}
	if n := len(clientOptions(config.OTELConfig{Endpoint: "x:4317"})); n != 2 {
		t.Fatalf("tls options = %d; want 2", n)
	}
}
