package otelx

import "testing"

func TestConfigFromEnv(t *testing.T) {
	orig := lookupEnv
	t.Cleanup(func() { lookupEnv = orig })

	env := map[string]string{}
	lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := ConfigFromEnv("clinic-service")
	if !cfg.Enabled {
		t.Fatal("expected tracing enabled by default")
	}
	if cfg.OTLPEndpoint != "jaeger:4317" {
		t.Fatalf("expected default endpoint, got %q", cfg.OTLPEndpoint)
	}
	if cfg.SampleRatio != 1.0 {
		t.Fatalf("expected sample ratio 1.0, got %v", cfg.SampleRatio)
	}
	if cfg.ServiceName != "clinic-service" {
		t.Fatalf("expected service name carried through, got %q", cfg.ServiceName)
	}

	env["OTEL_ENABLED"] = "false"
	env["OTEL_EXPORTER_OTLP_ENDPOINT"] = "collector:4317"
	env["OTEL_SAMPLING_RATIO"] = "0.25"

	cfg = ConfigFromEnv("clinic-service")
	if cfg.Enabled {
		t.Fatal("expected tracing disabled via OTEL_ENABLED=false")
	}
	if cfg.OTLPEndpoint != "collector:4317" {
		t.Fatalf("expected overridden endpoint, got %q", cfg.OTLPEndpoint)
	}
	if cfg.SampleRatio != 0.25 {
		t.Fatalf("expected sample ratio 0.25, got %v", cfg.SampleRatio)
	}

	env["OTEL_SAMPLING_RATIO"] = "7"
	cfg = ConfigFromEnv("clinic-service")
	if cfg.SampleRatio != 1.0 {
		t.Fatalf("expected out-of-range ratio to fall back to 1.0, got %v", cfg.SampleRatio)
	}
}
