package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"go.opentelemetry.io/otel"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(domain.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestSetupUnsupportedExporter(t *testing.T) {
	_, err := Setup(domain.TracingConfig{Enabled: true, ExporterType: "jaeger"})
	if err == nil {
		t.Error("expected error for unsupported exporter")
	}
}

func TestSetupStdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupWithWriter(domain.TracingConfig{
		Enabled:      true,
		ServiceName:  "kestrel-test",
		ExporterType: "stdout",
	}, &buf)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "probe")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !strings.Contains(buf.String(), "probe") {
		t.Errorf("expected exported span, got %q", buf.String())
	}
}
