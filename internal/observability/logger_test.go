package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/geocoder89/sessionauth/internal/actorctx"
	"github.com/geocoder89/sessionauth/internal/observability"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestLogger_StampsContextIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	log := observability.NewLoggerTo(&buf, "prod")

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	ctx = actorctx.WithUserID(ctx, "u-1")
	log.InfoContext(ctx, "hello")
	span.End()

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}

	if rec["user_id"] != "u-1" {
		t.Fatalf("missing user_id: %v", rec)
	}
	if rec["trace_id"] != span.SpanContext().TraceID().String() || rec["span_id"] == nil {
		t.Fatalf("missing trace ids: %v", rec)
	}
}

func TestLogger_LevelByEnv(t *testing.T) {
	var buf bytes.Buffer

	observability.NewLoggerTo(&buf, "prod").Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug must be off outside dev: %s", buf.String())
	}

	observability.NewLoggerTo(&buf, "dev").Debug("shown")
	if buf.Len() == 0 {
		t.Fatalf("debug must be on in dev")
	}
}
