package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/HrishitaRaj/smriti-ai/common/trace"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/observability"
)

func TestNew_JSONWithTraceAndRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.New(&buf, "debug", "json", "remote-token-xyz")

	ctx := trace.WithTraceID(context.Background(), "c_abc")
	observability.WithTrace(ctx, logger).Debug("remote write failed", "err", "401 remote-token-xyz")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not JSON: %v: %s", err, buf.String())
	}
	if line["trace_id"] != "c_abc" {
		t.Errorf("trace_id = %v", line["trace_id"])
	}
	if line["err"] != "401 [REDACTED]" {
		t.Errorf("err = %v", line["err"])
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.New(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %s", buf.String())
	}
}

func TestWithTrace_NoTraceReturnsBase(t *testing.T) {
	base := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if observability.WithTrace(context.Background(), base) != base {
		t.Error("expected the base logger back")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, "warn": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "loud": slog.LevelInfo}
	for in, want := range cases {
		if got := observability.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
