package redact_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/HrishitaRaj/smriti-ai/common/redact"
)

func TestString_RedactsSensitiveValues(t *testing.T) {
	line := "POST /add-memory: Authorization: Bearer recall-token-12345"
	got := redact.String(line, "recall-token-12345")
	const want = "POST /add-memory: Authorization: Bearer [REDACTED]"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestString_SkipsShortValues(t *testing.T) {
	line := "abc token"
	if got := redact.String(line, "abc", ""); got != line {
		t.Fatalf("short value should not be redacted; got %q", got)
	}
}

func TestString_MultipleValues(t *testing.T) {
	got := redact.String("llm=sk-or-abcdef matrix=syt_tok_xyz end", "sk-or-abcdef", "syt_tok_xyz")
	if got != "llm=[REDACTED] matrix=[REDACTED] end" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestMap_RedactsSensitiveKeys(t *testing.T) {
	m := map[string]any{
		"remote_url":   "http://localhost:8000",
		"remote_token": "tok_123",
		"llm_api_key":  "sk-abc",
		"db_path":      "",
		"port":         8000,
	}
	out := redact.Map(m)

	if out["remote_url"] != "http://localhost:8000" {
		t.Errorf("remote_url should not be redacted, got %v", out["remote_url"])
	}
	if out["remote_token"] != "[REDACTED]" || out["llm_api_key"] != "[REDACTED]" {
		t.Errorf("secrets not redacted: %v", out)
	}
	if out["port"] != 8000 {
		t.Errorf("non-string value changed: %v", out["port"])
	}
	if m["remote_token"] != "tok_123" {
		t.Error("Map mutated the original")
	}
}

func TestHandler_ScrubsMessageAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	secret := "bearer-secret-777"
	logger := slog.New(redact.NewHandler(slog.NewTextHandler(&buf, nil), secret))

	logger.With("base", "url?token="+secret).Info("remote failed with "+secret,
		"err", errors.New("401 for "+secret),
		"access_token", "anything",
		slog.Group("req", "auth", "x", "path", "/ask?k="+secret),
		"count", 3,
	)

	out := buf.String()
	if strings.Contains(out, secret) {
		t.Fatalf("secret leaked: %s", out)
	}
	for _, want := range []string{"remote failed with [REDACTED]", "access_token=[REDACTED]", "count=3", "req.path="} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestHandler_NoSecretsPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(redact.NewHandler(slog.NewTextHandler(&buf, nil)))
	logger.Info("hello", "text", "tea with Meena")
	if !strings.Contains(buf.String(), `text="tea with Meena"`) {
		t.Errorf("output = %s", buf.String())
	}
}
