package audit

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(enabled bool) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	return NewLogger(base, enabled), &buf
}

func TestLogDeploy_Success(t *testing.T) {
	l, buf := newTestLogger(true)
	l.LogDeploy("acme-web-42", "webhook", false, nil)

	out := buf.String()
	if !strings.Contains(out, "deploy.created") || !strings.Contains(out, "acme-web-42") {
		t.Fatalf("unexpected audit log: %s", out)
	}
	if strings.Contains(out, "level=ERROR") {
		t.Fatalf("success event logged at error level: %s", out)
	}
}

func TestLogDeploy_Failure(t *testing.T) {
	l, buf := newTestLogger(true)
	l.LogDeploy("acme-web-42", "webhook", true, errTest{})

	out := buf.String()
	if !strings.Contains(out, "deploy.failed") || !strings.Contains(out, "level=ERROR") {
		t.Fatalf("expected error-level failed deploy event, got: %s", out)
	}
}

func TestLog_DisabledIsNoOp(t *testing.T) {
	l, buf := newTestLogger(false)
	l.LogDeploy("acme-web-42", "webhook", false, nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output when audit logging disabled, got: %s", buf.String())
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
