package slog

import (
	"bytes"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/persidict"
)

func TestLoggerLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelDebug}))}

	l.Info("hello", persidict.Fields{"key": "users/1"})
	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, "key=users/1") {
		t.Fatalf("expected message and field in output: %s", out)
	}
}

func TestNilFieldsDoNotPanic(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, nil))}
	l.Warn("no fields", nil)
	if !strings.Contains(buf.String(), "no fields") {
		t.Fatalf("expected message in output: %s", buf.String())
	}
}

func TestDebugRespectsLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo}))}
	l.Debug("should be filtered", nil)
	if buf.Len() != 0 {
		t.Fatalf("Debug below the handler's level should produce no output, got: %s", buf.String())
	}
}
