package logrus

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/persidict"
)

func newLogger(buf *bytes.Buffer) LogrusLogger {
	l := logrus.New()
	l.SetOutput(buf)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return LogrusLogger{E: logrus.NewEntry(l)}
}

func TestLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf)

	l.Info("hello", persidict.Fields{"key": "users/1"})
	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, "key=users/1") {
		t.Fatalf("expected message and field in output: %s", out)
	}
}

func TestErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf)
	l.Error("boom", persidict.Fields{"attempt": 3})
	out := buf.String()
	if !strings.Contains(out, "level=error") || !strings.Contains(out, "boom") {
		t.Fatalf("expected an error-level log line, got: %s", out)
	}
}

func TestNilFieldsDoNotPanic(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf)
	l.Warn("no fields", nil)
	if !strings.Contains(buf.String(), "no fields") {
		t.Fatalf("expected message in output: %s", buf.String())
	}
}
