package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newRecorder(opts Options) (*Hooks, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(l, opts), &buf
}

func TestForeignEntrySkippedRedactsNameByDefault(t *testing.T) {
	h, buf := newRecorder(Options{})
	h.ForeignEntrySkipped("users/1/README.md")
	out := buf.String()
	if strings.Contains(out, "README.md") {
		t.Fatalf("expected the raw name to be redacted, got: %s", out)
	}
	if !strings.Contains(out, "persidict.foreign_entry_skipped") {
		t.Fatalf("expected the event name in output: %s", out)
	}
}

func TestRedactIsDeterministic(t *testing.T) {
	h, buf := newRecorder(Options{})
	h.VanishedDuringIteration("users/1")
	first := buf.String()

	buf.Reset()
	h.VanishedDuringIteration("users/1")
	second := buf.String()

	if first != second {
		t.Fatalf("redaction of the same key should be stable: %q vs %q", first, second)
	}
}

func TestCustomRedactorIsUsed(t *testing.T) {
	h, buf := newRecorder(Options{Redact: func(s string) string { return "REDACTED:" + s }})
	h.FsyncFailureAbsorbed("/var/data", errors.New("boom"))
	if !strings.Contains(buf.String(), "REDACTED:/var/data") {
		t.Fatalf("expected custom redactor output, got: %s", buf.String())
	}
}

func TestRenameRetriedSampling(t *testing.T) {
	h, buf := newRecorder(Options{RenameRetriedEvery: 3})
	for i := 0; i < 6; i++ {
		h.RenameRetried("k", i, nil)
	}
	n := strings.Count(buf.String(), "persidict.rename_retried")
	if n != 2 {
		t.Fatalf("expected every 3rd call logged (2 of 6), got %d", n)
	}
}

func TestForeignEntrySkippedSamplingZeroMeansLogAll(t *testing.T) {
	h, buf := newRecorder(Options{ForeignEntrySkippedEvery: 0})
	for i := 0; i < 4; i++ {
		h.ForeignEntrySkipped("f")
	}
	n := strings.Count(buf.String(), "persidict.foreign_entry_skipped")
	if n != 4 {
		t.Fatalf("0 should mean log every call, got %d of 4", n)
	}
}

func TestNilLoggerIsANoop(t *testing.T) {
	h := New(nil, Options{})
	h.BucketLifecycleAbsorbed("b", "reason")
	h.ConsistencyCheckFailed("k")
	h.PreconditionRetried("k", nil)
}

func TestBucketLifecycleAbsorbedLogsBucketAndReason(t *testing.T) {
	h, buf := newRecorder(Options{})
	h.BucketLifecycleAbsorbed("my-bucket", "forbidden_on_head_bucket")
	out := buf.String()
	if !strings.Contains(out, "my-bucket") || !strings.Contains(out, "forbidden_on_head_bucket") {
		t.Fatalf("expected bucket and reason in output: %s", out)
	}
}
