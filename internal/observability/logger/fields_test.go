package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFingerprintIsTruncated(t *testing.T) {
	f := Fingerprint("0123456789abcdef0123456789abcdef")
	if f.String != "0123456789ab" {
		t.Fatalf("unexpected fp field: %q", f.String)
	}
}

func TestMaskedPhone(t *testing.T) {
	if got := MaskedPhone("+5491123456789").String; got != "+54******89" {
		t.Fatalf("unexpected mask: %q", got)
	}
	if got := MaskedPhone("+12").String; got != "***" {
		t.Fatalf("short phone must be fully masked, got %q", got)
	}
}

func TestFromUsesContextLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithFields(ToContext(context.Background(), zap.New(core)), RequestID("req-1"))

	From(ctx).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["request_id"] != "req-1" {
		t.Fatalf("request_id missing: %v", entries[0].ContextMap())
	}
}

func TestReplaceRestores(t *testing.T) {
	nop := zap.NewNop()
	restore := Replace(nop)
	if L() != nop {
		t.Fatal("Replace did not swap the singleton")
	}
	restore()
}
