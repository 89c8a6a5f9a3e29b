package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeRedactsSensitiveKeys(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.Info("participant joined", "participant_id", "p1", "email", "ada@example.com", "auth_token", "abc")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["participant_id"] != "p1" {
		t.Fatalf("expected participant id kept, got %v", fields["participant_id"])
	}
	if fields["email"] != "[REDACTED]" || fields["auth_token"] != "[REDACTED]" {
		t.Fatalf("expected redaction, got %v", fields)
	}
}

func TestWithKeepsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := (&Logger{SugaredLogger: zap.New(core).Sugar()}).With("live_id", "L1")
	l.Debug("tick")

	if got := logs.All()[0].ContextMap()["live_id"]; got != "L1" {
		t.Fatalf("expected live_id field, got %v", got)
	}
}
