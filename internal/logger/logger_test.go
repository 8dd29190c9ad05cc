package logger

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"WARN":    logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"bogus":   logrus.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithRequestKeepsCallerID(t *testing.T) {
	r := httptest.NewRequest("GET", "/health", nil)
	r.Header.Set("X-Request-ID", "abc-123")

	entry := Discard().WithRequest(r)
	if entry.Data["req_id"] != "abc-123" {
		t.Fatalf("expected caller request id, got %v", entry.Data["req_id"])
	}
	if entry.Data["path"] != "/health" {
		t.Fatalf("expected path field, got %v", entry.Data["path"])
	}
}

func TestRequestIDGeneratedOnce(t *testing.T) {
	r := httptest.NewRequest("POST", "/transcribe", nil)
	first := RequestID(r)
	if first == "" {
		t.Fatal("expected generated request id")
	}
	if second := RequestID(r); second != first {
		t.Fatalf("expected stable id, got %q then %q", first, second)
	}
}

func TestWithErrorNil(t *testing.T) {
	l := Discard()
	if _, ok := l.WithError(nil).Data["error"]; ok {
		t.Fatal("nil error must not add an error field")
	}
	if got := l.WithError(errors.New("boom")).Data["error"]; got != "boom" {
		t.Fatalf("expected error field, got %v", got)
	}
}
