package errors

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestErrorIsMatchesByType(t *testing.T) {
	a := NewTimeoutError("pool-acquire", time.Second)
	b := NewTimeoutError("other-op", 2*time.Second)

	if !errors.Is(a, b) {
		t.Fatalf("expected two errors of the same type to match via errors.Is")
	}
	if errors.Is(a, NewProtocolError("x", nil)) {
		t.Fatalf("expected errors of different types to not match")
	}
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewConnectionError("example.com", 80, cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap to surface the original cause via errors.Is")
	}
}

func TestIsTimeoutErrorRecognizesContextDeadline(t *testing.T) {
	if !IsTimeoutError(context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded to be recognized as a timeout")
	}
	if IsTimeoutError(errors.New("something else")) {
		t.Fatalf("expected a plain error to not be a timeout")
	}
}

func TestGetErrorTypeReturnsEmptyForUnstructuredErrors(t *testing.T) {
	if GetErrorType(errors.New("plain")) != "" {
		t.Fatalf("expected empty ErrorType for an unstructured error")
	}
	if GetErrorType(NewHeaderError("X-Test", "bad")) != ErrorTypeHeader {
		t.Fatalf("expected ErrorTypeHeader")
	}
}

func TestWarningsAddAccumulates(t *testing.T) {
	var w Warnings
	w.Add("discarding %d", 1)
	w.Add("discarding %d", 2)

	if len(w) != 2 {
		t.Fatalf("expected 2 warnings, got %d", len(w))
	}
	if w[0] != "discarding 1" || w[1] != "discarding 2" {
		t.Fatalf("unexpected warning text: %v", w)
	}
}

func TestErrorStringIncludesTypeAndMessage(t *testing.T) {
	err := NewValidationError("bad input")
	got := err.Error()
	if got == "" {
		t.Fatalf("expected non-empty error string")
	}
	want := "[validation] validate: bad input"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
