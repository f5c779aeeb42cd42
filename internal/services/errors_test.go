package services_test

import (
	"errors"
	"strings"
	"testing"

	"royalty/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrStoreUnavailable, "ledger", "open", "sqlite", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrStoreUnavailable) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"ledger", "open", "sqlite"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarkerAndDetail(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want services.Kind
	}{
		{nil, ""},
		{services.Wrap(services.ErrValidation, "api", "manual", "bad month", nil), services.KindInvalid},
		{services.Wrap(services.ErrStoreUnavailable, "ledger", "count", "", errors.New("disk")), services.KindUnavailable},
		{services.ErrAlreadySyncing, services.KindConflict},
		{services.Wrap(services.ErrNoWorkToDo, "syncer", "start", "", nil), services.KindNoop},
		{errors.New("other"), services.KindFailed},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
