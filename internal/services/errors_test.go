package services_test

import (
	"errors"
	"strings"
	"testing"

	"abide2nidm/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "convert", "bidsmri2nidm", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"convert", "bidsmri2nidm", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestFailureHintMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"timeout", services.Wrap(services.ErrTimeout, "merge", "csv2nidm", "timed out", nil), "timeout_seconds"},
		{"missing", services.Wrap(services.ErrNotFound, "validate", "inputs", "missing csv", nil), "dataset root"},
		{"copy", services.Wrap(services.ErrCopy, "copy", "phenotype", "short write", nil), "free space"},
		{"other", errors.New("plain"), "check logs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := services.FailureHint(tt.err)
			if tt.want == "" {
				if got != "" {
					t.Fatalf("expected empty hint, got %q", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Fatalf("expected hint containing %q, got %q", tt.want, got)
			}
		})
	}
}
