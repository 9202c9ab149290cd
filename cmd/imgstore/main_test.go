package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"imgstore/internal/api"
)

func isolateConfig(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	t.Setenv("HOME", t.TempDir())
	t.Setenv("IMGSTORE_CONFIG_DIR", t.TempDir())
	t.Setenv("IMGSTORE_ENV_FILE", "")
	t.Setenv(logLevelEnvKey, "")
	t.Setenv(noAutostartEnvKey, "true")
}

func TestRunPrintsVersion(t *testing.T) {
	isolateConfig(t)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--version"}, &stdout, &stderr); code != exitOK {
		t.Fatalf("expected exit 0, got %d (%s)", code, stderr.String())
	}
	if got := strings.TrimSpace(stdout.String()); got != "imgstore version "+version {
		t.Fatalf("unexpected version output %q", got)
	}
}

func TestRunRejectsBadLogLevelFlag(t *testing.T) {
	isolateConfig(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"--log-level", "verbose", "config", "show"}, &stdout, &stderr)
	if code != exitFailure {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), `invalid --log-level "verbose"`) {
		t.Fatalf("expected log level error on stderr, got %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Fatalf("expected no stdout, got %q", stdout.String())
	}
}

func TestExitCode(t *testing.T) {
	missing := &api.APIError{Status: http.StatusNotFound, Code: "not_found", Message: "no image for owner"}
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: exitOK},
		{name: "missing image", err: missing, want: exitNotFound},
		{name: "wrapped missing image", err: fmt.Errorf("get: %w", missing), want: exitNotFound},
		{name: "validation", err: &api.APIError{Status: http.StatusBadRequest}, want: exitFailure},
		{name: "plain", err: errors.New("boom"), want: exitFailure},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.name, tt.want, got)
		}
	}
}
