package main

import (
	"context"
	"fmt"
	"net"
	"slices"
	"testing"

	"imgstore/internal/api"
)

func TestFormatCLIErrorGuidance(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "network",
			err:  &net.DNSError{Err: "dial tcp: connection refused", Name: "127.0.0.1", IsTemporary: true},
			want: "hint: start local server manually with: imgstore srv",
		},
		{
			name: "unknown service",
			err:  &api.APIError{Status: 404, Message: "api error: 404 Not Found"},
			want: "hint: verify IMGSTORE_API_URL points to an imgstore server.",
		},
		{
			name: "admin auth",
			err:  &api.APIError{Status: 401, Code: "unauthorized", Message: "invalid admin token"},
			want: "hint: set IMGSTORE_ADMIN_TOKEN to the token hashed into admin_token_hash.",
		},
		{
			name: "rate limited",
			err:  &api.APIError{Status: 429, Code: "resource_exhausted", Message: "too many uploads"},
			want: "hint: the server limits upload rate; retry shortly.",
		},
		{
			name: "internal",
			err:  &api.APIError{Status: 500, Code: "internal", Message: "internal error"},
			want: "hint: server returned an internal error; check server logs for details.",
		},
		{
			name: "timeout",
			err:  fmt.Errorf("upload: %w", context.DeadlineExceeded),
			want: "hint: request timed out; check server health or increase IMGSTORE_HTTP_TIMEOUT.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := formatCLIError(tt.err)
			if len(lines) == 0 || lines[0] != tt.err.Error() {
				t.Fatalf("expected error message first, got %v", lines)
			}
			if !slices.Contains(lines, tt.want) {
				t.Fatalf("expected %q, got %v", tt.want, lines)
			}
		})
	}
}

func TestFormatCLIErrorNil(t *testing.T) {
	if lines := formatCLIError(nil); lines != nil {
		t.Fatalf("expected nil, got %v", lines)
	}
}
