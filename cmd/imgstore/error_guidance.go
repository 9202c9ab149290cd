package main

import (
	"context"
	"errors"
	"net"

	"imgstore/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized", "forbidden":
			lines = append(lines, "hint: set IMGSTORE_ADMIN_TOKEN to the token hashed into admin_token_hash.")
		case "resource_exhausted":
			lines = append(lines, "hint: the server limits upload rate; retry shortly.")
		case "invalid_argument":
			lines = append(lines, "hint: uploads need an allowed extension, an image/* content type and a size under the limit.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify IMGSTORE_API_URL points to an imgstore server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase IMGSTORE_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure an imgstore server is running at IMGSTORE_API_URL.",
			"hint: start local server manually with: imgstore srv",
		)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
