package server

import (
	"testing"
)

func TestListenAddrRemoteGuard(t *testing.T) {
	t.Run("allows loopback", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		addr, err := ListenAddr("http://127.0.0.1:7480")
		if err != nil {
			t.Fatalf("expected loopback to be allowed, got error: %v", err)
		}
		if addr != "127.0.0.1:7480" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})

	t.Run("blocks non-loopback by default", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		_, err := ListenAddr("http://0.0.0.0:7480")
		if err == nil {
			t.Fatal("expected error for non-loopback listen host")
		}
	})

	t.Run("allows non-loopback when explicitly enabled", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "true")
		addr, err := ListenAddr("http://0.0.0.0:7480")
		if err != nil {
			t.Fatalf("expected allow-remote to permit host, got error: %v", err)
		}
		if addr != "0.0.0.0:7480" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})
}

func TestListenAddrAcceptsHostPort(t *testing.T) {
	t.Setenv(allowRemoteEnvKey, "")
	addr, err := ListenAddr("localhost:9000")
	if err != nil {
		t.Fatalf("listen addr: %v", err)
	}
	if addr != "localhost:9000" {
		t.Fatalf("unexpected addr: %s", addr)
	}
	if _, err := ListenAddr(""); err == nil {
		t.Fatal("expected error for empty api url")
	}
}

func TestNewSizesBodyLimitFromLargestPolicy(t *testing.T) {
	srv := New("127.0.0.1:0", nil, Options{
		General: UploadPolicy{MaxSizeBytes: 5 << 20},
		Owner:   UploadPolicy{MaxSizeBytes: 3 << 20},
	}, discardLogger())
	if srv.maxUploadBody != 5<<20+multipartOverhead {
		t.Fatalf("unexpected body limit: %d", srv.maxUploadBody)
	}
	if srv.uploadLimiter != nil {
		t.Fatal("expected no limiter without a rate")
	}
}
