package store

import (
	"testing"
	"time"
)

func TestIntFromEnv(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 3},
		{"4", 4},
		{" 8 ", 8},
		{"bad", 3},
		{"0", 3},
		{"-2", 3},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Setenv(maxOpenConnsEnvKey, tt.raw)
			if got := intFromEnv(maxOpenConnsEnvKey, 3); got != tt.want {
				t.Fatalf("intFromEnv(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDurationFromEnv(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", 2 * time.Minute},
		{"45s", 45 * time.Second},
		{"30", 30 * time.Second},
		{"invalid", 2 * time.Minute},
		{"-5s", 2 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Setenv(connMaxLifetimeEnvKey, tt.raw)
			if got := durationFromEnv(connMaxLifetimeEnvKey, 2*time.Minute); got != tt.want {
				t.Fatalf("durationFromEnv(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestOpenAppliesPoolSettingsFromEnv(t *testing.T) {
	t.Setenv(maxOpenConnsEnvKey, "2")
	st := testStore(t)
	if got := st.db.Stats().MaxOpenConnections; got != 2 {
		t.Fatalf("expected max open conns 2, got %d", got)
	}
}
