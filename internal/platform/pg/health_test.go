package pg

import (
	"context"
	"testing"
	"time"
)

func TestHealthCheckPool_NilPool(t *testing.T) {
	t.Parallel()

	if err := HealthCheckPool(context.Background(), nil); err == nil {
		t.Error("expected error for nil pool")
	}
}

func TestWaitForPool_NilPool(t *testing.T) {
	t.Parallel()

	if err := WaitForPool(context.Background(), nil, DefaultWaitConfig()); err == nil {
		t.Error("expected error for nil pool")
	}
}

func TestDefaultWaitConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultWaitConfig()
	if cfg.MaxAttempts != 10 {
		t.Errorf("MaxAttempts = %d, want 10", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %v, want 1s", cfg.InitialDelay)
	}
	if err := cfg.Normalize(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestGetPoolStats_NilPool(t *testing.T) {
	t.Parallel()

	if stats := GetPoolStats(nil); stats != (DBStats{}) {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}
