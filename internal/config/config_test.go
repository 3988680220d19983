package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDBSource(t *testing.T) {
	t.Setenv("DB_SOURCE", "")
	if _, err := Load(); err == nil {
		t.Fatal("want error when DB_SOURCE is unset")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_SOURCE", "postgresql://localhost/topup")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.DispatchInterval != time.Second {
		t.Errorf("DispatchInterval = %s, want 1s", cfg.DispatchInterval)
	}
	if cfg.DispatchBatchSize != 100 {
		t.Errorf("DispatchBatchSize = %d, want 100", cfg.DispatchBatchSize)
	}
	if cfg.SettlementWorkers != 4 {
		t.Errorf("SettlementWorkers = %d, want 4", cfg.SettlementWorkers)
	}
	if cfg.Exchange != "topup_events" || cfg.Queue != "settlement_queue" {
		t.Errorf("broker defaults = %s/%s", cfg.Exchange, cfg.Queue)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_SOURCE", "postgresql://localhost/topup")
	t.Setenv("DISPATCH_INTERVAL", "5s")
	t.Setenv("DISPATCH_BATCH_SIZE", "25")
	t.Setenv("SETTLEMENT_WORKERS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DispatchInterval != 5*time.Second {
		t.Errorf("DispatchInterval = %s, want 5s", cfg.DispatchInterval)
	}
	if cfg.DispatchBatchSize != 25 || cfg.SettlementWorkers != 8 {
		t.Errorf("batch=%d workers=%d, want 25/8", cfg.DispatchBatchSize, cfg.SettlementWorkers)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"DISPATCH_BATCH_SIZE", "abc"},
		{"DISPATCH_BATCH_SIZE", "0"},
		{"DISPATCH_INTERVAL", "soon"},
		{"DISPATCH_INTERVAL", "-1s"},
		{"SETTLEMENT_WORKERS", "-2"},
	}

	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv("DB_SOURCE", "postgresql://localhost/topup")
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Errorf("want error for %s=%s", tc.key, tc.value)
			}
		})
	}
}
