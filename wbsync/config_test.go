package wbsync

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("WB_API_KEY", "secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Mode != "report" || cfg.Locale != "ru" {
		t.Fatalf("unexpected defaults: mode=%q locale=%q", cfg.Mode, cfg.Locale)
	}
	if cfg.BatchSize != 1000 || cfg.MaxRetries != 3 {
		t.Fatalf("unexpected batch/retry defaults: %d/%d", cfg.BatchSize, cfg.MaxRetries)
	}
	if cfg.PollInterval != 3*time.Second || cfg.PollTimeout != 180*time.Second {
		t.Fatalf("unexpected poll defaults: %s/%s", cfg.PollInterval, cfg.PollTimeout)
	}
	if cfg.LookbackMinutes != 31 || cfg.FullSync {
		t.Fatalf("unexpected feed defaults: %d/%v", cfg.LookbackMinutes, cfg.FullSync)
	}
	if cfg.StocksTable != "wb_stocks_current" {
		t.Fatalf("unexpected table: %q", cfg.StocksTable)
	}
	if cfg.EmitTotalsRow {
		t.Fatal("totals row must default to off")
	}
	if !cfg.GroupBy.NmId || !cfg.GroupBy.Barcode || !cfg.GroupBy.Size {
		t.Fatalf("item-level grouping must default on: %+v", cfg.GroupBy)
	}
	if cfg.GroupBy.Brand || cfg.GroupBy.Subject || cfg.GroupBy.VendorCode {
		t.Fatalf("descriptive grouping must default off: %+v", cfg.GroupBy)
	}
}

func TestLoadConfigRejectsMissingKey(t *testing.T) {
	t.Setenv("WB_API_KEY", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error without WB_API_KEY")
	}
}

func TestLoadConfigRejectsBadMode(t *testing.T) {
	t.Setenv("WB_API_KEY", "secret")
	t.Setenv("SYNC_MODE", "push")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error for unknown mode")
	}
}
