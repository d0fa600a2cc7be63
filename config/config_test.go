package config

import (
	"strings"
	"testing"
	"time"

	"marketStructureBot/internal/domain"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PAIRS", "")
	t.Setenv("COLD_DB_DSN", "postgres://localhost:5432/structure?sslmode=disable")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	// Default symbols must be servable by the wired Binance futures source.
	want := []string{"BTCUSDT", "ETHUSDT"}
	if len(cfg.Pairs) != len(want) {
		t.Fatalf("expected %d default pairs, got %v", len(want), cfg.Pairs)
	}
	for i, p := range want {
		if cfg.Pairs[i] != p {
			t.Errorf("pair %d = %s, want %s", i, cfg.Pairs[i], p)
		}
	}
	if got := cfg.PipSize("BTCUSDT"); got != 1.0 {
		t.Errorf("pip size for BTCUSDT = %v, want 1.0", got)
	}
	if got := cfg.PipSize("USDJPY"); got != 0.01 {
		t.Errorf("pip size for USDJPY = %v, want 0.01", got)
	}
	if got := cfg.FillThreshold(domain.TF1h); got != 85 {
		t.Errorf("intraday fill threshold = %v, want 85", got)
	}
	if got := cfg.FillThreshold(domain.TF1d); got != 90 {
		t.Errorf("daily fill threshold = %v, want 90", got)
	}
	if got := cfg.Retention(); got != 30*24*time.Hour {
		t.Errorf("retention = %v, want 720h", got)
	}
}

func TestLoadConfigCollectsValidationErrors(t *testing.T) {
	t.Setenv("COLD_DB_DSN", "postgres://localhost:5432/structure")
	t.Setenv("SWING_LOOKBACK", "-1")
	t.Setenv("DISPLACEMENT_BODY_RATIO", "1.5")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, frag := range []string{"SWING_LOOKBACK", "DISPLACEMENT_BODY_RATIO"} {
		if !strings.Contains(err.Error(), frag) {
			t.Errorf("error does not mention %s: %v", frag, err)
		}
	}
}
