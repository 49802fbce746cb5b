package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"commander/internal/config"
	"commander/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("ALPACA_API_KEY", "")
	t.Setenv("ALPACA_API_SECRET", "")
	t.Setenv("APCA_API_KEY_ID", "")
	t.Setenv("APCA_API_SECRET_KEY", "")
	t.Setenv("ALPACA_LIVE_API_KEY", "")
	t.Setenv("ALPACA_LIVE_API_SECRET", "")
	t.Setenv("COMMANDER_MODE", "")

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.JournalPath = filepath.Join(dir, "journal.db")
	cfg.Storage.ArchiveDir = filepath.Join(dir, "runs")
	cfg.Paths.Settings = filepath.Join(dir, "settings.yaml")
	cfg.Paths.Baskets = filepath.Join(dir, "baskets")
	cfg.Paths.Strategies = filepath.Join(dir, "strategies")
	for _, d := range []string{cfg.Paths.Baskets, cfg.Paths.Strategies} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return cfg
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildWithoutCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trading.Mode = "LIVE"

	a, err := build(cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.close()

	if got := a.router.BrokerName(); got != "simulator" {
		t.Errorf("broker = %q, want simulator", got)
	}
	if got := a.router.Mode(); got != domain.ModePaper {
		t.Errorf("mode = %s, want PAPER without a live broker", got)
	}
	if err := a.router.SetMode(domain.ModeLive); err == nil {
		t.Error("SetMode(LIVE) succeeded without a live broker")
	}

	// Auto-trading is off by default, so a tick does nothing.
	if _, err := a.runner.Tick(context.Background()); err == nil {
		t.Error("Tick succeeded with auto-trading off")
	}
}

func TestBuildQuotesOffline(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trading.SimulatorPrices = map[string]string{"AAPL": "190.50", "spy": "500"}

	a, err := build(cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.close()

	ctx := context.Background()
	for sym, want := range map[string]string{"AAPL": "190.5", "SPY": "500"} {
		px, err := a.router.LatestPrice(ctx, sym)
		if err != nil {
			t.Errorf("LatestPrice(%s): %v", sym, err)
			continue
		}
		if !px.Equal(decimal.RequireFromString(want)) {
			t.Errorf("LatestPrice(%s) = %s, want %s", sym, px, want)
		}
	}
	if _, err := a.router.LatestPrice(ctx, "MSFT"); err == nil {
		t.Error("LatestPrice(MSFT) succeeded for an unseeded symbol")
	}
}

func TestBuildRejectsBadSimulatorPrice(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trading.SimulatorPrices = map[string]string{"AAPL": "abc"}
	if _, err := build(cfg, nil); err == nil {
		t.Fatal("build succeeded with an unparsable simulator price")
	}
}

func TestBuildWithoutLiveCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Alpaca.APIKey, cfg.Alpaca.APISecret = "paper-key", "paper-secret"

	a, err := build(cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.close()

	if got := a.router.BrokerName(); got != "alpaca" {
		t.Errorf("broker = %q, want alpaca", got)
	}
	if err := a.router.SetMode(domain.ModeLive); err == nil {
		t.Error("SetMode(LIVE) succeeded without a live key pair")
	}
	if got := a.router.Mode(); got != domain.ModePaper {
		t.Errorf("mode = %s, want PAPER", got)
	}
}

func TestCheckDefinitions(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, filepath.Join(cfg.Paths.Baskets, "tech.yaml"), "assets:\n  - {symbol: AAPL, weight: 60}\n  - {symbol: MSFT, weight: 40}\n")
	writeFile(t, filepath.Join(cfg.Paths.Baskets, "lopsided.yaml"), "assets:\n  - {symbol: AAPL, weight: 60}\n")
	writeFile(t, filepath.Join(cfg.Paths.Strategies, "core.yaml"),
		"enabled: true\nposition_sizing: {type: bp_percent, value: 10}\nuniverse: [AAPL, MSFT]\n")

	var out bytes.Buffer
	if err := checkDefinitions(&out, cfg); err != nil {
		t.Fatalf("checkDefinitions: %v", err)
	}
	text := out.String()
	for _, want := range []string{"tech", "lopsided", "weights sum to 60", "core", "bp_percent"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}
