package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable the loader reads so defaults are observable
// regardless of the host environment.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
		"MAX_HEADER_BYTES", "GIN_MODE", "LOG_LEVEL", "LOG_PRETTY",
		"DB_PATH", "WS_SEND_BUFFER", "RATE_RPS", "RATE_BURST",
		"CORS_ALLOWED_ORIGINS", "ENABLE_HSTS", "HSTS_MAX_AGE",
		"LEDGER_ENABLED", "LEDGER_RPC_URL", "LEDGER_CONTRACT_ADDRESS",
		"LEDGER_PRIVATE_KEY", "LEDGER_CHAIN_ID", "LEDGER_CONFIRM_TIMEOUT",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "3000" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("mode/level defaults wrong: %q %q", cfg.GinMode, cfg.LogLevel)
	}
	if cfg.DBPath != "medtrack.db" || cfg.WSSendBuffer != 32 {
		t.Fatalf("app defaults wrong: %q %d", cfg.DBPath, cfg.WSSendBuffer)
	}
	if cfg.RateRPS != 20.0 || cfg.RateBurst != 40 {
		t.Fatalf("rate defaults wrong: %v %d", cfg.RateRPS, cfg.RateBurst)
	}
	if cfg.Ledger.Enabled {
		t.Fatal("ledger should default to disabled")
	}
	if cfg.Ledger.ChainID != 80002 || cfg.Ledger.ConfirmTimeout != 2*time.Minute {
		t.Fatalf("ledger defaults wrong: %d %v", cfg.Ledger.ChainID, cfg.Ledger.ConfirmTimeout)
	}
	if len(cfg.CORS.AllowedOrigins) != 0 {
		t.Fatalf("CORS should default to empty (allow-all), got %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("GIN_MODE", "test")
	t.Setenv("WS_SEND_BUFFER", "128")
	t.Setenv("RATE_RPS", "5.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("READ_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.LogLevel != "debug" || cfg.GinMode != "test" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.WSSendBuffer != 128 || cfg.RateRPS != 5.5 {
		t.Fatalf("numeric overrides not applied: %d %v", cfg.WSSendBuffer, cfg.RateRPS)
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Fatalf("duration override not applied: %v", cfg.ReadTimeout)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[0] != want[0] || cfg.CORS.AllowedOrigins[1] != want[1] {
		t.Fatalf("CSV parsing wrong: %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_NormalizesWarningAndBadGinMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("GIN_MODE", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("warning not normalized: %q", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("bad gin mode not coerced: %q", cfg.GinMode)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		key, val, wantSub string
	}{
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"WS_SEND_BUFFER", "0", "WS_SEND_BUFFER"},
		{"RATE_RPS", "-1", "RATE_RPS"},
		{"RATE_BURST", "0", "RATE_BURST"},
		{"MAX_HEADER_BYTES", "-5", "MAX_HEADER_BYTES"},
		{"OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, c := range cases {
		t.Run(c.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(c.key, c.val)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), c.wantSub) {
				t.Fatalf("%s=%s: expected error mentioning %s, got %v", c.key, c.val, c.wantSub, err)
			}
		})
	}
}

func TestLoad_LedgerEnabledRequiresCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEDGER_ENABLED", "true")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "LEDGER_CONTRACT_ADDRESS") {
		t.Fatalf("expected contract address error, got %v", err)
	}

	t.Setenv("LEDGER_CONTRACT_ADDRESS", "0x1234")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "LEDGER_PRIVATE_KEY") {
		t.Fatalf("expected private key error, got %v", err)
	}

	t.Setenv("LEDGER_PRIVATE_KEY", "deadbeef")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with full ledger config: %v", err)
	}
	if !cfg.Ledger.Enabled || cfg.Ledger.RPCURL == "" {
		t.Fatalf("ledger config wrong: %+v", cfg.Ledger)
	}
}

func TestMustLoad_PanicsOnInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "verbose")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustLoad()
}

func TestHelperFallbacks(t *testing.T) {
	t.Setenv("X_STR", "")
	t.Setenv("X_INT", "nope")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_FLOAT", "pi")

	if got := getenv("X_STR", "d"); got != "d" {
		t.Fatalf("getenv = %q", got)
	}
	if got := getint("X_INT", 7); got != 7 {
		t.Fatalf("getint = %d", got)
	}
	if got := getbool("X_BOOL", true); got != true {
		t.Fatalf("getbool = %v", got)
	}
	if got := getdur("X_DUR", time.Minute); got != time.Minute {
		t.Fatalf("getdur = %v", got)
	}
	if got := getfloat("X_FLOAT", 1.5); got != 1.5 {
		t.Fatalf("getfloat = %v", got)
	}
}
