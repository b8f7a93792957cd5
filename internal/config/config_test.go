package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGraphQLDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.GraphQL.URL != DefaultGraphQLURL {
		t.Fatalf("expected default graphql url, got %q", cfg.GraphQL.URL)
	}
	if cfg.GraphQL.PollInterval != 30*time.Second {
		t.Fatalf("expected 30s poll interval, got %v", cfg.GraphQL.PollInterval)
	}
	if cfg.GraphQL.PageSize != 100 {
		t.Fatalf("expected page size 100, got %d", cfg.GraphQL.PageSize)
	}
	if cfg.GraphQL.Skip != 0 {
		t.Fatalf("expected skip 0, got %d", cfg.GraphQL.Skip)
	}
}

func TestMetricsDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Metrics.Enabled == nil || !cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics enabled default")
	}
	if cfg.Metrics.Address != "127.0.0.1:9001" {
		t.Fatalf("expected metrics address default, got %q", cfg.Metrics.Address)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Fatalf("expected metrics path default, got %q", cfg.Metrics.Path)
	}
}

func TestMetricsEnabledFalseRespected(t *testing.T) {
	enabled := false
	cfg := &Config{Metrics: MetricsConfig{Enabled: &enabled}}
	applyDefaults(cfg)
	if cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics enabled=false to be preserved")
	}
}

func TestValidateRejectsPageSize(t *testing.T) {
	cfg := &Config{GraphQL: GraphQLConfig{PageSize: 5000}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for oversized page")
	}
}

func TestValidateRejectsNegativeSkip(t *testing.T) {
	cfg := &Config{GraphQL: GraphQLConfig{Skip: -1}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for negative skip")
	}
}

func TestValidateRejectsFastPolling(t *testing.T) {
	cfg := &Config{GraphQL: GraphQLConfig{PollInterval: 10 * time.Millisecond}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for sub-second poll interval")
	}
}

func TestValidateRejectsMetricsPathWithoutSlash(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Path: "metrics"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for metrics path without leading slash")
	}
}

func TestValidateRejectsTelegramEnabledWithoutConfig(t *testing.T) {
	t.Setenv("LOOP_TELEGRAM_TOKEN", "")
	t.Setenv("LOOP_TELEGRAM_CHAT_ID", "")
	cfg := &Config{Telegram: TelegramConfig{Enabled: true}}
	applyDefaults(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("env overrides: %v", err)
	}
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing telegram token/chat_id")
	}
}

func TestValidateRejectsTimescaleWithoutDSN(t *testing.T) {
	cfg := &Config{Timescale: TimescaleConfig{Enabled: true}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing timescale dsn")
	}
}

func TestEnvOverridesConfig(t *testing.T) {
	t.Setenv("LOOP_TELEGRAM_TOKEN", "env-token")
	t.Setenv("LOOP_TELEGRAM_CHAT_ID", "123")
	t.Setenv("LOOP_GRAPHQL_URL", "http://localhost:4000/graphql")
	cfg := &Config{Telegram: TelegramConfig{Enabled: true, Token: "config-token", ChatID: "999"}}
	applyDefaults(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("env overrides: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("expected env token override, got %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.ChatID != "123" {
		t.Fatalf("expected env chat id override, got %q", cfg.Telegram.ChatID)
	}
	if cfg.GraphQL.URL != "http://localhost:4000/graphql" {
		t.Fatalf("expected env graphql url, got %q", cfg.GraphQL.URL)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("expected valid config with env overrides, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "" +
		"log:\n  level: debug\n" +
		"graphql:\n  poll_interval: 45s\n  page_size: 50\n" +
		"http:\n  address: 0.0.0.0:9999\n" +
		"feed:\n  allowed_origins:\n    - dash.example.com\n    - \"*.loop.fi\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Log.Level)
	}
	if cfg.GraphQL.PollInterval != 45*time.Second {
		t.Fatalf("expected 45s poll interval, got %v", cfg.GraphQL.PollInterval)
	}
	if cfg.GraphQL.PageSize != 50 {
		t.Fatalf("expected page size 50, got %d", cfg.GraphQL.PageSize)
	}
	if cfg.HTTP.Address != "0.0.0.0:9999" {
		t.Fatalf("expected http address override, got %q", cfg.HTTP.Address)
	}
	if len(cfg.Feed.AllowedOrigins) != 2 || cfg.Feed.AllowedOrigins[1] != "*.loop.fi" {
		t.Fatalf("expected feed origins, got %v", cfg.Feed.AllowedOrigins)
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestValidateRejectsOperatorWithoutTelegram(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{OperatorEnabled: true}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for operator without telegram")
	}
}

func TestOperatorPollDefault(t *testing.T) {
	cfg := Default()
	if cfg.Telegram.OperatorPollInterval != 30*time.Second {
		t.Fatalf("expected 30s operator poll, got %v", cfg.Telegram.OperatorPollInterval)
	}
}

func TestFromEnvAppliesOverrides(t *testing.T) {
	t.Setenv("LOOP_HTTP_ADDRESS", "0.0.0.0:8088")
	t.Setenv("LOOP_LOG_LEVEL", "debug")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.HTTP.Address != "0.0.0.0:8088" || cfg.Log.Level != "debug" {
		t.Fatalf("expected env overrides, got %+v %+v", cfg.HTTP, cfg.Log)
	}
	if cfg.GraphQL.URL != DefaultGraphQLURL {
		t.Fatalf("expected default graphql url, got %q", cfg.GraphQL.URL)
	}
}

func TestValidateRejectsEmptyFeedOrigin(t *testing.T) {
	cfg := &Config{Feed: FeedConfig{AllowedOrigins: []string{"dash.example.com", " "}}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for blank feed origin")
	}
}
