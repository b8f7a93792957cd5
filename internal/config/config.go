package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const DefaultGraphQLURL = "https://blue-api.morpho.org/graphql"

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	GraphQL   GraphQLConfig   `yaml:"graphql"`
	HTTP      HTTPConfig      `yaml:"http"`
	State     StateConfig     `yaml:"state"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Feed      FeedConfig      `yaml:"feed"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type GraphQLConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PageSize     int           `yaml:"page_size"`
	Skip         int           `yaml:"skip"`
}

type HTTPConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`

	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
}

type FeedConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	// AllowedOrigins are host patterns for cross-origin websocket clients.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// envOverrides mirrors the LOOP_* variables that win over the YAML file.
type envOverrides struct {
	LogLevel       string `envconfig:"LOG_LEVEL"`
	GraphQLURL     string `envconfig:"GRAPHQL_URL"`
	HTTPAddress    string `envconfig:"HTTP_ADDRESS"`
	TelegramToken  string `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID string `envconfig:"TELEGRAM_CHAT_ID"`
	TimescaleDSN   string `envconfig:"TIMESCALE_DSN"`
}

const envPrefix = "LOOP"

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, validate(&cfg)
}

// Default returns a fully defaulted config, used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// FromEnv builds a config from defaults plus LOOP_* overrides, for running
// without a YAML file.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, validate(cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.GraphQL.URL == "" {
		cfg.GraphQL.URL = DefaultGraphQLURL
	}
	if cfg.GraphQL.Timeout == 0 {
		cfg.GraphQL.Timeout = 10 * time.Second
	}
	if cfg.GraphQL.PollInterval == 0 {
		cfg.GraphQL.PollInterval = 30 * time.Second
	}
	if cfg.GraphQL.PageSize == 0 {
		cfg.GraphQL.PageSize = 100
	}
	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = "127.0.0.1:8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/loop-dash.db"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 30 * time.Second
	}
	if cfg.Feed.PingInterval == 0 {
		cfg.Feed.PingInterval = 20 * time.Second
	}
	if cfg.Feed.ReconnectDelay == 0 {
		cfg.Feed.ReconnectDelay = 3 * time.Second
	}
}

func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	if v := strings.TrimSpace(env.LogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(env.GraphQLURL); v != "" {
		cfg.GraphQL.URL = v
	}
	if v := strings.TrimSpace(env.HTTPAddress); v != "" {
		cfg.HTTP.Address = v
	}
	if v := strings.TrimSpace(env.TelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(env.TelegramChatID); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(env.TimescaleDSN); v != "" {
		cfg.Timescale.DSN = v
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Log.Format != "json" && cfg.Log.Format != "console" {
		return fmt.Errorf("log.format must be json or console, got %q", cfg.Log.Format)
	}
	if cfg.GraphQL.PageSize <= 0 || cfg.GraphQL.PageSize > 1000 {
		return errors.New("graphql.page_size must be in (0, 1000]")
	}
	if cfg.GraphQL.Skip < 0 {
		return errors.New("graphql.skip must be >= 0")
	}
	if cfg.GraphQL.PollInterval < time.Second {
		return errors.New("graphql.poll_interval must be >= 1s")
	}
	if cfg.GraphQL.Timeout < 0 {
		return errors.New("graphql.timeout must be >= 0")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (strings.TrimSpace(cfg.Telegram.Token) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Telegram.OperatorEnabled && !cfg.Telegram.Enabled {
		return errors.New("telegram.operator_enabled requires telegram.enabled")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	if cfg.Feed.PingInterval < 0 || cfg.Feed.ReconnectDelay < 0 {
		return errors.New("feed intervals must be >= 0")
	}
	for _, origin := range cfg.Feed.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return errors.New("feed.allowed_origins entries must not be empty")
		}
	}
	return nil
}
