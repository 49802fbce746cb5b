package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the commander console.
type Config struct {
	Storage Storage       `yaml:"storage"`
	Server  Server        `yaml:"server"`
	Alpaca  Alpaca        `yaml:"alpaca"`
	Logging Logging       `yaml:"logging"`
	Trading TradingConfig `yaml:"trading"`
	Auto    AutoConfig    `yaml:"auto"`
	Paths   Paths         `yaml:"paths"`
}

// Storage holds paths for the event journal and run archive.
type Storage struct {
	DataDir     string `yaml:"data_dir"`
	JournalPath string `yaml:"journal_path"`
	ArchiveDir  string `yaml:"archive_dir"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API. The live
// account needs its own LiveAPIKey/LiveAPISecret pair; without it live
// trading is unavailable.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	LiveAPIKey      string `yaml:"live_api_key"`
	LiveAPISecret   string `yaml:"live_api_secret"`
	PaperURL        string `yaml:"paper_url"`
	LiveURL         string `yaml:"live_url"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// LiveCredentials returns the key pair for the live account, or empty
// strings when either half is missing.
func (a Alpaca) LiveCredentials() (key, secret string) {
	if a.LiveAPIKey == "" || a.LiveAPISecret == "" {
		return "", ""
	}
	return a.LiveAPIKey, a.LiveAPISecret
}

// Logging configures the application logger.
type Logging struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// TradingConfig holds the initial trading settings used when no settings
// file exists yet.
type TradingConfig struct {
	Mode             string `yaml:"mode"`
	AllowFractional  bool   `yaml:"allow_fractional"`
	SimulatorCash    string `yaml:"simulator_cash"`
	MaxOrderNotional string `yaml:"max_order_notional"` // empty or zero disables the cap

	// SimulatorPrices seeds the offline simulator's quotes, symbol to price.
	SimulatorPrices map[string]string `yaml:"simulator_prices"`
}

// AutoConfig holds the initial auto-trading settings.
type AutoConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Strategy        string `yaml:"strategy"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// Paths locates the user-editable settings and definition files.
type Paths struct {
	Settings   string `yaml:"settings"`
	Baskets    string `yaml:"baskets"`
	Strategies string `yaml:"strategies"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, fills defaults, and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a configuration built only from defaults and environment
// variables, for running without a config file.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}

	if cfg.Alpaca.PaperURL == "" {
		cfg.Alpaca.PaperURL = "https://paper-api.alpaca.markets"
	}
	if cfg.Alpaca.LiveURL == "" {
		cfg.Alpaca.LiveURL = "https://api.alpaca.markets"
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}
	if cfg.Alpaca.TimeoutSeconds <= 0 {
		cfg.Alpaca.TimeoutSeconds = 15
	}
	if cfg.Alpaca.RateLimitPerMin <= 0 {
		cfg.Alpaca.RateLimitPerMin = 200
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.JournalPath == "" {
		cfg.Storage.JournalPath = filepath.Join(cfg.Storage.DataDir, "journal.db")
	}
	if cfg.Storage.ArchiveDir == "" {
		cfg.Storage.ArchiveDir = filepath.Join(cfg.Storage.DataDir, "runs")
	}

	cfg.Trading.Mode = strings.ToUpper(cfg.Trading.Mode)
	if cfg.Trading.Mode != "LIVE" {
		cfg.Trading.Mode = "PAPER"
	}
	if cfg.Trading.SimulatorCash == "" {
		cfg.Trading.SimulatorCash = "100000"
	}

	if cfg.Auto.IntervalSeconds <= 0 {
		cfg.Auto.IntervalSeconds = 60
	}

	if cfg.Paths.Settings == "" {
		cfg.Paths.Settings = filepath.Join("config", "settings.yaml")
	}
	if cfg.Paths.Baskets == "" {
		cfg.Paths.Baskets = filepath.Join("config", "baskets")
	}
	if cfg.Paths.Strategies == "" {
		cfg.Paths.Strategies = filepath.Join("config", "strategies")
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_PAPER_URL"); v != "" {
		cfg.Alpaca.PaperURL = v
	}
	if v := os.Getenv("ALPACA_LIVE_URL"); v != "" {
		cfg.Alpaca.LiveURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("ALPACA_FEED"); v != "" {
		cfg.Alpaca.Feed = v
	}

	if v := os.Getenv("ALPACA_LIVE_API_KEY"); v != "" {
		cfg.Alpaca.LiveAPIKey = v
	}
	if v := os.Getenv("ALPACA_LIVE_API_SECRET"); v != "" {
		cfg.Alpaca.LiveAPISecret = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("COMMANDER_MODE"); v != "" {
		cfg.Trading.Mode = v
	}

	// Standard Alpaca env vars take priority: they are the names the SDK reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
