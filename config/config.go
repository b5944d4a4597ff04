package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DSNEnv = "CLUBLEDGER_DSN"

// Config is the YAML configuration of the server and CLI.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Audit    AuditConfig    `yaml:"audit"`
	Log      LogConfig      `yaml:"log"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ServerConfig struct {
	Addr       string        `yaml:"addr"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// LedgerConfig names the clearing accounts and sizes balance batches.
type LedgerConfig struct {
	SystemUsername string `yaml:"system_username"`
	AndeoUsername  string `yaml:"andeo_username"`
	BatchSize      int    `yaml:"batch_size"`
}

type AuditConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver: "postgres",
			DSN:    "host=localhost port=5432 user=postgres password=postgres dbname=clubledger sslmode=disable",
		},
		Server: ServerConfig{Addr: ":5000", SessionTTL: 7 * 24 * time.Hour},
		Ledger: LedgerConfig{
			SystemUsername: "system",
			AndeoUsername:  "andeo",
			BatchSize:      1000,
		},
		Audit: AuditConfig{BufferSize: 100},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// CLUBLEDGER_DSN overrides the configured DSN.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if dsn := os.Getenv(DSNEnv); dsn != "" {
		cfg.Database.DSN = dsn
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn: required"))
	}
	if c.Server.SessionTTL <= 0 {
		errs = append(errs, errors.New("server.session_ttl: must be positive"))
	}
	if c.Ledger.BatchSize <= 0 {
		errs = append(errs, errors.New("ledger.batch_size: must be positive"))
	}
	if c.Ledger.SystemUsername == "" || c.Ledger.AndeoUsername == "" {
		errs = append(errs, errors.New("ledger: clearing account usernames required"))
	} else if c.Ledger.SystemUsername == c.Ledger.AndeoUsername {
		errs = append(errs, errors.New("ledger: system and andeo accounts must differ"))
	}
	if c.Audit.BufferSize <= 0 {
		errs = append(errs, errors.New("audit.buffer_size: must be positive"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level: unknown level %q", l.Level)
}
