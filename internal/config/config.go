// Package config provides configuration management for the playground.
//
// Values come from command-line flags, PLAYGROUND_* environment variables
// (optionally from .env and .env.local) and an optional config file, in that
// order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/flashdb/playground/internal/bucket"
	"github.com/flashdb/playground/internal/engine"
	"github.com/flashdb/playground/internal/logging"
)

// EnvPrefix is the prefix of environment variables, e.g. PLAYGROUND_DATA_DIR.
const EnvPrefix = "PLAYGROUND"

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds the playground configuration.
type Config struct {
	// Storage
	DataDir string
	Backend string

	// Logging
	LogLevel string
	LogMode  string

	// Engines
	SweepInterval time.Duration
	AOF           bool
	RDB           bool
	RDBThreshold  int
	LogCap        int
	SnapshotCap   int
	Engine        string

	// Hosts
	WebAddr string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:       "data",
		Backend:       BackendFile,
		LogLevel:      "info",
		LogMode:       logging.ModeDevelopment,
		SweepInterval: time.Second,
		RDBThreshold:  engine.DefaultSnapshotThreshold,
		LogCap:        bucket.DefaultLogCap,
		SnapshotCap:   bucket.DefaultSnapshotCap,
		Engine:        "redis",
		WebAddr:       ":8080",
	}
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String("config", "", "Path of a config file (json, yaml or toml)")
	fs.String("data-dir", d.DataDir, "Directory of the persisted buckets")
	fs.String("backend", d.Backend, "Bucket storage: file, sqlite or memory")
	fs.String("log-level", d.LogLevel, "Log level: debug, info, warn, error")
	fs.String("log-mode", d.LogMode, "Log encoding: development or production")
	fs.Duration("sweep-interval", d.SweepInterval, "Interval of the TTL sweep")
	fs.Bool("aof", d.AOF, "Append writes to the operation log")
	fs.Bool("rdb", d.RDB, "Capture key-value snapshots")
	fs.Int("rdb-threshold", d.RDBThreshold, "Writes between key-value snapshots")
	fs.Int("log-cap", d.LogCap, "Log cap of new buckets")
	fs.Int("snapshot-cap", d.SnapshotCap, "Snapshot cap of new buckets")
	fs.String("engine", d.Engine, "Initially active engine: redis, mongo or cassandra")
	fs.String("web-addr", d.WebAddr, "Listen address of the HTTP API")
}

// LoadEnv loads .env and .env.local from the working directory, if present.
func LoadEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// Load reads the configuration from v, which should have the flags of
// RegisterFlags bound.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("data-dir", d.DataDir)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-mode", d.LogMode)
	v.SetDefault("sweep-interval", d.SweepInterval)
	v.SetDefault("aof", d.AOF)
	v.SetDefault("rdb", d.RDB)
	v.SetDefault("rdb-threshold", d.RDBThreshold)
	v.SetDefault("log-cap", d.LogCap)
	v.SetDefault("snapshot-cap", d.SnapshotCap)
	v.SetDefault("engine", d.Engine)
	v.SetDefault("web-addr", d.WebAddr)

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
	}

	cfg := &Config{
		DataDir:       v.GetString("data-dir"),
		Backend:       strings.ToLower(v.GetString("backend")),
		LogLevel:      v.GetString("log-level"),
		LogMode:       v.GetString("log-mode"),
		SweepInterval: v.GetDuration("sweep-interval"),
		AOF:           v.GetBool("aof"),
		RDB:           v.GetBool("rdb"),
		RDBThreshold:  v.GetInt("rdb-threshold"),
		LogCap:        v.GetInt("log-cap"),
		SnapshotCap:   v.GetInt("snapshot-cap"),
		Engine:        strings.ToLower(v.GetString("engine")),
		WebAddr:       v.GetString("web-addr"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("config: invalid backend %q", c.Backend)
	}
	if _, ok := engine.Labels[c.Engine]; !ok {
		return fmt.Errorf("config: invalid engine %q", c.Engine)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("config: sweep-interval must be positive, got %s", c.SweepInterval)
	}
	if c.RDBThreshold < 1 {
		return fmt.Errorf("config: rdb-threshold must be at least 1, got %d", c.RDBThreshold)
	}
	return nil
}

// Settings returns the settings of newly created buckets.
func (c *Config) Settings() bucket.Settings {
	return bucket.Settings{
		LogCap:      max(bucket.MinLogCap, c.LogCap),
		SnapshotCap: max(bucket.MinSnapshotCap, c.SnapshotCap),
	}
}

// Toggles returns the global persistence switches.
func (c *Config) Toggles() *engine.Toggles {
	t := engine.NewToggles()
	t.Restore(engine.State{Log: c.AOF, Snapshots: c.RDB, Threshold: c.RDBThreshold})
	return t
}

// OpenStore opens the configured bucket store, creating the data directory
// if needed.
func (c *Config) OpenStore(logger *zap.Logger) (bucket.Store, error) {
	if c.Backend == BackendMemory {
		return bucket.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("config: failed to create data directory: %w", err)
	}

	var (
		store bucket.Store
		err   error
	)
	if c.Backend == BackendSQLite {
		store, err = bucket.OpenSQLite(filepath.Join(c.DataDir, "playground.db"))
	} else {
		store, err = bucket.NewFileStore(c.DataDir)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("opened bucket store", zap.String("backend", c.Backend), zap.String("dir", c.DataDir))
	return store, nil
}
