// Package config loads chronicle settings from YAML, CHRONICLE_* environment
// variables and an optional .env file, in increasing precedence, with command
// line flags bound on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/roach88/chronicle/internal/logging"
	"github.com/roach88/chronicle/internal/query"
	"github.com/roach88/chronicle/internal/store"
)

// EnvPrefix namespaces environment overrides: storage.dsn is CHRONICLE_STORAGE_DSN.
const EnvPrefix = "CHRONICLE"

// Config is the full runtime configuration.
type Config struct {
	Storage StorageConfig  `mapstructure:"storage"`
	Log     logging.Config `mapstructure:"log"`
	Query   QueryConfig    `mapstructure:"query"`
	Rebuild RebuildConfig  `mapstructure:"rebuild"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
}

// StorageConfig selects the database and write behaviour.
type StorageConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"` // ignored for SQLite
	Compression  string `mapstructure:"compression"`    // none | zstd

	// KnownHashCache sizes the LRU of stored object hashes. 0 disables it.
	KnownHashCache   int  `mapstructure:"known_hash_cache"`
	MaintainVersions bool `mapstructure:"maintain_versions"`
}

// QueryConfig bounds page sizes.
type QueryConfig struct {
	DefaultCount       int `mapstructure:"default_count"`
	MaxCount           int `mapstructure:"max_count"`
	DefaultEntityCount int `mapstructure:"default_entity_count"`
	PlayerEntityCount  int `mapstructure:"player_entity_count"`
	MaxEntityCount     int `mapstructure:"max_entity_count"`
}

// Limits converts to the query package's form.
func (q QueryConfig) Limits() query.Limits {
	return query.Limits{
		DefaultCount:       q.DefaultCount,
		MaxCount:           q.MaxCount,
		DefaultEntityCount: q.DefaultEntityCount,
		PlayerEntityCount:  q.PlayerEntityCount,
		MaxEntityCount:     q.MaxEntityCount,
	}
}

// RebuildConfig controls RebuildAll.
type RebuildConfig struct {
	Workers int `mapstructure:"workers"`
}

// MetricsConfig controls metric export.
type MetricsConfig struct {
	// Textfile is written on exit in node-exporter format when non-empty.
	Textfile string `mapstructure:"textfile"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	limits := query.DefaultLimits
	return Config{
		Storage: StorageConfig{
			Driver:           "sqlite3",
			DSN:              "chronicle.db",
			MaxOpenConns:     8,
			Compression:      string(store.CompressionZstd),
			KnownHashCache:   100000,
			MaintainVersions: true,
		},
		Log: logging.DefaultConfig(),
		Query: QueryConfig{
			DefaultCount:       limits.DefaultCount,
			MaxCount:           limits.MaxCount,
			DefaultEntityCount: limits.DefaultEntityCount,
			PlayerEntityCount:  limits.PlayerEntityCount,
			MaxEntityCount:     limits.MaxEntityCount,
		},
		Rebuild: RebuildConfig{Workers: 1},
	}
}

// NewViper returns a viper instance carrying defaults and environment
// bindings. Callers bind flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.dsn", d.Storage.DSN)
	v.SetDefault("storage.max_open_conns", d.Storage.MaxOpenConns)
	v.SetDefault("storage.compression", d.Storage.Compression)
	v.SetDefault("storage.known_hash_cache", d.Storage.KnownHashCache)
	v.SetDefault("storage.maintain_versions", d.Storage.MaintainVersions)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("query.default_count", d.Query.DefaultCount)
	v.SetDefault("query.max_count", d.Query.MaxCount)
	v.SetDefault("query.default_entity_count", d.Query.DefaultEntityCount)
	v.SetDefault("query.player_entity_count", d.Query.PlayerEntityCount)
	v.SetDefault("query.max_entity_count", d.Query.MaxEntityCount)

	v.SetDefault("rebuild.workers", d.Rebuild.Workers)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
	return v
}

// Load reads the optional .env in the working directory, then path (when
// non-empty), and returns the validated configuration.
func Load(v *viper.Viper, path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the store cannot run with.
func (c Config) Validate() error {
	var errs []error

	if !slices.Contains(store.Drivers(), c.Storage.Driver) {
		errs = append(errs, fmt.Errorf("storage.driver %q: must be one of %v", c.Storage.Driver, store.Drivers()))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required"))
	}
	if _, err := store.ParseCompression(c.Storage.Compression); err != nil {
		errs = append(errs, fmt.Errorf("storage.compression: %w", err))
	}
	if c.Storage.KnownHashCache < 0 {
		errs = append(errs, fmt.Errorf("storage.known_hash_cache must be >= 0, got %d", c.Storage.KnownHashCache))
	}

	q := c.Query
	for name, n := range map[string]int{
		"query.default_count":        q.DefaultCount,
		"query.max_count":            q.MaxCount,
		"query.default_entity_count": q.DefaultEntityCount,
		"query.max_entity_count":     q.MaxEntityCount,
	} {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, n))
		}
	}
	if q.DefaultCount > q.MaxCount {
		errs = append(errs, fmt.Errorf("query.default_count %d exceeds query.max_count %d", q.DefaultCount, q.MaxCount))
	}
	if q.DefaultEntityCount > q.MaxEntityCount || q.PlayerEntityCount > q.MaxEntityCount {
		errs = append(errs, fmt.Errorf("entity page defaults exceed query.max_entity_count %d", q.MaxEntityCount))
	}

	if c.Rebuild.Workers < 1 {
		errs = append(errs, fmt.Errorf("rebuild.workers must be >= 1, got %d", c.Rebuild.Workers))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// StoreOptions translates the storage, query and rebuild settings into store
// options. The logger is supplied separately.
func (c Config) StoreOptions() ([]store.Option, error) {
	compression, err := store.ParseCompression(c.Storage.Compression)
	if err != nil {
		return nil, err
	}

	opts := []store.Option{
		store.WithCompression(compression),
		store.WithVersionMaintenance(c.Storage.MaintainVersions),
		store.WithRebuildWorkers(c.Rebuild.Workers),
		store.WithLimits(c.Query.Limits()),
		store.WithMaxOpenConns(c.Storage.MaxOpenConns),
	}
	if c.Storage.KnownHashCache > 0 {
		cache, err := store.NewLRUKnownHashes(c.Storage.KnownHashCache)
		if err != nil {
			return nil, fmt.Errorf("known hash cache: %w", err)
		}
		opts = append(opts, store.WithKnownHashes(cache))
	}
	return opts, nil
}
