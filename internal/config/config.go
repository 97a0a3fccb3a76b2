// Package config loads calendarcore runtime configuration from the process
// environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every environment variable read by Load.
const Prefix = "CALENDARCORE_"

// Storage drivers accepted by StorageDriver.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Archive drivers accepted by Archive.Driver.
const (
	ArchiveFilesystem = "fs"
	ArchiveS3         = "s3"
	ArchiveMemory     = "memory"
)

// Config is the full runtime configuration.
type Config struct {
	Storage  Storage  `envPrefix:"STORAGE_"`
	SQLite   SQLite   `envPrefix:"SQLITE_"`
	Postgres Postgres `envPrefix:"POSTGRES_"`
	Archive  Archive  `envPrefix:"ARCHIVE_"`
	Log      Log      `envPrefix:"LOG_"`
	Metrics  Metrics  `envPrefix:"METRICS_"`
}

// Storage selects the persistent store backend.
type Storage struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
}

// SQLite configures the embedded sqlite backend.
type SQLite struct {
	Path string `env:"PATH" envDefault:"./calendarcore.db"`
}

// Postgres configures the PostgreSQL backend.
type Postgres struct {
	DSN string `env:"DSN"`
}

// Archive configures where snapshot archives are written.
type Archive struct {
	Driver string `env:"DRIVER" envDefault:"fs"`
	FSRoot string `env:"FS_ROOT" envDefault:"./archive"`
	S3     S3     `envPrefix:"S3_"`
}

// S3 configures the S3 / MinIO archive backend.
type S3 struct {
	Bucket    string `env:"BUCKET"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"ENDPOINT"`
	PathStyle bool   `env:"PATH_STYLE"`
}

// Log configures structured logging.
type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// Metrics configures exported metric names.
type Metrics struct {
	Namespace string `env:"NAMESPACE" envDefault:"calendarcore"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom parses the supplied variables instead of the process environment.
// Keys carry the full CALENDARCORE_ prefix.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Archive.Driver = strings.ToLower(strings.TrimSpace(cfg.Archive.Driver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and missing driver-specific settings.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("%sPOSTGRES_DSN required for postgres storage", Prefix)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Archive.Driver {
	case ArchiveFilesystem, ArchiveMemory:
	case ArchiveS3:
		if c.Archive.S3.Bucket == "" {
			return fmt.Errorf("%sARCHIVE_S3_BUCKET required for s3 archive", Prefix)
		}
	default:
		return fmt.Errorf("unknown archive driver %q", c.Archive.Driver)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
