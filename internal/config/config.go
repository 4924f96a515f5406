// Package config handles loading and parsing application configuration.
// It supports two sources:
//  1. Environment variables (always read; they win over the file)
//  2. An optional YAML file named by CONFIG_PATH=/path/to/config.yaml
//
// There are no command-line flags: the binary runs with no arguments.
// The parsed values are returned as a *Config pointer so the struct is
// shared by reference rather than copied everywhere.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Storage drivers.
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

// ErrorMode decides what the task sequencer does when a task fails.
type ErrorMode string

const (
	// ContinueOnError logs the failure and runs the next task.
	ContinueOnError ErrorMode = "continue"
	// FailFast stops the run at the first failed task.
	FailFast ErrorMode = "fail-fast"
)

// Config is the root configuration structure.
// Every field maps to a key in the YAML file AND can be overridden
// by the corresponding environment variable (env:"...").
type Config struct {
	// Env controls log format and verbosity.
	// Valid values: "dev", "staging", "prod"
	Env string `yaml:"env" env:"ENV" env-default:"dev"`

	// Driver picks the storage backend: "mongo" or "sqlite".
	Driver string `yaml:"storage_driver" env:"STORAGE_DRIVER" env-default:"mongo"`

	// StoragePath is the filesystem path to the SQLite .db file.
	// Only used when Driver is "sqlite".
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-default:"storage/people.db"`

	// ErrorMode is "continue" (log and run the next task) or "fail-fast".
	ErrorMode ErrorMode `yaml:"error_mode" env:"ERROR_MODE" env-default:"continue"`

	// Reset empties the collection before the first insert so repeated
	// runs see the same data.
	Reset bool `yaml:"reset_collection" env:"RESET_COLLECTION" env-default:"false"`

	Mongo `yaml:"mongo"`
}

// Mongo holds settings specific to the document store connection.
// Nested under mongo: in the YAML file.
type Mongo struct {
	// URI is the connection string. The default points at a local server
	// with no credentials; real credentials only ever come from the
	// environment or the config file.
	URI string `yaml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`

	Database   string `yaml:"database" env:"MONGO_DATABASE" env-default:"week8"`
	Collection string `yaml:"collection" env:"MONGO_COLLECTION" env-default:"personCollection"`

	// ConnectTimeout bounds the initial connect + ping.
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT" env-default:"10s"`
}

// Load reads the optional config file and the environment, applies
// defaults and checks the enumerated values.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		// Verify the file exists before trying to read it, so the message
		// is clearer than a cryptic "open: no such file" later.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		// cleanenv.ReadConfig reads the YAML file, then overlays any
		// env:"..." tagged fields from the environment.
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("cannot read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("cannot read environment: %w", err)
	}

	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load that exits the process on failure. If this function
// returns, the config is valid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func (c *Config) check() error {
	switch c.Driver {
	case DriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo uri is empty: set MONGO_URI")
		}
	case DriverSQLite:
		if c.StoragePath == "" {
			return fmt.Errorf("storage path is empty: set STORAGE_PATH")
		}
	default:
		return fmt.Errorf("unknown storage driver %q: want %q or %q", c.Driver, DriverMongo, DriverSQLite)
	}

	switch c.ErrorMode {
	case ContinueOnError, FailFast:
	default:
		return fmt.Errorf("unknown error mode %q: want %q or %q", c.ErrorMode, ContinueOnError, FailFast)
	}
	return nil
}
