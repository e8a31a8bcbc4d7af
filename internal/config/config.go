// Package config loads QuickNotes settings from defaults, an optional YAML
// file and QUICKNOTES_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"quicknotes/internal/storage"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix = "QUICKNOTES_"

	// DefaultPort is where the local HTTP server listens
	DefaultPort = 54321
)

// Config holds all configuration values
type Config struct {
	DataDir string        `yaml:"data_dir" validate:"required"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Monitor MonitorConfig `yaml:"monitor"`
	Vault   VaultConfig   `yaml:"vault"`

	// LoadedFrom lists the sources that contributed, lowest priority first
	LoadedFrom []string `yaml:"-"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=sqlite file memory"`
	DBPath      string `yaml:"db_path"`
	FSPath      string `yaml:"fs_path"`
	Key         string `yaml:"key" validate:"required"`
	MaxBlobSize int    `yaml:"max_blob_size" validate:"gte=0"`
}

type ServerConfig struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

type MonitorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval" validate:"gte=10ms"`
}

// VaultConfig controls the markdown mirror of the collection
type VaultConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Path     string        `yaml:"path" validate:"required_if=Enabled true"`
	Interval time.Duration `yaml:"interval" validate:"gte=1s"`
}

// StorageSettings converts to the storage package's configuration
func (c *Config) StorageSettings() storage.Config {
	return storage.Config{
		Backend:     c.Storage.Backend,
		DBPath:      c.Storage.DBPath,
		FSPath:      c.Storage.FSPath,
		Key:         c.Storage.Key,
		MaxBlobSize: c.Storage.MaxBlobSize,
	}
}

// DefaultDataDir returns ~/.quicknotes
func DefaultDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".quicknotes"), nil
}

// Default returns the built-in configuration
func Default() *Config {
	dataDir, err := DefaultDataDir()
	if err != nil {
		dataDir = ".quicknotes"
	}
	return &Config{
		DataDir: dataDir,
		Storage: StorageConfig{
			Backend:     storage.BackendSQLite,
			Key:         storage.DefaultKey,
			MaxBlobSize: storage.DefaultMaxBlobSize,
		},
		Server: ServerConfig{Port: DefaultPort},
		Log:    LogConfig{Level: "info", Format: "console"},
		Monitor: MonitorConfig{
			Enabled:  true,
			Interval: 500 * time.Millisecond,
		},
		Vault: VaultConfig{Interval: 30 * time.Second},
	}
}

// Load builds the configuration. An empty path means <data dir>/config.yaml,
// which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.LoadedFrom = append(cfg.LoadedFrom, "defaults")

	explicit := path != ""
	if !explicit {
		dataDir := cfg.DataDir
		if env := os.Getenv(envPrefix + "DATA_DIR"); env != "" {
			dataDir = env
		}
		path = filepath.Join(dataDir, "config.yaml")
	}

	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg.LoadedFrom = append(cfg.LoadedFrom, path)
	}

	if err := cfg.loadEnvironment(); err != nil {
		return nil, err
	}
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")

	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnvironment() error {
	setString := func(name string, target *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*target = v
		}
	}
	setString("DATA_DIR", &c.DataDir)
	setString("STORAGE_BACKEND", &c.Storage.Backend)
	setString("DB_PATH", &c.Storage.DBPath)
	setString("FS_PATH", &c.Storage.FSPath)
	setString("STORAGE_KEY", &c.Storage.Key)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)

	if v := os.Getenv(envPrefix + "PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPORT %q: %w", envPrefix, v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv(envPrefix + "MONITOR_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sMONITOR_ENABLED %q: %w", envPrefix, v, err)
		}
		c.Monitor.Enabled = enabled
	}
	if v := os.Getenv(envPrefix + "MONITOR_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sMONITOR_INTERVAL %q: %w", envPrefix, v, err)
		}
		c.Monitor.Interval = interval
	}
	if v := os.Getenv(envPrefix + "VAULT_PATH"); v != "" {
		c.Vault.Path = v
		c.Vault.Enabled = true
	}
	return nil
}

// resolvePaths fills storage paths left empty from the data directory
func (c *Config) resolvePaths() {
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = filepath.Join(c.DataDir, "quicknotes.db")
	}
	if c.Storage.FSPath == "" {
		c.Storage.FSPath = filepath.Join(c.DataDir, "data")
	}
}

// Validate checks every field against its constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
