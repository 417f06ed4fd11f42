package common

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Logging     LoggingConfig `toml:"logging"`
	Storage     StorageConfig `toml:"storage"`
	Pool        PoolConfig    `toml:"pool"`
	Paths       PathsConfig   `toml:"paths"`
	Service     ServiceConfig `toml:"service"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
	// PublicURL is the externally reachable root used to build DownloadURIs.
	// Empty means derive from Host/Port.
	PublicURL string `toml:"public_url"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration for the per-order
// log event store.
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// PoolConfig sizes the worker plane.
type PoolConfig struct {
	Workers int `toml:"workers"` // concurrent task executions
}

// PathsConfig locates the shared directory trees used by the job runner.
type PathsConfig struct {
	WorkingDir string `toml:"working_dir"`
	OutputDir  string `toml:"output_dir"`
	TracesDir  string `toml:"traces_dir"`
}

// ServiceConfig points at the operator-editable YAML files. They are re-read
// on use, so edits take effect without a restart.
type ServiceConfig struct {
	ESATFConfigFile     string `toml:"esa_tf_config_file"`
	HubsCredentialsFile string `toml:"hubs_credentials_file"`
	RolesConfigFile     string `toml:"roles_config_file"`
	TraceConfigFile     string `toml:"trace_config_file"`
	OutputOwnerID       int    `toml:"output_owner_id"`
	OutputGroupOwnerID  int    `toml:"output_group_owner_id"`
	Debug               bool   `toml:"debug"`
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings are exposed in orbital.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Pool: PoolConfig{
			Workers: 2,
		},
		Paths: PathsConfig{
			WorkingDir: "./working_dir",
			OutputDir:  "./output_dir",
			TracesDir:  "./traces",
		},
		Service: ServiceConfig{
			ESATFConfigFile:     "./esa_tf.config",
			HubsCredentialsFile: "./hubs_credentials.yaml",
			RolesConfigFile:     "./roles.yaml",
			TraceConfigFile:     "./traceability_config.yaml",
			OutputOwnerID:       -1,
			OutputGroupOwnerID:  -1,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides applies the platform environment variables on top of the
// file configuration. These are the knobs operators set in deployments.
func applyEnvOverrides(config *Config) {
	if dir := os.Getenv("WORKING_DIR"); dir != "" {
		config.Paths.WorkingDir = dir
	}
	if dir := os.Getenv("OUTPUT_DIR"); dir != "" {
		config.Paths.OutputDir = dir
	}
	if dir := os.Getenv("TRACES_DIR"); dir != "" {
		config.Paths.TracesDir = dir
	}
	if file := os.Getenv("HUBS_CREDENTIALS_FILE"); file != "" {
		config.Service.HubsCredentialsFile = file
	}
	if file := os.Getenv("ROLES_CONFIG_FILE"); file != "" {
		config.Service.RolesConfigFile = file
	}
	if file := os.Getenv("ESA_TF_CONFIG_FILE"); file != "" {
		config.Service.ESATFConfigFile = file
	}
	if owner := os.Getenv("OUTPUT_OWNER_ID"); owner != "" {
		if id, err := strconv.Atoi(owner); err == nil {
			config.Service.OutputOwnerID = id
		}
	}
	if owner := os.Getenv("OUTPUT_GROUP_OWNER_ID"); owner != "" {
		if id, err := strconv.Atoi(owner); err == nil {
			config.Service.OutputGroupOwnerID = id
		}
	}
	if debug := os.Getenv("TF_DEBUG"); debug != "" {
		if v, err := strconv.ParseBool(debug); err == nil {
			config.Service.Debug = v
		}
	}
	if workers := os.Getenv("SCHEDULER_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			config.Pool.Workers = n
		}
	}
	if port := os.Getenv("ORBITAL_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("ORBITAL_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if level := os.Getenv("ORBITAL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// Validate checks the settings the runner and server depend on.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("pool workers must be positive, got %d", c.Pool.Workers)
	}
	if c.Paths.WorkingDir == "" || c.Paths.OutputDir == "" || c.Paths.TracesDir == "" {
		return fmt.Errorf("working_dir, output_dir and traces_dir must all be set")
	}
	return nil
}
