// Package config loads runtime configuration from the environment, with an
// optional YAML file overlay for deployments that prefer files.
package config

import (
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string `env:"SERVER_HOST,default=0.0.0.0" yaml:"host"`
	Port            int    `env:"SERVER_PORT,default=8080" yaml:"port"`
	ReadTimeout     int    `env:"SERVER_READ_TIMEOUT,default=15" yaml:"read_timeout"`
	WriteTimeout    int    `env:"SERVER_WRITE_TIMEOUT,default=15" yaml:"write_timeout"`
	ShutdownTimeout int    `env:"SERVER_SHUTDOWN_TIMEOUT,default=10" yaml:"shutdown_timeout"`
}

// DatabaseConfig controls persistence. An empty DSN selects the in-memory
// store, which is suitable for local development only.
type DatabaseConfig struct {
	Driver          string `env:"DB_DRIVER,default=postgres" yaml:"driver"`
	DSN             string `env:"DB_DSN" yaml:"dsn"`
	MaxOpenConns    int    `env:"DB_MAX_OPEN_CONNS,default=25" yaml:"max_open_conns"`
	MaxIdleConns    int    `env:"DB_MAX_IDLE_CONNS,default=5" yaml:"max_idle_conns"`
	ConnMaxLifetime int    `env:"DB_CONN_MAX_LIFETIME,default=300" yaml:"conn_max_lifetime"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info" yaml:"level"`
	Format string `env:"LOG_FORMAT,default=json" yaml:"format"`
	Output string `env:"LOG_OUTPUT,default=stdout" yaml:"output"`
}

// SweepConfig controls the background monthly reset sweep.
type SweepConfig struct {
	Schedule string `env:"RESET_SWEEP_SCHEDULE,default=@hourly" yaml:"schedule"`
	Disabled bool   `env:"RESET_SWEEP_DISABLED,default=false" yaml:"disabled"`
}

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sweep    SweepConfig    `yaml:"sweep"`
}

// Load reads configuration from the environment. If CONFIG_FILE names a
// YAML file it is applied on top, so file values override the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// LoadFromFile reads configuration solely from a YAML file, for tests and
// tooling that must not consult the environment.
func LoadFromFile(path string) (*Config, error) {
	var cfg Config
	if err := loadFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
