package config

import "time"

// Config represents the server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Methods MethodsConfig `yaml:"methods"`
}

// ServerConfig holds the listener and per-connection settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MaxConnections int           `yaml:"max_connections"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
	// MaxMessageSize accepts human readable sizes such as "64KiB" or "1 MB".
	MaxMessageSize string `yaml:"max_message_size"`
	ReusePort      bool   `yaml:"reuse_port"`
}

// LoggingConfig selects the log level and the log file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// MethodsConfig lists the methods the server reports as supported.
type MethodsConfig struct {
	Supported     []string `yaml:"supported"`
	AnswerOptions bool     `yaml:"answer_options"`
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	Load(filename string) (*Config, error)
	Validate(config *Config) error
}
