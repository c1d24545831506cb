package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 5060
	DefaultMaxConnections = 1024
	DefaultReadTimeout    = 60 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultShutdownGrace  = 5 * time.Second
	DefaultMaxMessageSize = "64KiB"
	DefaultLogLevel       = "warn"
	DefaultLogFile        = "log/server.log"
	DefaultMetricsAddress = "127.0.0.1:9060"

	// minMessageSize keeps the framer able to hold a realistic header block.
	minMessageSize = 1024
)

// Manager implements the ConfigManager interface
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// Load reads and parses the configuration file. Keys missing from the file
// keep their default values.
func (m *Manager) Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := m.Validate(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration values are valid
func (m *Manager) Validate(config *Config) error {
	// Port 0 is allowed for testing: the kernel picks a free port.
	if config.Server.Port < 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 0-65535)", config.Server.Port)
	}
	if strings.TrimSpace(config.Server.Host) == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if config.Server.MaxConnections < 0 {
		return fmt.Errorf("invalid max connections: %d (0 means unlimited)", config.Server.MaxConnections)
	}
	if config.Server.ReadTimeout < 0 || config.Server.WriteTimeout < 0 || config.Server.ShutdownGrace < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	size, err := config.MaxMessageBytes()
	if err != nil {
		return err
	}
	if size < minMessageSize {
		return fmt.Errorf("max message size too small: %s (minimum %s)",
			humanize.IBytes(uint64(size)), humanize.IBytes(minMessageSize))
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}
	if config.Logging.MaxSizeMB < 0 || config.Logging.MaxBackups < 0 {
		return fmt.Errorf("log rotation settings cannot be negative")
	}

	if config.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(config.Metrics.Address); err != nil {
			return fmt.Errorf("invalid metrics address %q: %w", config.Metrics.Address, err)
		}
	}

	for _, method := range config.Methods.Supported {
		if method == "" || strings.ContainsAny(method, " \t\r\n") {
			return fmt.Errorf("invalid method token: %q", method)
		}
	}

	return nil
}

// Address returns the host:port the SIP listener binds to.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// MaxMessageBytes returns the parsed max_message_size.
func (c *Config) MaxMessageBytes() (int, error) {
	raw := strings.TrimSpace(c.Server.MaxMessageSize)
	if raw == "" {
		raw = DefaultMaxMessageSize
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid max message size %q: %w", c.Server.MaxMessageSize, err)
	}
	if n > 1<<30 {
		return 0, fmt.Errorf("max message size too large: %s", humanize.IBytes(n))
	}
	return int(n), nil
}

// GetDefaultConfig returns a configuration with default values
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           DefaultHost,
			Port:           DefaultPort,
			MaxConnections: DefaultMaxConnections,
			ReadTimeout:    DefaultReadTimeout,
			WriteTimeout:   DefaultWriteTimeout,
			ShutdownGrace:  DefaultShutdownGrace,
			MaxMessageSize: DefaultMaxMessageSize,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
			File:  DefaultLogFile,
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddress,
		},
		Methods: MethodsConfig{
			Supported: []string{"REGISTER", "INVITE", "ACK", "BYE", "CANCEL", "OPTIONS"},
		},
	}
}
