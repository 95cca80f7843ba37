// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Device    DeviceConfig    `mapstructure:"device"`
	Plugin    PluginConfig    `mapstructure:"plugin"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	App       AppConfig       `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host" validate:"required"`
	Port           string        `mapstructure:"port" validate:"required"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	TLS            TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DeviceConfig represents the pulse generator connection
type DeviceConfig struct {
	Host           string        `mapstructure:"host" validate:"required"`
	Port           int           `mapstructure:"port" validate:"required"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	AckTimeout     time.Duration `mapstructure:"ack_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	Terminator     string        `mapstructure:"terminator"`
	MaxLineLength  int           `mapstructure:"max_line_length"`

	JournalSize      int           `mapstructure:"journal_size"`
	JournalRetention time.Duration `mapstructure:"journal_retention"`
}

// PluginConfig represents host plugin defaults
type PluginConfig struct {
	DefaultChannel string        `mapstructure:"default_channel"`
	DefaultSlot    int           `mapstructure:"default_slot"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RestoreOnInit  bool          `mapstructure:"restore_on_init"`
	Epsilon        float64       `mapstructure:"epsilon"`
}

// DiscoveryConfig represents console scan settings
type DiscoveryConfig struct {
	NetworkRange string        `mapstructure:"network_range"`
	Port         int           `mapstructure:"port"`
	Concurrency  int           `mapstructure:"concurrency"`
	ConnTimeout  time.Duration `mapstructure:"conn_timeout"`
	AckTimeout   time.Duration `mapstructure:"ack_timeout"`
	MaxHosts     int           `mapstructure:"max_hosts"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables.
// A missing config file is not an error; defaults and environment apply.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from an explicit file path, or from the
// default search paths when path is empty.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/bnc-service")
	}

	// Environment variable support
	v.SetEnvPrefix("BNC_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Device defaults
	v.SetDefault("device.host", "192.168.178.146")
	v.SetDefault("device.port", 2001)
	v.SetDefault("device.connect_timeout", "10s")
	v.SetDefault("device.ack_timeout", "3s")
	v.SetDefault("device.write_timeout", "5s")
	v.SetDefault("device.settle_delay", "0s")
	v.SetDefault("device.max_reconnects", 3)
	v.SetDefault("device.reconnect_delay", "500ms")
	v.SetDefault("device.terminator", "\r\n")
	v.SetDefault("device.max_line_length", 4096)
	v.SetDefault("device.journal_size", 500)
	v.SetDefault("device.journal_retention", "1h")

	// Plugin defaults
	v.SetDefault("plugin.default_channel", "A")
	v.SetDefault("plugin.default_slot", 1)
	v.SetDefault("plugin.poll_interval", "1s")
	v.SetDefault("plugin.restore_on_init", true)
	v.SetDefault("plugin.epsilon", 0.25)

	// Discovery defaults
	v.SetDefault("discovery.network_range", "192.168.178.0/24")
	v.SetDefault("discovery.port", 2001)
	v.SetDefault("discovery.concurrency", 32)
	v.SetDefault("discovery.conn_timeout", "500ms")
	v.SetDefault("discovery.ack_timeout", "1s")
	v.SetDefault("discovery.max_hosts", 1024)

	// App defaults
	v.SetDefault("app.name", "bnc-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Device.Host == "" {
		return fmt.Errorf("device.host is required")
	}
	if config.Device.Port < 1 || config.Device.Port > 65535 {
		return fmt.Errorf("device.port must be between 1 and 65535, got %d", config.Device.Port)
	}
	if config.Device.AckTimeout <= 0 {
		return fmt.Errorf("device.ack_timeout must be positive")
	}
	if config.Device.MaxReconnects < 0 {
		return fmt.Errorf("device.max_reconnects must not be negative")
	}
	if config.Plugin.DefaultSlot < 1 || config.Plugin.DefaultSlot > 12 {
		return fmt.Errorf("plugin.default_slot must be between 1 and 12, got %d", config.Plugin.DefaultSlot)
	}

	if config.Discovery.Port < 1 || config.Discovery.Port > 65535 {
		return fmt.Errorf("discovery.port must be between 1 and 65535, got %d", config.Discovery.Port)
	}

	validChannels := []string{"A", "B", "C", "D"}
	if !contains(validChannels, config.Plugin.DefaultChannel) {
		return fmt.Errorf("plugin.default_channel must be one of: %v", validChannels)
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// GetDeviceAddr returns the pulse generator address
func (c *Config) GetDeviceAddr() string {
	return fmt.Sprintf("%s:%d", c.Device.Host, c.Device.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
