// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"bnc-service/internal/config"
)

// ConfigFromDevice converts the service configuration into a TelnetConfig
func ConfigFromDevice(cfg *config.DeviceConfig) *TelnetConfig {
	tc := DefaultTelnetConfig()
	tc.Host = cfg.Host
	tc.Port = cfg.Port
	tc.ConnectTimeout = cfg.ConnectTimeout
	tc.AckTimeout = cfg.AckTimeout
	tc.WriteTimeout = cfg.WriteTimeout
	tc.SettleDelay = cfg.SettleDelay
	tc.MaxReconnects = cfg.MaxReconnects
	tc.ReconnectDelay = cfg.ReconnectDelay
	if cfg.Terminator != "" {
		tc.Terminator = cfg.Terminator
	}
	if cfg.MaxLineLength > 0 {
		tc.MaxLineLength = cfg.MaxLineLength
	}
	return tc
}

// CreateProtocol builds a telnet connection from the service configuration
func CreateProtocol(cfg *config.DeviceConfig, logger *zap.Logger, opts ...Option) (*TelnetConnection, error) {
	tc := ConfigFromDevice(cfg)
	if err := tc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid device configuration: %w", err)
	}

	logger.Info("Creating telnet protocol",
		zap.String("host", tc.Host),
		zap.Int("port", tc.Port),
		zap.Duration("ack_timeout", tc.AckTimeout),
	)

	return NewTelnetConnection(tc, logger, opts...), nil
}

// ApplyOverrides returns a copy of base with values from a loosely typed map applied.
// Hosts send JSON, so numbers arrive as float64 and durations as strings.
func ApplyOverrides(base *TelnetConfig, overrides map[string]interface{}) (*TelnetConfig, error) {
	cfg := *base

	if host, ok := overrides["host"]; ok {
		s, ok := host.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("host must be a non-empty string")
		}
		cfg.Host = s
	}

	if port, ok := overrides["port"]; ok {
		p, err := toInt(port)
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
		cfg.Port = p
	}

	durations := map[string]*time.Duration{
		"connect_timeout": &cfg.ConnectTimeout,
		"ack_timeout":     &cfg.AckTimeout,
		"write_timeout":   &cfg.WriteTimeout,
		"settle_delay":    &cfg.SettleDelay,
		"reconnect_delay": &cfg.ReconnectDelay,
	}
	for key, dst := range durations {
		raw, ok := overrides[key].(string)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}

	if retries, ok := overrides["max_reconnects"]; ok {
		n, err := toInt(retries)
		if err != nil {
			return nil, fmt.Errorf("invalid max_reconnects: %w", err)
		}
		cfg.MaxReconnects = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
