// internal/protocol/connection.go
package protocol

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	DefaultHost           = "192.168.178.146"
	DefaultPort           = 2001
	DefaultAckTimeout     = 3 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultMaxReconnects  = 3
	DefaultReconnectDelay = 500 * time.Millisecond
	DefaultTerminator     = "\r\n"
	DefaultMaxLineLength  = 4096
)

// TelnetConfig represents the instrument console connection configuration
type TelnetConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	AckTimeout     time.Duration `json:"ack_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	SettleDelay    time.Duration `json:"settle_delay"`
	MaxReconnects  int           `json:"max_reconnects"`
	ReconnectDelay time.Duration `json:"reconnect_delay"`
	Terminator     string        `json:"terminator"`
	MaxLineLength  int           `json:"max_line_length"`
}

// DefaultTelnetConfig returns the factory connection settings of the generator
func DefaultTelnetConfig() *TelnetConfig {
	return &TelnetConfig{
		Host:           DefaultHost,
		Port:           DefaultPort,
		ConnectTimeout: DefaultConnectTimeout,
		AckTimeout:     DefaultAckTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		MaxReconnects:  DefaultMaxReconnects,
		ReconnectDelay: DefaultReconnectDelay,
		Terminator:     DefaultTerminator,
		MaxLineLength:  DefaultMaxLineLength,
	}
}

// Address returns host:port
func (c *TelnetConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the configuration and fills zero values with defaults
func (c *TelnetConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MaxReconnects < 0 {
		return fmt.Errorf("max_reconnects must not be negative")
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Terminator == "" {
		c.Terminator = DefaultTerminator
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = DefaultMaxLineLength
	}
	return nil
}
