// internal/protocol/protocol.go
package protocol

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotConnected is returned when the connection was never opened or was closed by the caller
	ErrNotConnected = errors.New("connection not open")
	// ErrAckTimeout is returned when no reply line arrives within the ack timeout
	ErrAckTimeout = errors.New("timeout waiting for device response")
	// ErrReconnectExhausted is returned when a write keeps failing after every allowed reconnect
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrLineTooLong is returned when a reply exceeds the configured maximum line length
	ErrLineTooLong = errors.New("reply line too long")
)

// LineProtocol is a request/reply channel to a line-oriented instrument console.
// Exactly one exchange is outstanding at a time.
type LineProtocol interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Send writes one line and returns the stripped reply line
	Send(ctx context.Context, line string) (string, error)
	// Query sends name followed by "?"
	Query(ctx context.Context, name string) (string, error)
	// Set sends name, a single space, then value
	Set(ctx context.Context, name, value string) (string, error)

	Stats() ProtocolStats
}

// Listener receives communication progress notifications. Either callback may be nil.
type Listener struct {
	OnBusy  func(busy bool)
	OnReply func(command, reply string)
}

// ProtocolStats provides protocol-level statistics
type ProtocolStats struct {
	BytesWritten   int64         `json:"bytes_written" yaml:"bytes_written"`
	BytesRead      int64         `json:"bytes_read" yaml:"bytes_read"`
	OperationCount int64         `json:"operation_count" yaml:"operation_count"`
	ErrorCount     int64         `json:"error_count" yaml:"error_count"`
	Reconnects     int64         `json:"reconnects" yaml:"reconnects"`
	LastActivity   time.Time     `json:"last_activity" yaml:"last_activity"`
	AverageLatency time.Duration `json:"average_latency" yaml:"average_latency"`
	IsConnected    bool          `json:"is_connected" yaml:"is_connected"`
}

// Path joins command nodes into a colon-prefixed command path.
// Path("PULSE1", "DELAY") returns ":PULSE1:DELAY".
func Path(nodes ...string) string {
	var b strings.Builder
	for _, n := range nodes {
		b.WriteByte(':')
		b.WriteString(n)
	}
	return b.String()
}
