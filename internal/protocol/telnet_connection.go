// internal/protocol/telnet_connection.go
package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"bnc-service/internal/utils"
)

// DialFunc opens the underlying stream
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// TelnetConnection implements LineProtocol over a Telnet console on TCP
type TelnetConnection struct {
	config   *TelnetConfig
	dial     DialFunc
	listener Listener
	logger   *utils.DeviceLogger

	// mutex serializes exchanges and guards conn, reader and active
	mutex  sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	active bool

	connected atomic.Bool

	statsMu sync.Mutex
	stats   ProtocolStats
}

// Option customizes a TelnetConnection
type Option func(*TelnetConnection)

// WithDialer replaces the TCP dialer
func WithDialer(dial DialFunc) Option {
	return func(tc *TelnetConnection) { tc.dial = dial }
}

// WithListener installs busy/reply callbacks
func WithListener(l Listener) Option {
	return func(tc *TelnetConnection) { tc.listener = l }
}

// NewTelnetConnection creates a connection. It is not opened until Open is called.
func NewTelnetConnection(config *TelnetConfig, logger *zap.Logger, opts ...Option) *TelnetConnection {
	tc := &TelnetConnection{
		config: config,
		logger: utils.NewDeviceLogger(logger.With(zap.String("protocol", "telnet")), config.Address()),
	}
	dialer := &net.Dialer{Timeout: config.ConnectTimeout, KeepAlive: 30 * time.Second}
	tc.dial = dialer.DialContext
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Open opens the console connection
func (tc *TelnetConnection) Open(ctx context.Context) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	tc.active = true
	if tc.conn != nil {
		return nil
	}
	return tc.openLocked(ctx)
}

// Close closes the connection. Later exchanges fail with ErrNotConnected until Open is called again.
func (tc *TelnetConnection) Close() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	tc.active = false
	if tc.conn == nil {
		return nil
	}
	err := tc.conn.Close()
	tc.conn = nil
	tc.reader = nil
	tc.setConnected(false)
	tc.logger.LogConnection("close", err == nil, err)
	if err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// IsOpen returns whether the stream is currently established
func (tc *TelnetConnection) IsOpen() bool {
	return tc.connected.Load()
}

// Query sends name followed by "?"
func (tc *TelnetConnection) Query(ctx context.Context, name string) (string, error) {
	return tc.Send(ctx, name+"?")
}

// Set sends name, a single space, then value
func (tc *TelnetConnection) Set(ctx context.Context, name, value string) (string, error) {
	return tc.Send(ctx, name+" "+value)
}

// Send writes one terminated line and waits for one reply line.
// A failed write closes the stream, reopens it and resends, up to MaxReconnects times.
// A reply timeout drops the stream so a late reply is never read as the answer to the next request.
func (tc *TelnetConnection) Send(ctx context.Context, line string) (string, error) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.active {
		return "", ErrNotConnected
	}

	tc.notifyBusy(true)
	defer tc.notifyBusy(false)

	start := time.Now()
	reply, err := tc.exchangeLocked(ctx, line)
	duration := time.Since(start)
	tc.logger.LogExchange(line, reply, duration, err)

	tc.statsMu.Lock()
	tc.stats.OperationCount++
	tc.stats.LastActivity = time.Now()
	if err != nil {
		tc.stats.ErrorCount++
	} else {
		tc.updateAverageLatency(duration)
	}
	tc.statsMu.Unlock()

	if err != nil {
		return "", err
	}
	if tc.listener.OnReply != nil {
		tc.listener.OnReply(line, reply)
	}

	if tc.config.SettleDelay > 0 {
		timer := time.NewTimer(tc.config.SettleDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return reply, nil
}

// Stats returns a copy of the current statistics
func (tc *TelnetConnection) Stats() ProtocolStats {
	tc.statsMu.Lock()
	defer tc.statsMu.Unlock()
	s := tc.stats
	s.IsConnected = tc.connected.Load()
	return s
}

func (tc *TelnetConnection) exchangeLocked(ctx context.Context, line string) (string, error) {
	payload := []byte(line + tc.config.Terminator)

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if attempt > 0 {
			if attempt > tc.config.MaxReconnects {
				return "", fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, attempt, lastErr)
			}
			tc.statsMu.Lock()
			tc.stats.Reconnects++
			tc.statsMu.Unlock()
			if err := sleepCtx(ctx, tc.config.ReconnectDelay); err != nil {
				return "", err
			}
		}

		if tc.conn == nil {
			if err := tc.openLocked(ctx); err != nil {
				lastErr = err
				continue
			}
		}

		if err := tc.writeLocked(payload); err != nil {
			lastErr = err
			tc.dropLocked("write failed", err)
			continue
		}
		break
	}

	reply, err := tc.readLineLocked(ctx)
	if err != nil {
		tc.dropLocked("read failed", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if isTimeout(err) {
			return "", fmt.Errorf("%w: %s", ErrAckTimeout, line)
		}
		return "", fmt.Errorf("failed to read reply to %q: %w", line, err)
	}
	return reply, nil
}

func (tc *TelnetConnection) openLocked(ctx context.Context) error {
	address := tc.config.Address()
	conn, err := tc.dial(ctx, "tcp", address)
	if err != nil {
		tc.logger.LogConnection("open", false, err)
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	tc.conn = conn
	tc.reader = bufio.NewReader(conn)
	tc.setConnected(true)
	tc.logger.LogConnection("open", true, nil)
	return nil
}

// dropLocked discards the stream without clearing the caller's intent to stay connected
func (tc *TelnetConnection) dropLocked(reason string, cause error) {
	if tc.conn == nil {
		return
	}
	tc.conn.Close()
	tc.conn = nil
	tc.reader = nil
	tc.setConnected(false)
	tc.logger.Warn("Dropping connection", zap.String("reason", reason), zap.Error(cause))
}

func (tc *TelnetConnection) writeLocked(payload []byte) error {
	if tc.config.WriteTimeout > 0 {
		tc.conn.SetWriteDeadline(time.Now().Add(tc.config.WriteTimeout))
	}
	n, err := tc.conn.Write(payload)
	if err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}
	if n != len(payload) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(payload))
	}

	tc.statsMu.Lock()
	tc.stats.BytesWritten += int64(n)
	tc.statsMu.Unlock()
	return nil
}

// readLineLocked reads up to and including '\n' under a single deadline
func (tc *TelnetConnection) readLineLocked(ctx context.Context) (string, error) {
	deadline := time.Now().Add(tc.config.AckTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	tc.conn.SetReadDeadline(deadline)

	conn := tc.conn
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var buf []byte
	for {
		b, err := tc.reader.ReadByte()
		if err != nil {
			return "", err
		}
		if len(buf) >= tc.config.MaxLineLength {
			return "", ErrLineTooLong
		}
		buf = append(buf, b)
		if b == '\n' {
			break
		}
	}

	tc.statsMu.Lock()
	tc.stats.BytesRead += int64(len(buf))
	tc.statsMu.Unlock()

	return strings.TrimSpace(string(stripTelnet(buf))), nil
}

func (tc *TelnetConnection) notifyBusy(busy bool) {
	if tc.listener.OnBusy != nil {
		tc.listener.OnBusy(busy)
	}
}

func (tc *TelnetConnection) setConnected(v bool) {
	tc.connected.Store(v)
}

// updateAverageLatency updates the running average latency
func (tc *TelnetConnection) updateAverageLatency(newLatency time.Duration) {
	if tc.stats.AverageLatency == 0 {
		tc.stats.AverageLatency = newLatency
	} else {
		tc.stats.AverageLatency = (tc.stats.AverageLatency + newLatency) / 2
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Telnet command bytes (RFC 854)
const (
	iac  = 255
	dont = 254
	will = 251
	sb   = 250
	se   = 240
)

// stripTelnet removes IAC negotiation sequences from a console line
func stripTelnet(in []byte) []byte {
	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		if in[i] != iac {
			out = append(out, in[i])
			continue
		}
		if i+1 >= len(in) {
			break
		}
		cmd := in[i+1]
		switch {
		case cmd == iac:
			out = append(out, iac)
			i++
		case cmd >= will && cmd <= dont:
			i += 2
		case cmd == sb:
			j := i + 2
			for j+1 < len(in) && !(in[j] == iac && in[j+1] == se) {
				j++
			}
			i = j + 1
		default:
			i++
		}
	}
	return out
}
