// internal/discovery/probe.go
package discovery

import (
	"context"

	"bnc-service/internal/driver/bnc575"
	"bnc-service/internal/protocol"
)

// telnetProbe opens the console once, without reconnects, and sends *IDN?
func (s *Scanner) telnetProbe(ctx context.Context, host string, port int) (string, error) {
	cfg := protocol.DefaultTelnetConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.ConnectTimeout = s.config.ConnTimeout
	cfg.AckTimeout = s.config.AckTimeout
	cfg.MaxReconnects = 0

	conn := protocol.NewTelnetConnection(cfg, s.logger)
	if err := conn.Open(ctx); err != nil {
		return "", err
	}
	defer conn.Close()

	return conn.Query(ctx, bnc575.COMMANDS.IDN)
}
