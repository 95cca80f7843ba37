// internal/discovery/scanner.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrRangeTooLarge is returned for a network range with more hosts than Config.MaxHosts
	ErrRangeTooLarge = errors.New("network range too large")
	// ErrInvalidRange is returned for a range that is not an IPv4 address or prefix
	ErrInvalidRange = errors.New("invalid network range")
)

// Instrument is a pulse generator that answered *IDN? on its console port
type Instrument struct {
	Address      string        `json:"address"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	IDN          string        `json:"idn"`
	Model        string        `json:"model"`
	SerialNumber string        `json:"serial_number"`
	Firmware     string        `json:"firmware"`
	ResponseTime time.Duration `json:"response_time"`
}

// Config for the console scanner
type Config struct {
	Port        int           `json:"port"`
	ConnTimeout time.Duration `json:"connection_timeout"`
	AckTimeout  time.Duration `json:"ack_timeout"`
	Concurrency int           `json:"concurrency"`
	MaxHosts    int           `json:"max_hosts"`
}

// DefaultConfig returns scanner settings for a lab subnet
func DefaultConfig() *Config {
	return &Config{
		Port:        2001,
		ConnTimeout: 500 * time.Millisecond,
		AckTimeout:  time.Second,
		Concurrency: 32,
		MaxHosts:    1024,
	}
}

// Probe asks one host for its identification string
type Probe func(ctx context.Context, host string, port int) (string, error)

// Scanner finds BNC-575 consoles in a network range
type Scanner struct {
	logger *zap.Logger
	config *Config
	probe  Probe
}

// NewScanner creates a new scanner. A nil probe dials the telnet console.
func NewScanner(logger *zap.Logger, config *Config, probe Probe) *Scanner {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Scanner{
		logger: logger.With(zap.String("scanner", "telnet")),
		config: config,
		probe:  probe,
	}
	if s.probe == nil {
		s.probe = s.telnetProbe
	}
	return s
}

// Scan probes every host of cidr on the console port. Hosts that do not
// answer, or answer with something other than a BNC-575, are skipped.
func (s *Scanner) Scan(ctx context.Context, cidr string) ([]Instrument, error) {
	hosts, err := expand(cidr, s.config.MaxHosts)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Starting console scan",
		zap.String("range", cidr),
		zap.Int("port", s.config.Port),
		zap.Int("hosts", len(hosts)),
	)

	var (
		mu    sync.Mutex
		found []Instrument
	)

	g, gctx := errgroup.WithContext(ctx)
	if s.config.Concurrency > 0 {
		g.SetLimit(s.config.Concurrency)
	}

	for _, host := range hosts {
		if gctx.Err() != nil {
			break
		}
		host := host
		g.Go(func() error {
			start := time.Now()
			idn, err := s.probe(gctx, host, s.config.Port)
			if err != nil {
				s.logger.Debug("No console", zap.String("host", host), zap.Error(err))
				return nil
			}

			model, serial, firmware, ok := ParseIDN(idn)
			if !ok {
				s.logger.Debug("Not a BNC-575", zap.String("host", host), zap.String("idn", idn))
				return nil
			}

			mu.Lock()
			found = append(found, Instrument{
				Address:      fmt.Sprintf("%s:%d", host, s.config.Port),
				Host:         host,
				Port:         s.config.Port,
				IDN:          idn,
				Model:        model,
				SerialNumber: serial,
				Firmware:     firmware,
				ResponseTime: time.Since(start),
			})
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool {
		a, _ := netip.ParseAddr(found[i].Host)
		b, _ := netip.ParseAddr(found[j].Host)
		return a.Less(b)
	})

	s.logger.Info("Console scan completed", zap.Int("devices_found", len(found)))
	return found, nil
}

// ParseIDN splits a "BNC,575-4,31183,2.4.1" identification string
func ParseIDN(idn string) (model, serial, firmware string, ok bool) {
	parts := strings.Split(strings.TrimSpace(idn), ",")
	if len(parts) < 2 || !strings.EqualFold(strings.TrimSpace(parts[0]), "BNC") {
		return "", "", "", false
	}
	model = strings.TrimSpace(parts[1])
	if !strings.HasPrefix(model, "575") {
		return "", "", "", false
	}
	if len(parts) > 2 {
		serial = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 {
		firmware = strings.TrimSpace(parts[3])
	}
	return model, serial, firmware, true
}

// expand lists the host addresses of cidr. A bare address is a one host range.
func expand(cidr string, maxHosts int) ([]string, error) {
	if !strings.Contains(cidr, "/") {
		addr, err := netip.ParseAddr(cidr)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidRange, cidr, err)
		}
		if !addr.Is4() {
			return nil, fmt.Errorf("%w %q: only IPv4 ranges are scanned", ErrInvalidRange, cidr)
		}
		return []string{addr.String()}, nil
	}

	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidRange, cidr, err)
	}
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("%w %q: only IPv4 ranges are scanned", ErrInvalidRange, cidr)
	}

	hostBits := 32 - prefix.Bits()
	if hostBits > 20 || (maxHosts > 0 && 1<<hostBits > maxHosts+2) {
		return nil, fmt.Errorf("%w: %s", ErrRangeTooLarge, cidr)
	}

	var hosts []string
	for addr := prefix.Addr(); prefix.Contains(addr); addr = addr.Next() {
		hosts = append(hosts, addr.String())
	}
	// Drop network and broadcast addresses
	if len(hosts) > 2 {
		hosts = hosts[1 : len(hosts)-1]
	}
	return hosts, nil
}
