// internal/plugin/session.go
package plugin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"bnc-service/internal/config"
	"bnc-service/internal/driver/bnc575"
	"bnc-service/internal/protocol"
	"bnc-service/internal/utils"
	"bnc-service/pkg/plugin"
)

var (
	// ErrNotInitialized is returned by operations that need a connected instrument
	ErrNotInitialized = errors.New("plugin not initialized")
	// ErrUnknownParameter is returned for a setting the plugin does not handle
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrUnknownKind is returned by the registry for an unregistered kind
	ErrUnknownKind = errors.New("unknown plugin kind")
	// ErrInvalidParameterValue is returned when a host value has the wrong type
	ErrInvalidParameterValue = errors.New("invalid parameter value")
)

const exportName = "BNC575"

// Connector opens the instrument console described by cfg
type Connector func(ctx context.Context, cfg *protocol.TelnetConfig, listener protocol.Listener) (protocol.LineProtocol, error)

// TelnetConnector returns a Connector that dials a real telnet console
func TelnetConnector(logger *zap.Logger, opts ...protocol.Option) Connector {
	return func(ctx context.Context, cfg *protocol.TelnetConfig, listener protocol.Listener) (protocol.LineProtocol, error) {
		all := append(append([]protocol.Option(nil), opts...), protocol.WithListener(listener))
		conn := protocol.NewTelnetConnection(cfg, logger, all...)
		if err := conn.Open(ctx); err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Options configures a plugin instance
type Options struct {
	Telnet  *protocol.TelnetConfig
	Plugin  config.PluginConfig
	Connect Connector
	Sink    plugin.DataSink
	Busy    plugin.BusySink
	Reply   func(kind plugin.Kind, command, reply string)
	Logger  *zap.Logger
}

func (o *Options) normalize() error {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Telnet == nil {
		o.Telnet = protocol.DefaultTelnetConfig()
	}
	if err := o.Telnet.Validate(); err != nil {
		return err
	}
	if o.Connect == nil {
		o.Connect = TelnetConnector(o.Logger)
	}
	if o.Plugin.DefaultChannel == "" {
		o.Plugin.DefaultChannel = string(bnc575.ChannelA)
	}
	if o.Plugin.DefaultSlot == 0 {
		o.Plugin.DefaultSlot = bnc575.MinSlot
	}
	if o.Plugin.Epsilon <= 0 {
		o.Plugin.Epsilon = 0.25
	}
	return nil
}

// session owns the generator and the host-facing parameter tree of one plugin
type session struct {
	kind   plugin.Kind
	opts   Options
	logger *zap.Logger
	audit  *utils.AuditLogger

	mu        sync.Mutex
	telnet    *protocol.TelnetConfig
	generator *bnc575.Generator
	settings  []plugin.Param
}

func newSession(kind plugin.Kind, opts Options, settings []plugin.Param) (*session, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	logger := opts.Logger.With(zap.String("plugin", string(kind)))
	return &session{
		kind:     kind,
		opts:     opts,
		logger:   logger,
		audit:    utils.NewAuditLogger(logger),
		telnet:   opts.Telnet,
		settings: settings,
	}, nil
}

// connectLocked opens a console at cfg and replaces the current generator.
// The previous generator is closed only once the new one is connected, and
// the channel and slot selection survive the swap.
func (s *session) connectLocked(ctx context.Context, cfg *protocol.TelnetConfig) error {
	channel := bnc575.Channel(s.opts.Plugin.DefaultChannel)
	slot := s.opts.Plugin.DefaultSlot
	if s.generator != nil {
		channel = s.generator.Channel()
		slot = s.generator.Slot()
	}

	listener := protocol.Listener{
		OnBusy: func(busy bool) {
			if s.opts.Busy != nil {
				s.opts.Busy(s.kind, busy)
			}
		},
		OnReply: func(command, reply string) {
			if s.opts.Reply != nil {
				s.opts.Reply(s.kind, command, reply)
			}
		},
	}
	console, err := s.opts.Connect(ctx, cfg, listener)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.Address(), err)
	}

	g, err := bnc575.NewGenerator(console, &bnc575.GeneratorConfig{
		Host:    cfg.Host,
		Port:    cfg.Port,
		Channel: channel,
		Slot:    slot,
	}, s.logger)
	if err != nil {
		console.Close()
		return err
	}

	if s.generator != nil {
		if err := s.generator.Close(); err != nil {
			s.logger.Warn("Failed to close previous console", zap.Error(err))
		}
	}
	s.telnet = cfg
	s.generator = g
	s.logger.Info("Connected to pulse generator", zap.String("address", cfg.Address()))
	return nil
}

// reconnectLocked applies a host or port override and reconnects
func (s *session) reconnectLocked(ctx context.Context, key string, value interface{}) error {
	cfg, err := protocol.ApplyOverrides(s.telnet, map[string]interface{}{key: value})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameterValue, err)
	}
	return s.connectLocked(ctx, cfg)
}

func (s *session) generatorLocked() (*bnc575.Generator, error) {
	if s.generator == nil {
		return nil, ErrNotInitialized
	}
	return s.generator, nil
}

func (s *session) identify(ctx context.Context, g *bnc575.Generator) string {
	idn, err := g.IDN(ctx)
	if err != nil {
		s.logger.Warn("Identification query failed", zap.Error(err))
		return fmt.Sprintf("BNC 575 at %s", s.telnet.Address())
	}
	return fmt.Sprintf("%s at %s", idn, s.telnet.Address())
}

// Settings returns a copy of the parameter tree
func (s *session) Settings() []plugin.Param {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneParams(s.settings)
}

// Generator returns the connected generator, nil before Initialize
func (s *session) Generator() *bnc575.Generator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generator
}

// Close closes the console
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generator == nil {
		return nil
	}
	err := s.generator.Close()
	s.generator = nil
	s.logger.Info("Plugin closed")
	return err
}

func (s *session) push(fields []plugin.Field) {
	if s.opts.Sink == nil {
		return
	}
	s.opts.Sink(plugin.DataExport{
		Name:      exportName,
		Kind:      s.kind,
		Dim:       "Data0D",
		Fields:    fields,
		Timestamp: time.Now(),
	})
}

// storeLocked records value on every node named name and reports their paths
func (s *session) storeLocked(name string, value interface{}) []plugin.ParamUpdate {
	var updates []plugin.ParamUpdate
	walkParams(s.settings, nil, func(path []string, p *plugin.Param) {
		if p.Name == name && !p.IsGroup() {
			p.Value = value
			updates = append(updates, plugin.ParamUpdate{Path: path, Value: value})
		}
	})
	return updates
}

// updateLocked records value at path and returns the matching update
func (s *session) updateLocked(value interface{}, path ...string) plugin.ParamUpdate {
	if p, ok := plugin.Find(s.settings, path...); ok {
		p.Value = value
	}
	return plugin.ParamUpdate{Path: path, Value: value}
}

func walkParams(params []plugin.Param, prefix []string, fn func(path []string, p *plugin.Param)) {
	for i := range params {
		path := append(append([]string(nil), prefix...), params[i].Name)
		fn(path, &params[i])
		walkParams(params[i].Children, path, fn)
	}
}

// Host values arrive decoded from JSON or typed by Go callers

func toFloat(name string, v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %s expects a number, got %v", ErrInvalidParameterValue, name, v)
}

func toInt(name string, v interface{}) (int, error) {
	f, err := toFloat(name, v)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("%w: %s expects an integer, got %v", ErrInvalidParameterValue, name, v)
	}
	return int(f), nil
}

func toBool(name string, v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed, nil
		}
	case float64:
		return b != 0, nil
	case int:
		return b != 0, nil
	}
	return false, fmt.Errorf("%w: %s expects a boolean, got %v", ErrInvalidParameterValue, name, v)
}

func toString(name string, v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), nil
	case int:
		return strconv.Itoa(s), nil
	case bool:
		// led_push widgets toggle; the generator reads 1 and 0 as ON and OFF
		if s {
			return "1", nil
		}
		return "0", nil
	case fmt.Stringer:
		return s.String(), nil
	}
	return "", fmt.Errorf("%w: %s expects a string, got %T", ErrInvalidParameterValue, name, v)
}
