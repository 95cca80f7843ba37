// internal/service/plugin_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bnc-service/internal/config"
	"bnc-service/internal/driver/bnc575"
	"bnc-service/internal/model"
	internalPlugin "bnc-service/internal/plugin"
	"bnc-service/internal/protocol"
	"bnc-service/internal/utils"
	"bnc-service/pkg/plugin"
)

var (
	// ErrPluginNotFound is returned for a kind that has not been initialized
	ErrPluginNotFound = errors.New("plugin not initialized")
	// ErrNotMover is returned for motion calls on a plugin without an axis
	ErrNotMover = errors.New("plugin is not a mover")
	// ErrNoInstrument is returned when no plugin holds an instrument connection
	ErrNoInstrument = errors.New("no instrument connection")
	// ErrShuttingDown is returned by Initialize once Shutdown has started
	ErrShuttingDown = errors.New("plugin service is shutting down")
)

// EventPublisher receives plugin events
type EventPublisher interface {
	Publish(event model.PluginEvent)
}

// PluginService hosts plugin instances on behalf of a remote acquisition host
type PluginService struct {
	registry  *internalPlugin.Registry
	config    *config.Config
	connect   internalPlugin.Connector
	publisher EventPublisher
	recorder  ExchangeRecorder
	logger    *utils.ServiceLogger

	mutex     sync.Mutex
	plugins   map[plugin.Kind]plugin.Plugin
	pollers   map[plugin.Kind]context.CancelFunc
	lifecycle map[plugin.Kind]*sync.Mutex
	closing   bool
	wg        sync.WaitGroup
}

// NewPluginService creates a new plugin service instance. A nil connector dials telnet.
// The recorder may be nil.
func NewPluginService(
	registry *internalPlugin.Registry,
	cfg *config.Config,
	connect internalPlugin.Connector,
	publisher EventPublisher,
	recorder ExchangeRecorder,
	logger *zap.Logger,
) *PluginService {
	if connect == nil {
		connect = internalPlugin.TelnetConnector(logger)
	}
	return &PluginService{
		registry:  registry,
		config:    cfg,
		connect:   connect,
		publisher: publisher,
		recorder:  recorder,
		logger:    utils.NewServiceLogger(logger, "plugin-service"),
		plugins:   make(map[plugin.Kind]plugin.Plugin),
		pollers:   make(map[plugin.Kind]context.CancelFunc),
		lifecycle: make(map[plugin.Kind]*sync.Mutex),
	}
}

// InitResult is the outcome of a plugin initialization
type InitResult struct {
	Kind        plugin.Kind    `json:"kind"`
	Info        string         `json:"info"`
	Initialized bool           `json:"initialized"`
	Settings    []plugin.Param `json:"settings,omitempty"`
	Axis        *plugin.Axis   `json:"axis,omitempty"`
}

// Initialize creates a plugin of kind, connects it and starts polling for viewers.
// An already initialized plugin of the same kind is closed first. Initialize
// and Close of one kind are serialized.
func (s *PluginService) Initialize(ctx context.Context, kind plugin.Kind) (*InitResult, error) {
	if !s.registry.IsSupported(kind) {
		return nil, fmt.Errorf("%w: %s", internalPlugin.ErrUnknownKind, kind)
	}

	lock := s.kindLock(kind)
	lock.Lock()
	defer lock.Unlock()

	if err := s.closeKind(kind); err != nil && !errors.Is(err, ErrPluginNotFound) {
		s.logger.Warn("Failed to close previous plugin", zap.String("kind", string(kind)), zap.Error(err))
	}

	p, err := s.registry.Create(kind, internalPlugin.Options{
		Telnet:  protocol.ConfigFromDevice(&s.config.Device),
		Plugin:  s.config.Plugin,
		Connect: s.connect,
		Sink:    s.dataSink(kind),
		Busy:    s.busySink,
		Reply:   s.replySink,
		Logger:  s.logger.Logger,
	})
	if err != nil {
		return nil, err
	}

	opLogger := utils.NewOperationLogger(s.logger.Logger, "initialize:"+string(kind), uuid.NewString())
	info, ok, err := p.Initialize(ctx)
	if err != nil || !ok {
		if err == nil {
			err = errors.New(info)
		}
		opLogger.Error(err)
		p.Close()
		s.publishError(kind, "initialize", err)
		return &InitResult{Kind: kind, Info: info}, err
	}
	opLogger.Success(zap.String("info", info))

	result := &InitResult{Kind: kind, Info: info, Initialized: true, Settings: p.Settings()}
	if m, isMover := p.(plugin.Mover); isMover {
		axis := m.Axis()
		result.Axis = &axis
	}

	if err := s.store(kind, p); err != nil {
		opLogger.Error(err)
		p.Close()
		return &InitResult{Kind: kind, Info: info}, err
	}

	s.publish(model.EventPluginInitialized, kind, model.PluginInitializedEventData{Info: info})
	return result, nil
}

// Settings returns the parameter tree of an initialized plugin
func (s *PluginService) Settings(kind plugin.Kind) ([]plugin.Param, error) {
	p, err := s.get(kind)
	if err != nil {
		return nil, err
	}
	return p.Settings(), nil
}

// SetParameter forwards one edited setting and returns its side effects
func (s *PluginService) SetParameter(ctx context.Context, kind plugin.Kind, name string, value interface{}) ([]plugin.ParamUpdate, error) {
	p, err := s.get(kind)
	if err != nil {
		return nil, err
	}

	updates, err := p.OnParameterChanged(ctx, name, value)
	if err != nil {
		s.publishError(kind, "parameter:"+name, err)
		return nil, err
	}

	s.publish(model.EventParameterChanged, kind, model.ParameterChangedEventData{
		Name:    name,
		Value:   value,
		Updates: updates,
	})
	return updates, nil
}

// Poll acquires once. The data arrives through the event publisher.
func (s *PluginService) Poll(ctx context.Context, kind plugin.Kind) error {
	p, err := s.get(kind)
	if err != nil {
		return err
	}
	if err := p.Poll(ctx); err != nil {
		s.publishError(kind, "poll", err)
		return err
	}
	return nil
}

// MoveAbs moves the mover to value
func (s *PluginService) MoveAbs(ctx context.Context, value float64) (*model.PositionEventData, error) {
	return s.move(ctx, "move_abs", func(m plugin.Mover) (float64, error) { return m.MoveAbs(ctx, value) })
}

// MoveRel moves the mover by delta
func (s *PluginService) MoveRel(ctx context.Context, delta float64) (*model.PositionEventData, error) {
	return s.move(ctx, "move_rel", func(m plugin.Mover) (float64, error) { return m.MoveRel(ctx, delta) })
}

// MoveHome moves the mover to its reference position
func (s *PluginService) MoveHome(ctx context.Context) (*model.PositionEventData, error) {
	return s.move(ctx, "move_home", func(m plugin.Mover) (float64, error) { return m.MoveHome(ctx) })
}

// Stop stops the mover
func (s *PluginService) Stop(ctx context.Context) (*model.PositionEventData, error) {
	return s.move(ctx, "stop", func(m plugin.Mover) (float64, error) { return m.Stop(ctx) })
}

// Position reads the mover position without publishing it
func (s *PluginService) Position(ctx context.Context) (*model.PositionEventData, error) {
	m, err := s.mover()
	if err != nil {
		return nil, err
	}
	value, err := m.CurrentValue(ctx)
	if err != nil {
		return nil, err
	}
	axis := m.Axis()
	return &model.PositionEventData{Axis: axis.Name, Unit: axis.Unit, Value: value}, nil
}

func (s *PluginService) move(ctx context.Context, operation string, fn func(plugin.Mover) (float64, error)) (*model.PositionEventData, error) {
	m, err := s.mover()
	if err != nil {
		return nil, err
	}

	value, err := fn(m)
	if err != nil {
		s.publishError(plugin.KindMove, operation, err)
		return nil, err
	}

	axis := m.Axis()
	position := &model.PositionEventData{Axis: axis.Name, Unit: axis.Unit, Value: value}
	s.publish(model.EventPositionChanged, plugin.KindMove, position)
	return position, nil
}

func (s *PluginService) mover() (plugin.Mover, error) {
	p, err := s.get(plugin.KindMove)
	if err != nil {
		return nil, err
	}
	m, ok := p.(plugin.Mover)
	if !ok {
		return nil, ErrNotMover
	}
	return m, nil
}

// store registers p and, for viewers, its poll loop in one critical section
func (s *PluginService) store(kind plugin.Kind, p plugin.Plugin) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closing {
		return ErrShuttingDown
	}
	s.plugins[kind] = p
	if kind == plugin.KindViewer && s.config.Plugin.PollInterval > 0 {
		s.startPollingLocked(kind, p)
	}
	return nil
}

func (s *PluginService) kindLock(kind plugin.Kind) *sync.Mutex {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	lock, ok := s.lifecycle[kind]
	if !ok {
		lock = &sync.Mutex{}
		s.lifecycle[kind] = lock
	}
	return lock
}

// Close stops polling and closes the plugin of kind
func (s *PluginService) Close(kind plugin.Kind) error {
	lock := s.kindLock(kind)
	lock.Lock()
	defer lock.Unlock()
	return s.closeKind(kind)
}

// closeKind runs under the lifecycle lock of kind
func (s *PluginService) closeKind(kind plugin.Kind) error {
	s.mutex.Lock()
	p, exists := s.plugins[kind]
	delete(s.plugins, kind)
	cancel := s.pollers[kind]
	delete(s.pollers, kind)
	s.mutex.Unlock()

	if cancel != nil {
		cancel()
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, kind)
	}

	err := p.Close()
	s.publish(model.EventPluginClosed, kind, nil)
	return err
}

// Shutdown closes every plugin and waits for the poll loops to exit.
// Initialize calls that finish afterwards close their plugin and fail.
func (s *PluginService) Shutdown() {
	s.mutex.Lock()
	s.closing = true
	kinds := make([]plugin.Kind, 0, len(s.plugins))
	for kind := range s.plugins {
		kinds = append(kinds, kind)
	}
	s.mutex.Unlock()

	for _, kind := range kinds {
		if err := s.Close(kind); err != nil {
			s.logger.Warn("Failed to close plugin", zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	s.wg.Wait()
}

// PluginStatus summarizes one initialized plugin
type PluginStatus struct {
	Kind     plugin.Kind             `json:"kind"`
	Channel  string                  `json:"channel,omitempty"`
	Slot     int                     `json:"slot,omitempty"`
	Polling  bool                    `json:"polling"`
	Protocol *protocol.ProtocolStats `json:"protocol,omitempty"`
	Health   *bnc575.HealthMetrics   `json:"health,omitempty"`
}

// Status lists the initialized plugins
func (s *PluginService) Status() []PluginStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make([]PluginStatus, 0, len(s.plugins))
	for _, kind := range s.registry.Kinds() {
		p, ok := s.plugins[kind]
		if !ok {
			continue
		}
		status := PluginStatus{Kind: kind}
		_, status.Polling = s.pollers[kind]
		if g := generatorOf(p); g != nil {
			stats := g.Protocol().Stats()
			health := g.Health()
			status.Channel = string(g.Channel())
			status.Slot = g.Slot()
			status.Protocol = &stats
			status.Health = &health
		}
		out = append(out, status)
	}
	return out
}

// Generator returns the instrument of an initialized plugin, movers first
func (s *PluginService) Generator() (*bnc575.Generator, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, kind := range []plugin.Kind{plugin.KindMove, plugin.KindViewer} {
		if g := generatorOf(s.plugins[kind]); g != nil {
			return g, nil
		}
	}
	return nil, ErrNoInstrument
}

// Ready reports whether an instrument connection is open and answers *IDN?
func (s *PluginService) Ready(ctx context.Context) (string, error) {
	g, err := s.Generator()
	if err != nil {
		return "", err
	}
	if !g.Protocol().IsOpen() {
		return "", fmt.Errorf("%w: console closed", ErrNoInstrument)
	}
	return g.IDN(ctx)
}

func generatorOf(p plugin.Plugin) *bnc575.Generator {
	provider, ok := p.(interface{ Generator() *bnc575.Generator })
	if !ok {
		return nil
	}
	return provider.Generator()
}

func (s *PluginService) get(kind plugin.Kind) (plugin.Plugin, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	p, ok := s.plugins[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, kind)
	}
	return p, nil
}

// startPollingLocked runs the acquisition loop of a viewer. s.mutex must be held.
func (s *PluginService) startPollingLocked(kind plugin.Kind, p plugin.Plugin) {
	ctx, cancel := context.WithCancel(context.Background())
	s.pollers[kind] = cancel

	interval := s.config.Plugin.PollInterval
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			pollCtx, cancelPoll := context.WithTimeout(ctx, interval+s.config.Device.AckTimeout)
			err := p.Poll(pollCtx)
			cancelPoll()
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("Poll failed", zap.String("kind", string(kind)), zap.Error(err))
				s.publishError(kind, "poll", err)
			}
		}
	}()

	s.logger.Info("Polling started", zap.String("kind", string(kind)), zap.Duration("interval", interval))
}

func (s *PluginService) dataSink(kind plugin.Kind) plugin.DataSink {
	return func(export plugin.DataExport) {
		s.publish(model.EventDataReady, kind, export)
	}
}

func (s *PluginService) busySink(kind plugin.Kind, busy bool) {
	s.publish(model.EventBusy, kind, model.BusyEventData{Busy: busy})
}

func (s *PluginService) replySink(kind plugin.Kind, command, reply string) {
	if s.recorder != nil {
		s.recorder.Record(kind, command, reply)
	}
}

func (s *PluginService) publish(eventType model.EventType, kind plugin.Kind, data interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(model.NewPluginEvent(eventType, kind, data))
}

func (s *PluginService) publishError(kind plugin.Kind, operation string, err error) {
	s.publish(model.EventPluginError, kind, model.PluginErrorEventData{
		Operation:    operation,
		ErrorMessage: err.Error(),
		ErrorTime:    time.Now(),
	})
}
