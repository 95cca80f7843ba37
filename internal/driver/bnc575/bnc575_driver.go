// internal/driver/bnc575/bnc575_driver.go
package bnc575

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bnc-service/internal/protocol"
)

// Generator maps BNC 575 attributes onto console commands. Channel scoped
// attributes address the active channel.
type Generator struct {
	protocol protocol.LineProtocol
	config   *GeneratorConfig
	logger   *zap.Logger

	mutex   sync.RWMutex
	channel Channel
	slot    int
	health  HealthMetrics
}

// GeneratorConfig represents the generator identity and initial selection
type GeneratorConfig struct {
	Host    string  `json:"host"`
	Port    int     `json:"port"`
	Channel Channel `json:"channel"`
	Slot    int     `json:"slot"`
}

// HealthMetrics summarizes recent exchanges
type HealthMetrics struct {
	HealthScore     int           `json:"health_score"` // 0-100
	ResponseTime    time.Duration `json:"response_time"`
	SuccessRate     float64       `json:"success_rate"` // 0.0-1.0
	ErrorCount      int64         `json:"error_count"`
	TotalOperations int64         `json:"total_operations"`
	LastErrorTime   *time.Time    `json:"last_error_time,omitempty"`
	LastSuccessTime *time.Time    `json:"last_success_time,omitempty"`
}

// NewGenerator creates a generator on an opened or lazily opened protocol
func NewGenerator(proto protocol.LineProtocol, config *GeneratorConfig, logger *zap.Logger) (*Generator, error) {
	if config.Channel == "" {
		config.Channel = ChannelA
	}
	if config.Slot == 0 {
		config.Slot = MinSlot
	}
	channel, err := ParseChannel(string(config.Channel))
	if err != nil {
		return nil, err
	}
	if config.Slot < MinSlot || config.Slot > MaxSlot {
		return nil, fmt.Errorf("%w: slot %d out of range [%d, %d]", ErrInvalidValue, config.Slot, MinSlot, MaxSlot)
	}

	return &Generator{
		protocol: proto,
		config:   config,
		logger: logger.With(
			zap.String("component", "bnc575"),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
		channel: channel,
		slot:    config.Slot,
	}, nil
}

// Host returns the configured instrument host
func (g *Generator) Host() string { return g.config.Host }

// Port returns the configured instrument port
func (g *Generator) Port() int { return g.config.Port }

// Protocol returns the underlying console
func (g *Generator) Protocol() protocol.LineProtocol { return g.protocol }

// Channel returns the active channel label
func (g *Generator) Channel() Channel {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.channel
}

// SetChannel selects the channel used by channel scoped attributes
func (g *Generator) SetChannel(label string) error {
	channel, err := ParseChannel(label)
	if err != nil {
		return err
	}
	g.mutex.Lock()
	g.channel = channel
	g.mutex.Unlock()
	return nil
}

// Slot returns the active memory slot
func (g *Generator) Slot() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.slot
}

// SetSlot selects the memory slot used by save and restore
func (g *Generator) SetSlot(slot int) error {
	if slot < MinSlot || slot > MaxSlot {
		return fmt.Errorf("%w: slot %d out of range [%d, %d]", ErrInvalidValue, slot, MinSlot, MaxSlot)
	}
	g.mutex.Lock()
	g.slot = slot
	g.mutex.Unlock()
	return nil
}

// Close closes the console connection
func (g *Generator) Close() error {
	return g.protocol.Close()
}

// Health returns a copy of the exchange health metrics
func (g *Generator) Health() HealthMetrics {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.health
}

// Common commands

// IDN returns the identification string
func (g *Generator) IDN(ctx context.Context) (string, error) {
	return g.query(ctx, COMMANDS.IDN)
}

// Reset restores factory defaults
func (g *Generator) Reset(ctx context.Context) error {
	return g.send(ctx, COMMANDS.RESET)
}

// Trigger issues a software trigger
func (g *Generator) Trigger(ctx context.Context) error {
	return g.send(ctx, COMMANDS.TRIGGER)
}

// SaveState stores the configuration in the active slot
func (g *Generator) SaveState(ctx context.Context) error {
	return g.set(ctx, COMMANDS.SAVE, strconv.Itoa(g.Slot()))
}

// RestoreState recalls the configuration from the active slot
func (g *Generator) RestoreState(ctx context.Context) error {
	return g.set(ctx, COMMANDS.RECALL, strconv.Itoa(g.Slot()))
}

// Label returns the configuration label
func (g *Generator) Label(ctx context.Context) (string, error) {
	lbl, err := g.query(ctx, COMMANDS.LABEL)
	if err != nil {
		return "", err
	}
	return strings.Trim(lbl, `"`), nil
}

// SetLabel writes a quoted configuration label
func (g *Generator) SetLabel(ctx context.Context, label string) error {
	if strings.ContainsAny(label, "\"\r\n") {
		return fmt.Errorf("%w: label must not contain quotes or line breaks", ErrInvalidValue)
	}
	return g.set(ctx, COMMANDS.LABEL, `"`+label+`"`)
}

// Arm enables the outputs
func (g *Generator) Arm(ctx context.Context) error {
	return g.set(ctx, COMMANDS.INST_STATE, string(StateOn))
}

// Stop exists for actuator hosts. The generator has no motion to stop.
func (g *Generator) Stop(ctx context.Context) error {
	return nil
}

// SetPeriodic switches the system to continuous pulses
func (g *Generator) SetPeriodic(ctx context.Context) error {
	return g.SetGlobalMode(ctx, ModeNormal)
}

// System attributes

func (g *Generator) GlobalState(ctx context.Context) (State, error) {
	reply, err := g.query(ctx, COMMANDS.INST_STATE)
	if err != nil {
		return "", err
	}
	return stateFromReply(reply), nil
}

func (g *Generator) SetGlobalState(ctx context.Context, state State) error {
	if err := checkToken("state", state, StateOn, StateOff); err != nil {
		return err
	}
	return g.set(ctx, COMMANDS.INST_STATE, string(state))
}

func (g *Generator) GlobalMode(ctx context.Context) (Mode, error) {
	reply, err := g.query(ctx, systemNode(COMMANDS.MODE))
	return Mode(reply), err
}

func (g *Generator) SetGlobalMode(ctx context.Context, mode Mode) error {
	if err := checkToken("mode", mode, Modes...); err != nil {
		return err
	}
	return g.set(ctx, systemNode(COMMANDS.MODE), string(mode))
}

// Period returns the system period in seconds
func (g *Generator) Period(ctx context.Context) (float64, error) {
	return g.queryFloat(ctx, systemNode(COMMANDS.PERIOD))
}

func (g *Generator) SetPeriod(ctx context.Context, seconds float64) error {
	if err := PeriodRange.Check("period", seconds); err != nil {
		return err
	}
	return g.set(ctx, systemNode(COMMANDS.PERIOD), formatFloat(seconds))
}

func (g *Generator) TriggerMode(ctx context.Context) (TriggerMode, error) {
	reply, err := g.query(ctx, systemNode(COMMANDS.TRIG_MODE))
	return TriggerMode(reply), err
}

func (g *Generator) SetTriggerMode(ctx context.Context, mode TriggerMode) error {
	if err := checkToken("trigger mode", mode, TriggerModes...); err != nil {
		return err
	}
	return g.set(ctx, systemNode(COMMANDS.TRIG_MODE), string(mode))
}

// TriggerThreshold returns the trigger level in volts
func (g *Generator) TriggerThreshold(ctx context.Context) (float64, error) {
	return g.queryFloat(ctx, systemNode(COMMANDS.TRIG_LEVEL))
}

func (g *Generator) SetTriggerThreshold(ctx context.Context, volts float64) error {
	if err := ThresholdRange.Check("trigger threshold", volts); err != nil {
		return err
	}
	return g.set(ctx, systemNode(COMMANDS.TRIG_LEVEL), formatFloat(volts))
}

func (g *Generator) TriggerEdge(ctx context.Context) (Edge, error) {
	return queryToken(ctx, g, systemNode(COMMANDS.TRIG_EDGE), EdgeRising, EdgeFalling)
}

func (g *Generator) SetTriggerEdge(ctx context.Context, edge Edge) error {
	if err := checkToken("trigger edge", edge, EdgeRising, EdgeFalling); err != nil {
		return err
	}
	return g.set(ctx, systemNode(COMMANDS.TRIG_EDGE), string(edge))
}

func (g *Generator) GateMode(ctx context.Context) (GateMode, error) {
	reply, err := g.query(ctx, systemNode(COMMANDS.GATE_MODE))
	return GateMode(reply), err
}

func (g *Generator) SetGateMode(ctx context.Context, mode GateMode) error {
	if err := checkToken("gate mode", mode, GateModes...); err != nil {
		return err
	}
	return g.set(ctx, systemNode(COMMANDS.GATE_MODE), string(mode))
}

// GateThreshold returns the gate level in volts
func (g *Generator) GateThreshold(ctx context.Context) (float64, error) {
	return g.queryFloat(ctx, systemNode(COMMANDS.GATE_LEVEL))
}

func (g *Generator) SetGateThreshold(ctx context.Context, volts float64) error {
	if err := ThresholdRange.Check("gate threshold", volts); err != nil {
		return err
	}
	return g.set(ctx, systemNode(COMMANDS.GATE_LEVEL), formatFloat(volts))
}

// GateLogic reads the channel logic under CHAN gating, the system logic otherwise
func (g *Generator) GateLogic(ctx context.Context) (Logic, error) {
	mode, err := g.GateMode(ctx)
	if err != nil {
		return "", err
	}
	return g.gateLogicFor(ctx, mode)
}

func (g *Generator) gateLogicFor(ctx context.Context, mode GateMode) (Logic, error) {
	if mode == GateChannel {
		reply, err := g.query(ctx, g.channelNode(COMMANDS.CHANNEL_LOGIC))
		return Logic(reply), err
	}
	reply, err := g.query(ctx, systemNode(COMMANDS.GATE_LOGIC))
	return Logic(reply), err
}

func (g *Generator) SetGateLogic(ctx context.Context, logic Logic) error {
	if err := checkToken("gate logic", logic, Logics...); err != nil {
		return err
	}
	mode, err := g.GateMode(ctx)
	if err != nil {
		return err
	}
	if mode == GateChannel {
		return g.set(ctx, g.channelNode(COMMANDS.CHANNEL_LOGIC), string(logic))
	}
	return g.set(ctx, systemNode(COMMANDS.GATE_LOGIC), string(logic))
}

// ChannelGateMode reads the channel gate under CHAN gating and reports DIS otherwise
func (g *Generator) ChannelGateMode(ctx context.Context) (ChannelGateMode, error) {
	mode, err := g.GateMode(ctx)
	if err != nil {
		return "", err
	}
	return g.channelGateModeFor(ctx, mode)
}

func (g *Generator) channelGateModeFor(ctx context.Context, mode GateMode) (ChannelGateMode, error) {
	if mode != GateChannel {
		return ChannelGateDisabled, nil
	}
	reply, err := g.query(ctx, g.channelNode(COMMANDS.CHANNEL_GATE))
	return ChannelGateMode(reply), err
}

// SetChannelGateMode switches the system to CHAN gating first when needed
func (g *Generator) SetChannelGateMode(ctx context.Context, mode ChannelGateMode) error {
	if err := checkToken("channel gate mode", mode, ChannelGateModes...); err != nil {
		return err
	}
	global, err := g.GateMode(ctx)
	if err != nil {
		return err
	}
	node := g.channelNode(COMMANDS.CHANNEL_GATE)
	if global != GateChannel {
		if err := g.set(ctx, systemNode(COMMANDS.GATE_MODE), string(GateChannel)); err != nil {
			return err
		}
	}
	return g.set(ctx, node, string(mode))
}

// Channel attributes

func (g *Generator) ChannelMode(ctx context.Context) (Mode, error) {
	reply, err := g.query(ctx, g.channelNode(COMMANDS.CHANNEL_MODE))
	return Mode(reply), err
}

func (g *Generator) SetChannelMode(ctx context.Context, mode Mode) error {
	if err := checkToken("channel mode", mode, Modes...); err != nil {
		return err
	}
	return g.set(ctx, g.channelNode(COMMANDS.CHANNEL_MODE), string(mode))
}

func (g *Generator) ChannelState(ctx context.Context) (State, error) {
	reply, err := g.query(ctx, g.channelNode(COMMANDS.CHANNEL_STATE))
	if err != nil {
		return "", err
	}
	return stateFromReply(reply), nil
}

func (g *Generator) SetChannelState(ctx context.Context, state State) error {
	if err := checkToken("channel state", state, StateOn, StateOff); err != nil {
		return err
	}
	return g.set(ctx, g.channelNode(COMMANDS.CHANNEL_STATE), string(state))
}

// Delay returns the channel delay in seconds
func (g *Generator) Delay(ctx context.Context) (float64, error) {
	return g.queryFloat(ctx, g.channelNode(COMMANDS.DELAY))
}

// SetDelay writes the delay in seconds with nanosecond resolution
func (g *Generator) SetDelay(ctx context.Context, seconds float64) error {
	if err := DelayRange.Check("delay", seconds); err != nil {
		return err
	}
	return g.set(ctx, g.channelNode(COMMANDS.DELAY), FormatSeconds(seconds))
}

// Width returns the channel pulse width in seconds
func (g *Generator) Width(ctx context.Context) (float64, error) {
	return g.queryFloat(ctx, g.channelNode(COMMANDS.WIDTH))
}

// SetWidth writes the width in seconds with nanosecond resolution
func (g *Generator) SetWidth(ctx context.Context, seconds float64) error {
	if err := WidthRange.Check("width", seconds); err != nil {
		return err
	}
	return g.set(ctx, g.channelNode(COMMANDS.WIDTH), FormatSeconds(seconds))
}

func (g *Generator) AmplitudeMode(ctx context.Context) (AmplitudeMode, error) {
	return queryToken(ctx, g, g.channelNode(COMMANDS.OUTPUT_MODE), AmplitudeModes...)
}

func (g *Generator) SetAmplitudeMode(ctx context.Context, mode AmplitudeMode) error {
	if err := checkToken("amplitude mode", mode, AmplitudeModes...); err != nil {
		return err
	}
	return g.set(ctx, g.channelNode(COMMANDS.OUTPUT_MODE), string(mode))
}

// Amplitude returns the channel output amplitude in volts
func (g *Generator) Amplitude(ctx context.Context) (float64, error) {
	return g.queryFloat(ctx, g.channelNode(COMMANDS.AMPLITUDE))
}

// SetAmplitude writes the amplitude. It is refused while the output is in TTL mode.
func (g *Generator) SetAmplitude(ctx context.Context, volts float64) error {
	if err := AmplitudeRange.Check("amplitude", volts); err != nil {
		return err
	}
	mode, err := g.AmplitudeMode(ctx)
	if err != nil {
		return err
	}
	if mode == AmplitudeTTL {
		return fmt.Errorf("%w (channel %s)", ErrTTLMode, g.Channel())
	}
	return g.set(ctx, g.channelNode(COMMANDS.AMPLITUDE), formatFloat(volts))
}

func (g *Generator) Polarity(ctx context.Context) (Polarity, error) {
	reply, err := g.query(ctx, g.channelNode(COMMANDS.POLARITY))
	return Polarity(reply), err
}

func (g *Generator) SetPolarity(ctx context.Context, pol Polarity) error {
	if err := checkToken("polarity", pol, Polarities...); err != nil {
		return err
	}
	return g.set(ctx, g.channelNode(COMMANDS.POLARITY), string(pol))
}

// Helper methods

// channelNode resolves the active channel into its pulse node
func (g *Generator) channelNode(node string) string {
	idx, err := ChannelIndex(string(g.Channel()))
	if err != nil {
		// SetChannel only stores validated labels
		idx = 1
	}
	return pulse(idx, node)
}

func (g *Generator) query(ctx context.Context, name string) (string, error) {
	start := time.Now()
	reply, err := g.protocol.Query(ctx, name)
	err = g.checkReply(name+"?", reply, err)
	g.updateHealthMetrics(err == nil, time.Since(start))
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (g *Generator) set(ctx context.Context, name, value string) error {
	start := time.Now()
	reply, err := g.protocol.Set(ctx, name, value)
	err = g.checkReply(name+" "+value, reply, err)
	g.updateHealthMetrics(err == nil, time.Since(start))
	return err
}

func (g *Generator) send(ctx context.Context, line string) error {
	start := time.Now()
	reply, err := g.protocol.Send(ctx, line)
	err = g.checkReply(line, reply, err)
	g.updateHealthMetrics(err == nil, time.Since(start))
	return err
}

// checkReply wraps transport errors and turns ?n replies into ErrCommandRejected
func (g *Generator) checkReply(line, reply string, err error) error {
	if err != nil {
		g.logger.Warn("Command failed", zap.String("command", line), zap.Error(err))
		return fmt.Errorf("%s: %w", line, err)
	}
	if strings.HasPrefix(reply, "?") {
		g.logger.Warn("Command rejected", zap.String("command", line), zap.String("reply", reply))
		return fmt.Errorf("%w: %s replied %s", ErrCommandRejected, line, reply)
	}
	return nil
}

// queryToken reads an enumerated register and refuses tokens outside legal
func queryToken[T ~string](ctx context.Context, g *Generator, name string, legal ...T) (T, error) {
	reply, err := g.query(ctx, name)
	if err != nil {
		return "", err
	}
	v := T(strings.ToUpper(reply))
	if !slices.Contains(legal, v) {
		return "", fmt.Errorf("%w: %s? returned %q", ErrUnexpectedReply, name, reply)
	}
	return v, nil
}

func (g *Generator) queryFloat(ctx context.Context, name string) (float64, error) {
	reply, err := g.query(ctx, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s? returned %q", ErrUnexpectedReply, name, reply)
	}
	return v, nil
}

// updateHealthMetrics updates exchange health metrics
func (g *Generator) updateHealthMetrics(success bool, responseTime time.Duration) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	h := &g.health
	h.TotalOperations++
	h.ResponseTime = responseTime
	now := time.Now()
	if success {
		h.LastSuccessTime = &now
	} else {
		h.ErrorCount++
		h.LastErrorTime = &now
	}
	h.SuccessRate = float64(h.TotalOperations-h.ErrorCount) / float64(h.TotalOperations)

	h.HealthScore = int(h.SuccessRate * 100)
	if responseTime > time.Second {
		h.HealthScore -= 10
	}
	if h.HealthScore < 0 {
		h.HealthScore = 0
	}
}

// FormatSeconds renders a time value with nine decimals, the resolution the generator accepts
func FormatSeconds(seconds float64) string {
	return decimal.NewFromFloat(seconds).StringFixed(9)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
