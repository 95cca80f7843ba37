// internal/plugin/mover.go
package plugin

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bnc-service/internal/driver/bnc575"
	"bnc-service/pkg/plugin"
)

const nanosecond = 1e9

// Mover drives the delay of the active channel as an actuator axis in ns
type Mover struct {
	*session
	current float64
}

var _ plugin.Mover = (*Mover)(nil)

// NewMover creates an unconnected mover
func NewMover(opts Options) (*Mover, error) {
	s, err := newSession(plugin.KindMove, opts, nil)
	if err != nil {
		return nil, err
	}
	m := &Mover{session: s}
	m.settings = m.baseSettings()
	return m, nil
}

// AxisNames lists the mover axes, one per channel
func AxisNames() []string {
	names := make([]string, len(bnc575.Channels))
	for i, ch := range bnc575.Channels {
		names[i] = axisName(ch)
	}
	return names
}

func axisName(ch bnc575.Channel) string {
	return fmt.Sprintf("Delay (Channel %s)", ch)
}

func (m *Mover) baseSettings() []plugin.Param {
	limits := make([]interface{}, 0, len(bnc575.Channels))
	for _, name := range AxisNames() {
		limits = append(limits, name)
	}
	return []plugin.Param{
		{
			Title: "Actuator", Name: "move_settings", Type: plugin.TypeGroup, Children: []plugin.Param{
				{Title: "Axis", Name: "axis", Type: plugin.TypeList, Value: axisName(bnc575.Channel(m.opts.Plugin.DefaultChannel)), Limits: limits, ReadOnly: true},
				{Title: "Units", Name: "units", Type: plugin.TypeString, Value: "ns", ReadOnly: true},
				{Title: "Epsilon", Name: "epsilon", Type: plugin.TypeFloat, Value: m.opts.Plugin.Epsilon},
			},
		},
		{
			Title: "Connection", Name: "connection", Type: plugin.TypeGroup, Children: []plugin.Param{
				{Title: "IP", Name: "ip", Type: plugin.TypeString, Value: m.opts.Telnet.Host, Default: m.opts.Telnet.Host},
				{Title: "Port", Name: "port", Type: plugin.TypeInt, Value: m.opts.Telnet.Port, Default: m.opts.Telnet.Port},
			},
		},
	}
}

// Kind implements plugin.Plugin
func (m *Mover) Kind() plugin.Kind { return plugin.KindMove }

// Initialize connects, optionally recalls the active memory slot, and reads
// the full attribute tree into the settings.
func (m *Mover) Initialize(ctx context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connectLocked(ctx, m.telnet); err != nil {
		return err.Error(), false, err
	}
	g := m.generator

	if m.opts.Plugin.RestoreOnInit {
		if err := g.RestoreState(ctx); err != nil {
			return err.Error(), false, err
		}
	}
	if _, err := m.refreshLocked(ctx); err != nil {
		return err.Error(), false, err
	}
	if _, err := m.readCurrentLocked(ctx); err != nil {
		return err.Error(), false, err
	}

	return m.identify(ctx, g), true, nil
}

// OnParameterChanged applies one actuator setting
func (m *Mover) OnParameterChanged(ctx context.Context, name string, value interface{}) ([]plugin.ParamUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	updates, err := m.applyLocked(ctx, name, value)
	m.audit.LogParameterChange(string(plugin.KindMove), name, value, err)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

func (m *Mover) applyLocked(ctx context.Context, name string, value interface{}) ([]plugin.ParamUpdate, error) {
	switch name {
	case "ip", "port":
		key := "host"
		if name == "port" {
			key = "port"
		}
		if err := m.reconnectLocked(ctx, key, value); err != nil {
			return nil, err
		}
		updates := []plugin.ParamUpdate{
			m.updateLocked(m.telnet.Host, "connection", "ip"),
			m.updateLocked(m.telnet.Port, "connection", "port"),
		}
		refreshed, err := m.refreshLocked(ctx)
		return append(updates, refreshed...), err

	case "epsilon":
		eps, err := toFloat(name, value)
		if err != nil {
			return nil, err
		}
		if eps <= 0 {
			return nil, fmt.Errorf("%w: epsilon must be positive", ErrInvalidParameterValue)
		}
		m.opts.Plugin.Epsilon = eps
		return m.storeLocked(name, eps), nil
	}

	g, err := m.generatorLocked()
	if err != nil {
		return nil, err
	}

	switch name {
	case "slot":
		slot, err := toInt(name, value)
		if err != nil {
			return nil, err
		}
		if err := g.SetSlot(slot); err != nil {
			return nil, err
		}
		return m.storeLocked(name, slot), nil

	case "save", "restore", "reset":
		pushed, err := toBool(name, value)
		if err != nil || !pushed {
			return nil, err
		}
		switch name {
		case "save":
			return nil, g.SaveState(ctx)
		case "restore":
			err = g.RestoreState(ctx)
		default:
			err = g.Reset(ctx)
		}
		if err != nil {
			return nil, err
		}
		return m.refreshLocked(ctx)

	case "channel_label":
		label, err := toString(name, value)
		if err != nil {
			return nil, err
		}
		if err := g.SetChannel(label); err != nil {
			return nil, err
		}
		updates := []plugin.ParamUpdate{m.updateLocked(axisName(g.Channel()), "move_settings", "axis")}
		refreshed, err := m.refreshLocked(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := m.readCurrentLocked(ctx); err != nil {
			return nil, err
		}
		return append(updates, refreshed...), nil

	case "delay", "width":
		ns, err := toFloat(name, value)
		if err != nil {
			return nil, err
		}
		if name == "width" {
			if err := g.SetWidth(ctx, ns/nanosecond); err != nil {
				return nil, err
			}
			return m.storeLocked(name, ns), nil
		}
		if err := g.SetDelay(ctx, ns/nanosecond); err != nil {
			return nil, err
		}
		current, err := m.readCurrentLocked(ctx)
		if err != nil {
			return nil, err
		}
		return m.storeLocked(name, current), nil

	case "period":
		seconds, err := toFloat(name, value)
		if err != nil {
			return nil, err
		}
		if err := g.SetPeriod(ctx, seconds); err != nil {
			return nil, err
		}
		return m.periodUpdatesLocked(ctx, g)

	case "rep_rate":
		hz, err := toFloat(name, value)
		if err != nil {
			return nil, err
		}
		if err := bnc575.RepRateRange.Check("repetition rate", hz); err != nil {
			return nil, err
		}
		if err := g.SetPeriod(ctx, 1/hz); err != nil {
			return nil, err
		}
		return m.periodUpdatesLocked(ctx, g)

	case "channel_gate_mode":
		raw, err := toString(name, value)
		if err != nil {
			return nil, err
		}
		if err := g.Set(ctx, name, raw); err != nil {
			return nil, err
		}
		gate, err := g.GateMode(ctx)
		if err != nil {
			return nil, err
		}
		updates := m.storeLocked(name, raw)
		return append(updates, m.updateLocked(string(gate), "gating", "gate_mode")), nil
	}

	if attr, ok := bnc575.LookupAttribute(name); ok && !attr.ReadOnly() {
		raw, err := toString(name, value)
		if err != nil {
			return nil, err
		}
		if err := g.Set(ctx, name, raw); err != nil {
			return nil, err
		}
		return m.storeLocked(name, value), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
}

// periodUpdatesLocked reads the period back and reports both period and rate
func (m *Mover) periodUpdatesLocked(ctx context.Context, g *bnc575.Generator) ([]plugin.ParamUpdate, error) {
	period, err := g.Period(ctx)
	if err != nil {
		return nil, err
	}
	return []plugin.ParamUpdate{
		m.updateLocked(period, "continuous_mode", "period"),
		m.updateLocked(bnc575.RepRate(period), "continuous_mode", "rep_rate"),
	}, nil
}

// refreshLocked re-reads the attribute tree and merges it into the settings
func (m *Mover) refreshLocked(ctx context.Context) ([]plugin.ParamUpdate, error) {
	snapshot, err := m.generator.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	merged, updates := MergeSettings(m.settings, snapshot)
	m.settings = merged
	return updates, nil
}

func (m *Mover) readCurrentLocked(ctx context.Context) (float64, error) {
	g, err := m.generatorLocked()
	if err != nil {
		return 0, err
	}
	delay, err := g.Delay(ctx)
	if err != nil {
		return 0, err
	}
	m.current = delay * nanosecond
	return m.current, nil
}

func (m *Mover) moveLocked(ctx context.Context, target float64) (float64, error) {
	g, err := m.generatorLocked()
	if err != nil {
		return 0, err
	}
	if err := g.SetDelay(ctx, target/nanosecond); err != nil {
		return 0, err
	}
	current, err := m.readCurrentLocked(ctx)
	if err != nil {
		return 0, err
	}
	m.storeLocked("delay", current)

	if diff := current - target; diff > m.opts.Plugin.Epsilon || diff < -m.opts.Plugin.Epsilon {
		m.logger.Warn("Delay settled outside epsilon",
			zap.Float64("target_ns", target),
			zap.Float64("current_ns", current),
			zap.Float64("epsilon_ns", m.opts.Plugin.Epsilon),
		)
	}
	return current, nil
}

// MoveAbs sets the delay of the active channel to value ns
func (m *Mover) MoveAbs(ctx context.Context, value float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moveLocked(ctx, value)
}

// MoveRel shifts the delay by delta ns from the last known position
func (m *Mover) MoveRel(ctx context.Context, delta float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moveLocked(ctx, m.current+delta)
}

// MoveHome sets the delay to zero
func (m *Mover) MoveHome(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moveLocked(ctx, 0)
}

// Stop reports the current position. Delay changes are applied at once, so
// there is no motion to interrupt.
func (m *Mover) Stop(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.generatorLocked()
	if err != nil {
		return 0, err
	}
	if err := g.Stop(ctx); err != nil {
		return 0, err
	}
	return m.readCurrentLocked(ctx)
}

// CurrentValue reads the delay of the active channel in ns
func (m *Mover) CurrentValue(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readCurrentLocked(ctx)
}

// Poll pushes the current position to the data sink
func (m *Mover) Poll(ctx context.Context) error {
	m.mu.Lock()
	current, err := m.readCurrentLocked(ctx)
	channel := bnc575.Channel(m.opts.Plugin.DefaultChannel)
	if m.generator != nil {
		channel = m.generator.Channel()
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.push([]plugin.Field{{Label: axisName(channel), Value: current}})
	return nil
}

// Axis describes the axis of the active channel
func (m *Mover) Axis() plugin.Axis {
	m.mu.Lock()
	defer m.mu.Unlock()

	channel := bnc575.Channel(m.opts.Plugin.DefaultChannel)
	if m.generator != nil {
		channel = m.generator.Channel()
	}
	return plugin.Axis{Name: axisName(channel), Unit: "ns", Epsilon: m.opts.Plugin.Epsilon}
}
