// internal/plugin/viewer.go
package plugin

import (
	"context"
	"fmt"

	"bnc-service/internal/driver/bnc575"
	"bnc-service/pkg/plugin"
)

// Viewer is the 0D detector. Each poll pushes the readout of the active channel.
type Viewer struct {
	*session
}

var _ plugin.Plugin = (*Viewer)(nil)

// NewViewer creates an unconnected viewer
func NewViewer(opts Options) (*Viewer, error) {
	s, err := newSession(plugin.KindViewer, opts, nil)
	if err != nil {
		return nil, err
	}
	v := &Viewer{session: s}
	v.settings = viewerSettings(v.opts)
	return v, nil
}

// viewerSettings is the fixed viewer tree. Times are in seconds.
func viewerSettings(opts Options) []plugin.Param {
	delay := func() plugin.Param {
		return plugin.Param{Title: "Pulse Delay (s)", Name: "delay", Type: plugin.TypeFloat, Unit: "s", Value: 0.0, Default: 0.0,
			Min: plugin.Float(bnc575.DelayRange.Min), Max: plugin.Float(bnc575.DelayRange.Max)}
	}
	width := func() plugin.Param {
		return plugin.Param{Title: "Pulse Width (s)", Name: "width", Type: plugin.TypeFloat, Unit: "s", Value: 10e-9, Default: 10e-9,
			Min: plugin.Float(bnc575.WidthRange.Min), Max: plugin.Float(bnc575.WidthRange.Max)}
	}
	amplitude := func() plugin.Param {
		return plugin.Param{Title: "Pulse Amplitude (V)", Name: "amplitude", Type: plugin.TypeFloat, Unit: "V", Value: 2.0, Default: 2.0,
			Min: plugin.Float(bnc575.AmplitudeRange.Min), Max: plugin.Float(bnc575.AmplitudeRange.Max)}
	}
	channelMode := func(mode bnc575.Mode) plugin.Param {
		return plugin.Param{Title: "Channel Mode", Name: "channel_mode", Type: plugin.TypeList, Value: string(mode), Limits: limitsOf(bnc575.Modes)}
	}

	return []plugin.Param{
		{
			Title: "Connection", Name: "connection", Type: plugin.TypeGroup, Children: []plugin.Param{
				{Title: "Controller", Name: "controller_id", Type: plugin.TypeString, Value: "", ReadOnly: true},
				{Title: "IP", Name: "ip", Type: plugin.TypeString, Value: opts.Telnet.Host, Default: opts.Telnet.Host},
				{Title: "Port", Name: "port", Type: plugin.TypeInt, Value: opts.Telnet.Port, Default: opts.Telnet.Port},
			},
		},
		{
			Title: "Configuration Label", Name: "config", Type: plugin.TypeGroup, Children: []plugin.Param{
				{Title: "Label", Name: "label", Type: plugin.TypeString, Value: ""},
			},
		},
		{Title: "Channel Label", Name: "channel_label", Type: plugin.TypeList, Value: opts.Plugin.DefaultChannel, Default: string(bnc575.ChannelA), Limits: limitsOf(bnc575.Channels)},
		{Title: "Channel State", Name: "state", Type: plugin.TypeList, Value: string(bnc575.StateOff), Limits: limitsOf([]bnc575.State{bnc575.StateOn, bnc575.StateOff})},
		{
			Title: "Continuous Mode", Name: "continuous_mode", Type: plugin.TypeGroup, Children: []plugin.Param{
				channelMode(bnc575.ModeNormal),
				{Title: "Pulse Period (s)", Name: "period", Type: plugin.TypeFloat, Unit: "s", Value: 1e-3, Default: 1e-3,
					Min: plugin.Float(bnc575.PeriodRange.Min), Max: plugin.Float(bnc575.PeriodRange.Max)},
				delay(),
				width(),
				amplitude(),
			},
		},
		{
			Title: "Trigger Mode", Name: "trigger_mode", Type: plugin.TypeGroup, Children: []plugin.Param{
				channelMode(bnc575.ModeSingle),
				{Title: "Trigger Mode", Name: "trig_mode", Type: plugin.TypeList, Value: string(bnc575.TriggerDisabled), Limits: limitsOf(bnc575.TriggerModes)},
				delay(),
				width(),
				amplitude(),
				{Title: "Trigger Threshold (V)", Name: "trigger_threshold", Type: plugin.TypeFloat, Unit: "V", Value: 2.5, Default: 2.5,
					Min: plugin.Float(bnc575.ThresholdRange.Min), Max: plugin.Float(bnc575.ThresholdRange.Max)},
				{Title: "Trigger on Rising Edge", Name: "rising", Type: plugin.TypeBool, Value: true},
			},
		},
		{
			Title: "Gate Function", Name: "gating", Type: plugin.TypeGroup, Children: []plugin.Param{
				channelMode(bnc575.ModeSingle),
				{Title: "Channel Gate Mode", Name: "channel_gate_mode", Type: plugin.TypeList, Value: string(bnc575.ChannelGateDisabled), Limits: limitsOf(bnc575.ChannelGateModes)},
				{Title: "Gate Threshold (V)", Name: "gate_threshold", Type: plugin.TypeFloat, Unit: "V", Value: 2.5, Default: 2.5,
					Min: plugin.Float(bnc575.ThresholdRange.Min), Max: plugin.Float(bnc575.ThresholdRange.Max)},
				{Title: "Gate Active High", Name: "high", Type: plugin.TypeBool, Value: true},
			},
		},
	}
}

func limitsOf[T ~string](values []T) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// Kind implements plugin.Plugin
func (v *Viewer) Kind() plugin.Kind { return plugin.KindViewer }

// Initialize connects and records the controller identification
func (v *Viewer) Initialize(ctx context.Context) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.connectLocked(ctx, v.telnet); err != nil {
		return err.Error(), false, err
	}
	idn, err := v.generator.IDN(ctx)
	if err != nil {
		return err.Error(), false, err
	}
	v.updateLocked(idn, "connection", "controller_id")

	return fmt.Sprintf("%s at %s", idn, v.telnet.Address()), true, nil
}

// OnParameterChanged applies one viewer setting. Settings that appear in
// more than one group are updated everywhere.
func (v *Viewer) OnParameterChanged(ctx context.Context, name string, value interface{}) ([]plugin.ParamUpdate, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	updates, err := v.applyLocked(ctx, name, value)
	v.audit.LogParameterChange(string(plugin.KindViewer), name, value, err)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

func (v *Viewer) applyLocked(ctx context.Context, name string, value interface{}) ([]plugin.ParamUpdate, error) {
	if name == "ip" || name == "port" {
		key := "host"
		if name == "port" {
			key = "port"
		}
		if err := v.reconnectLocked(ctx, key, value); err != nil {
			return nil, err
		}
		return []plugin.ParamUpdate{
			v.updateLocked(v.telnet.Host, "connection", "ip"),
			v.updateLocked(v.telnet.Port, "connection", "port"),
		}, nil
	}

	g, err := v.generatorLocked()
	if err != nil {
		return nil, err
	}

	switch name {
	case "channel_label":
		label, err := toString(name, value)
		if err != nil {
			return nil, err
		}
		if err := g.SetChannel(label); err != nil {
			return nil, err
		}
		return v.storeLocked(name, string(g.Channel())), nil

	case "label":
		label, err := toString(name, value)
		if err != nil {
			return nil, err
		}
		err = g.SetLabel(ctx, label)
		return v.stored(name, label, err)

	case "state":
		raw, err := toString(name, value)
		if err != nil {
			return nil, err
		}
		return v.stored(name, value, g.Set(ctx, "channel_state", raw))

	case "channel_mode", "trig_mode", "channel_gate_mode":
		raw, err := toString(name, value)
		if err != nil {
			return nil, err
		}
		return v.stored(name, value, g.Set(ctx, name, raw))

	case "period", "delay", "width", "amplitude", "trigger_threshold", "gate_threshold":
		f, err := toFloat(name, value)
		if err != nil {
			return nil, err
		}
		switch name {
		case "period":
			err = g.SetPeriod(ctx, f)
		case "delay":
			err = g.SetDelay(ctx, f)
		case "width":
			err = g.SetWidth(ctx, f)
		case "amplitude":
			err = g.SetAmplitude(ctx, f)
		case "trigger_threshold":
			err = g.SetTriggerThreshold(ctx, f)
		default:
			err = g.SetGateThreshold(ctx, f)
		}
		return v.stored(name, f, err)

	case "rising":
		rising, err := toBool(name, value)
		if err != nil {
			return nil, err
		}
		edge := bnc575.EdgeFalling
		if rising {
			edge = bnc575.EdgeRising
		}
		return v.stored(name, rising, g.SetTriggerEdge(ctx, edge))

	case "high":
		high, err := toBool(name, value)
		if err != nil {
			return nil, err
		}
		logic := bnc575.LogicLow
		if high {
			logic = bnc575.LogicHigh
		}
		return v.stored(name, high, g.SetGateLogic(ctx, logic))
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
}

func (v *Viewer) stored(name string, value interface{}, err error) ([]plugin.ParamUpdate, error) {
	if err != nil {
		return nil, err
	}
	return v.storeLocked(name, value), nil
}

// Poll reads the readout of the active channel and pushes it to the data sink
func (v *Viewer) Poll(ctx context.Context) error {
	v.mu.Lock()
	g, err := v.generatorLocked()
	if err != nil {
		v.mu.Unlock()
		return err
	}
	fields, err := g.Readout(ctx)
	v.mu.Unlock()
	if err != nil {
		return err
	}

	v.push(fields)
	return nil
}
