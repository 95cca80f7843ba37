// internal/driver/bnc575/snapshot.go
package bnc575

import (
	"context"
	"fmt"

	"bnc-service/pkg/plugin"
)

const nanosecond = 1e9

// Snapshot reads every attribute of the active channel and returns the
// parameter tree a host displays. Delay and width are reported in ns.
func (g *Generator) Snapshot(ctx context.Context) ([]plugin.Param, error) {
	s := &snapshotReader{ctx: ctx}

	idn := s.str(g.IDN)
	label := s.str(g.Label)
	globalState := readTok(s, g.GlobalState)
	globalMode := readTok(s, g.GlobalMode)
	channelMode := readTok(s, g.ChannelMode)
	channelState := readTok(s, g.ChannelState)
	width := s.float(g.Width)
	delay := s.float(g.Delay)
	ampMode := readTok(s, g.AmplitudeMode)
	amplitude := s.float(g.Amplitude)
	polarity := readTok(s, g.Polarity)
	period := s.float(g.Period)
	trigMode := readTok(s, g.TriggerMode)
	trigThresh := s.float(g.TriggerThreshold)
	trigEdge := Edge(readTok(s, g.TriggerEdge)).Display()
	gateMode := GateMode(readTok(s, g.GateMode))
	channelGate := s.str(func(ctx context.Context) (string, error) {
		v, err := g.channelGateModeFor(ctx, gateMode)
		return string(v), err
	})
	gateThresh := s.float(g.GateThreshold)
	gateLogic := s.str(func(ctx context.Context) (string, error) {
		v, err := g.gateLogicFor(ctx, gateMode)
		return string(v), err
	})

	if s.err != nil {
		return nil, fmt.Errorf("snapshot failed: %w", s.err)
	}

	return []plugin.Param{
		{
			Title: "Connection", Name: "connection", Type: plugin.TypeGroup, Children: []plugin.Param{
				{Title: "Controller", Name: "id", Type: plugin.TypeString, Value: idn, ReadOnly: true},
				{Title: "IP", Name: "ip", Type: plugin.TypeString, Value: g.Host(), Default: g.Host()},
				{Title: "Port", Name: "port", Type: plugin.TypeInt, Value: g.Port(), Default: 2001},
			},
		},
		{
			Title: "Device Configuration State", Name: "config", Type: plugin.TypeGroup, Children: []plugin.Param{
				{Title: "Configuration Label", Name: "label", Type: plugin.TypeString, Value: label},
				{Title: "Local Memory Slot", Name: "slot", Type: plugin.TypeList, Value: g.Slot(), Limits: slotLimits()},
				{Title: "Save Current Configuration?", Name: "save", Type: plugin.TypeBoolPush, Label: "Save", Value: false},
				{Title: "Restore Previous Configuration?", Name: "restore", Type: plugin.TypeBoolPush, Label: "Restore", Value: false},
				{Title: "Reset Device?", Name: "reset", Type: plugin.TypeBoolPush, Label: "Reset", Value: false},
			},
		},
		{
			Title: "Device Output State", Name: "output", Type: plugin.TypeGroup, Children: []plugin.Param{
				{Title: "Global State", Name: "global_state", Type: plugin.TypeLEDPush, Value: globalState, Default: string(StateOff), Limits: limits(StateOn, StateOff)},
				{Title: "Global Mode", Name: "global_mode", Type: plugin.TypeList, Value: globalMode, Limits: limits(Modes...)},
				{Title: "Channel", Name: "channel_label", Type: plugin.TypeList, Value: string(g.Channel()), Limits: limits(Channels...)},
				{Title: "Channel Mode", Name: "channel_mode", Type: plugin.TypeList, Value: channelMode, Limits: limits(Modes...)},
				{Title: "Channel State", Name: "channel_state", Type: plugin.TypeLEDPush, Value: channelState, Default: string(StateOff), Limits: limits(StateOn, StateOff)},
				{Title: "Width (ns)", Name: "width", Type: plugin.TypeFloat, Unit: "ns", Value: width * nanosecond, Default: 10.0,
					Min: plugin.Float(WidthRange.Min * nanosecond), Max: plugin.Float(WidthRange.Max * nanosecond)},
				{Title: "Delay (ns)", Name: "delay", Type: plugin.TypeFloat, Unit: "ns", Value: delay * nanosecond, Default: 0.0,
					Min: plugin.Float(DelayRange.Min * nanosecond), Max: plugin.Float(DelayRange.Max * nanosecond)},
			},
		},
		{
			Title: "Amplitude Profile", Name: "amp", Type: plugin.TypeGroup, Children: []plugin.Param{
				{Title: "Amplitude Mode", Name: "amplitude_mode", Type: plugin.TypeList, Value: ampMode, Limits: limits(AmplitudeModes...)},
				{Title: "Amplitude (V)", Name: "amplitude", Type: plugin.TypeFloat, Unit: "V", Value: amplitude, Default: 2.0,
					Min: plugin.Float(AmplitudeRange.Min), Max: plugin.Float(AmplitudeRange.Max)},
				{Title: "Polarity", Name: "polarity", Type: plugin.TypeList, Value: polarity, Limits: limits(Polarities...)},
			},
		},
		{
			Title: "Continuous Mode", Name: "continuous_mode", Type: plugin.TypeGroup, Children: []plugin.Param{
				{Title: "Period (s)", Name: "period", Type: plugin.TypeFloat, Unit: "s", Value: period, Default: 1e-3,
					Min: plugin.Float(PeriodRange.Min), Max: plugin.Float(PeriodRange.Max)},
				{Title: "Repetition Rate (Hz)", Name: "rep_rate", Type: plugin.TypeFloat, Unit: "Hz", Value: RepRate(period), Default: 1e3,
					Min: plugin.Float(RepRateRange.Min), Max: plugin.Float(RepRateRange.Max)},
			},
		},
		{
			Title: "Trigger Mode", Name: "trigger_mode", Type: plugin.TypeGroup, Children: []plugin.Param{
				{Title: "Trigger Mode", Name: "trig_mode", Type: plugin.TypeList, Value: trigMode, Limits: limits(TriggerModes...)},
				{Title: "Trigger Threshold (V)", Name: "trig_thresh", Type: plugin.TypeFloat, Unit: "V", Value: trigThresh, Default: 2.5,
					Min: plugin.Float(ThresholdRange.Min), Max: plugin.Float(ThresholdRange.Max)},
				{Title: "Trigger Edge", Name: "trig_edge", Type: plugin.TypeList, Value: trigEdge, Limits: []interface{}{"RISING", "FALLING"}},
			},
		},
		{
			Title: "Gating", Name: "gating", Type: plugin.TypeGroup, Children: []plugin.Param{
				{Title: "Global Gate Mode", Name: "gate_mode", Type: plugin.TypeList, Value: string(gateMode), Limits: limits(GateModes...)},
				{Title: "Channel Gate Mode", Name: "channel_gate_mode", Type: plugin.TypeList, Value: channelGate, Limits: limits(ChannelGateModes...)},
				{Title: "Gate Threshold (V)", Name: "gate_thresh", Type: plugin.TypeFloat, Unit: "V", Value: gateThresh, Default: 2.5,
					Min: plugin.Float(ThresholdRange.Min), Max: plugin.Float(ThresholdRange.Max)},
				{Title: "Gate Logic", Name: "gate_logic", Type: plugin.TypeList, Value: gateLogic, Limits: limits(Logics...)},
			},
		},
	}, nil
}

// Readout returns the flat 0D view of the active channel. Fields depend on
// the channel mode and the global gate mode.
func (g *Generator) Readout(ctx context.Context) ([]plugin.Field, error) {
	out := []plugin.Field{{Label: "Channel", Value: string(g.Channel())}}
	s := &snapshotReader{ctx: ctx}
	add := func(label string, value interface{}) {
		if s.err == nil {
			out = append(out, plugin.Field{Label: label, Value: value})
		}
	}

	mode := Mode(readTok(s, g.ChannelMode))
	switch mode {
	case ModeNormal:
		add("State", readTok(s, g.ChannelState))
		add("Continuous Mode", "Yes")
		add("Amplitude (V)", s.float(g.Amplitude))
		add("Period (s)", s.float(g.Period))
		add("Pulse Width (s)", s.float(g.Width))
		add("Pulse Delay (s)", s.float(g.Delay))
	case ModeSingle:
		add("State", readTok(s, g.ChannelState))
		add("Trigger Mode", s.str(g.triggerModeDisplay))
		add("Trigger Threshold", s.float(g.TriggerThreshold))
		add("Trigger Edge", s.str(func(ctx context.Context) (string, error) {
			edge, err := g.TriggerEdge(ctx)
			if err != nil {
				return "", err
			}
			if edge == EdgeRising {
				return "Triggered from Rising Edge", nil
			}
			return "Triggered from Falling Edge", nil
		}))
		add("Amplitude (V)", s.float(g.Amplitude))
		add("Pulse Width (s)", s.float(g.Width))
		add("Pulse Delay (s)", s.float(g.Delay))
	}

	gateMode := GateMode(readTok(s, g.GateMode))
	logicDisplay := func(ctx context.Context) (string, error) {
		logic, err := g.gateLogicFor(ctx, gateMode)
		if logic == LogicHigh {
			return "Active High", err
		}
		return "Active Low", err
	}
	switch gateMode {
	case GateDisabled:
		add("Gating Active", "No")
		add("Gate Threshold (V)", s.float(g.GateThreshold))
		add("Gate Logic", s.str(logicDisplay))
	case GateChannel:
		add("Gating Active", "Yes")
		add("Channel Gate Mode", s.str(func(ctx context.Context) (string, error) {
			v, err := g.channelGateModeFor(ctx, gateMode)
			return string(v), err
		}))
		add("Gate Threshold (V)", s.float(g.GateThreshold))
		add("Gate Logic", s.str(logicDisplay))
	case GatePulse, GateOutput:
		add("Gating Active", "Yes")
		add("Gate Mode", string(gateMode))
		add("Gate Threshold (V)", s.float(g.GateThreshold))
		add("Gate Logic", s.str(logicDisplay))
	}

	if s.err != nil {
		return nil, fmt.Errorf("readout failed: %w", s.err)
	}
	return out, nil
}

// triggerModeDisplay maps TRIG to Yes and DIS to No
func (g *Generator) triggerModeDisplay(ctx context.Context) (string, error) {
	mode, err := g.TriggerMode(ctx)
	if err != nil {
		return "", err
	}
	switch mode {
	case TriggerTriggered:
		return "Yes", nil
	case TriggerDisabled:
		return "No", nil
	}
	return "", fmt.Errorf("%w: trigger mode %q", ErrUnexpectedReply, mode)
}

// snapshotReader runs getters until the first error and then short-circuits
type snapshotReader struct {
	ctx context.Context
	err error
}

func (s *snapshotReader) str(get func(context.Context) (string, error)) string {
	if s.err != nil {
		return ""
	}
	v, err := get(s.ctx)
	s.err = err
	return v
}

func (s *snapshotReader) float(get func(context.Context) (float64, error)) float64 {
	if s.err != nil {
		return 0
	}
	v, err := get(s.ctx)
	s.err = err
	return v
}

// readTok reads a token attribute as a plain string
func readTok[T ~string](s *snapshotReader, get func(context.Context) (T, error)) string {
	if s.err != nil {
		return ""
	}
	v, err := get(s.ctx)
	s.err = err
	return string(v)
}

func limits[T ~string](values ...T) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func slotLimits() []interface{} {
	out := make([]interface{}, 0, MaxSlot-MinSlot+1)
	for i := MinSlot; i <= MaxSlot; i++ {
		out = append(out, i)
	}
	return out
}
