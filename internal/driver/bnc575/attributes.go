// internal/driver/bnc575/attributes.go
package bnc575

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

// Attribute binds a named setting to its getter and setter. Values are in
// SI units and device tokens.
type Attribute struct {
	Name        string
	Description string
	Get         func(ctx context.Context, g *Generator) (interface{}, error)
	Set         func(ctx context.Context, g *Generator, raw string) error
}

// ReadOnly reports whether the attribute cannot be written
func (a Attribute) ReadOnly() bool {
	return a.Set == nil
}

var attributes = map[string]Attribute{
	"idn": {
		Name:        "idn",
		Description: "identification string",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.IDN(ctx) },
	},
	"label": {
		Name:        "label",
		Description: "configuration label",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.Label(ctx) },
		Set:         func(ctx context.Context, g *Generator, raw string) error { return g.SetLabel(ctx, raw) },
	},
	"global_state": {
		Name:        "global_state",
		Description: "instrument output state (ON|OFF)",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.GlobalState(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := ParseState(raw)
			if err != nil {
				return err
			}
			return g.SetGlobalState(ctx, v)
		},
	},
	"global_mode": {
		Name:        "global_mode",
		Description: "system pulse mode (NORM|SING|BURS|DCYC)",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.GlobalMode(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := ParseMode(raw)
			if err != nil {
				return err
			}
			return g.SetGlobalMode(ctx, v)
		},
	},
	"period": {
		Name:        "period",
		Description: "system period in seconds",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.Period(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := parseFloat("period", raw)
			if err != nil {
				return err
			}
			return g.SetPeriod(ctx, v)
		},
	},
	"rep_rate": {
		Name:        "rep_rate",
		Description: "system repetition rate in hertz",
		Get: func(ctx context.Context, g *Generator) (interface{}, error) {
			p, err := g.Period(ctx)
			if err != nil {
				return nil, err
			}
			return RepRate(p), nil
		},
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := parseFloat("rep_rate", raw)
			if err != nil {
				return err
			}
			if err := RepRateRange.Check("repetition rate", v); err != nil {
				return err
			}
			return g.SetPeriod(ctx, 1/v)
		},
	},
	"trig_mode": {
		Name:        "trig_mode",
		Description: "trigger mode (DIS|TRIG)",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.TriggerMode(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := ParseTriggerMode(raw)
			if err != nil {
				return err
			}
			return g.SetTriggerMode(ctx, v)
		},
	},
	"trig_thresh": {
		Name:        "trig_thresh",
		Description: "trigger threshold in volts",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.TriggerThreshold(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := parseFloat("trig_thresh", raw)
			if err != nil {
				return err
			}
			return g.SetTriggerThreshold(ctx, v)
		},
	},
	"trig_edge": {
		Name:        "trig_edge",
		Description: "trigger edge (RIS|FALL)",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.TriggerEdge(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := ParseEdge(raw)
			if err != nil {
				return err
			}
			return g.SetTriggerEdge(ctx, v)
		},
	},
	"gate_mode": {
		Name:        "gate_mode",
		Description: "global gate mode (DIS|PULS|OUTP|CHAN)",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.GateMode(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := ParseGateMode(raw)
			if err != nil {
				return err
			}
			return g.SetGateMode(ctx, v)
		},
	},
	"gate_thresh": {
		Name:        "gate_thresh",
		Description: "gate threshold in volts",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.GateThreshold(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := parseFloat("gate_thresh", raw)
			if err != nil {
				return err
			}
			return g.SetGateThreshold(ctx, v)
		},
	},
	"gate_logic": {
		Name:        "gate_logic",
		Description: "gate logic (HIGH|LOW)",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.GateLogic(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := ParseLogic(raw)
			if err != nil {
				return err
			}
			return g.SetGateLogic(ctx, v)
		},
	},
	"channel_gate_mode": {
		Name:        "channel_gate_mode",
		Description: "channel gate mode (DIS|PULS|OUTP)",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.ChannelGateMode(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := ParseChannelGateMode(raw)
			if err != nil {
				return err
			}
			return g.SetChannelGateMode(ctx, v)
		},
	},
	"channel_mode": {
		Name:        "channel_mode",
		Description: "channel pulse mode (NORM|SING|BURS|DCYC)",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.ChannelMode(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := ParseMode(raw)
			if err != nil {
				return err
			}
			return g.SetChannelMode(ctx, v)
		},
	},
	"channel_state": {
		Name:        "channel_state",
		Description: "channel output state (ON|OFF)",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.ChannelState(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := ParseState(raw)
			if err != nil {
				return err
			}
			return g.SetChannelState(ctx, v)
		},
	},
	"delay": {
		Name:        "delay",
		Description: "channel delay in seconds",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.Delay(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := parseFloat("delay", raw)
			if err != nil {
				return err
			}
			return g.SetDelay(ctx, v)
		},
	},
	"width": {
		Name:        "width",
		Description: "channel pulse width in seconds",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.Width(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := parseFloat("width", raw)
			if err != nil {
				return err
			}
			return g.SetWidth(ctx, v)
		},
	},
	"amplitude_mode": {
		Name:        "amplitude_mode",
		Description: "channel amplitude mode (ADJ|TTL)",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.AmplitudeMode(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := ParseAmplitudeMode(raw)
			if err != nil {
				return err
			}
			return g.SetAmplitudeMode(ctx, v)
		},
	},
	"amplitude": {
		Name:        "amplitude",
		Description: "channel amplitude in volts",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.Amplitude(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := parseFloat("amplitude", raw)
			if err != nil {
				return err
			}
			return g.SetAmplitude(ctx, v)
		},
	},
	"polarity": {
		Name:        "polarity",
		Description: "channel polarity (NORM|COMP|INV)",
		Get:         func(ctx context.Context, g *Generator) (interface{}, error) { return g.Polarity(ctx) },
		Set: func(ctx context.Context, g *Generator, raw string) error {
			v, err := ParsePolarity(raw)
			if err != nil {
				return err
			}
			return g.SetPolarity(ctx, v)
		},
	},
}

// LookupAttribute returns the attribute registered under name
func LookupAttribute(name string) (Attribute, bool) {
	a, ok := attributes[name]
	return a, ok
}

// AttributeNames lists every attribute name in sorted order
func AttributeNames() []string {
	names := make([]string, 0, len(attributes))
	for name := range attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get reads an attribute by name
func (g *Generator) Get(ctx context.Context, name string) (interface{}, error) {
	a, ok := attributes[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown attribute %q", ErrInvalidValue, name)
	}
	return a.Get(ctx, g)
}

// Set parses raw and writes an attribute by name
func (g *Generator) Set(ctx context.Context, name, raw string) error {
	a, ok := attributes[name]
	if !ok {
		return fmt.Errorf("%w: unknown attribute %q", ErrInvalidValue, name)
	}
	if a.ReadOnly() {
		return fmt.Errorf("%w: attribute %q is read-only", ErrInvalidValue, name)
	}
	return a.Set(ctx, g, raw)
}

// RepRate converts a period to a repetition rate, zero for a zero period
func RepRate(period float64) float64 {
	if period == 0 {
		return 0
	}
	return 1 / period
}

func parseFloat(name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrInvalidValue, name, raw)
	}
	return v, nil
}
