// internal/driver/bnc575/types.go
package bnc575

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrInvalidValue    = errors.New("invalid value")
	ErrInvalidChannel  = errors.New("invalid channel")
	ErrTTLMode         = errors.New("in TTL mode, switch to ADJ mode before setting amplitude")
	ErrUnexpectedReply = errors.New("unexpected reply from device")
	ErrCommandRejected = errors.New("command rejected by device")
)

// Channel is an output label
type Channel string

const (
	ChannelA Channel = "A"
	ChannelB Channel = "B"
	ChannelC Channel = "C"
	ChannelD Channel = "D"
)

// Channels lists the outputs in index order
var Channels = []Channel{ChannelA, ChannelB, ChannelC, ChannelD}

// ChannelIndex maps A..D to 1..4
func ChannelIndex(label string) (int, error) {
	switch Channel(strings.ToUpper(strings.TrimSpace(label))) {
	case ChannelA:
		return 1, nil
	case ChannelB:
		return 2, nil
	case ChannelC:
		return 3, nil
	case ChannelD:
		return 4, nil
	}
	return 0, fmt.Errorf("%w: %q, must be one of %v", ErrInvalidChannel, label, Channels)
}

// ParseChannel normalizes a channel label
func ParseChannel(label string) (Channel, error) {
	idx, err := ChannelIndex(label)
	if err != nil {
		return "", err
	}
	return Channels[idx-1], nil
}

// State is ON or OFF. The device reports it as 1 or 0.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// ParseState accepts ON/OFF in any case and 1/0
func ParseState(s string) (State, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1":
		return StateOn, nil
	case "0":
		return StateOff, nil
	}
	return parseToken("state", s, StateOn, StateOff)
}

func stateFromReply(reply string) State {
	if reply == "1" {
		return StateOn
	}
	return StateOff
}

// Mode is the system or channel pulse mode
type Mode string

const (
	ModeNormal    Mode = "NORM"
	ModeSingle    Mode = "SING"
	ModeBurst     Mode = "BURS"
	ModeDutyCycle Mode = "DCYC"
)

var Modes = []Mode{ModeNormal, ModeSingle, ModeBurst, ModeDutyCycle}

func ParseMode(s string) (Mode, error) {
	return parseToken("mode", s, Modes...)
}

// TriggerMode selects internal rate or external trigger
type TriggerMode string

const (
	TriggerDisabled  TriggerMode = "DIS"
	TriggerTriggered TriggerMode = "TRIG"
)

var TriggerModes = []TriggerMode{TriggerDisabled, TriggerTriggered}

func ParseTriggerMode(s string) (TriggerMode, error) {
	return parseToken("trigger mode", s, TriggerModes...)
}

// Edge is the active trigger edge
type Edge string

const (
	EdgeRising  Edge = "RIS"
	EdgeFalling Edge = "FALL"
)

// ParseEdge accepts the device tokens and the long RISING/FALLING forms
func ParseEdge(s string) (Edge, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RISING":
		return EdgeRising, nil
	case "FALLING":
		return EdgeFalling, nil
	}
	return parseToken("trigger edge", s, EdgeRising, EdgeFalling)
}

// Display returns the long form shown to operators
func (e Edge) Display() string {
	switch e {
	case EdgeRising:
		return "RISING"
	case EdgeFalling:
		return "FALLING"
	}
	return string(e)
}

// GateMode is the global gate function
type GateMode string

const (
	GateDisabled GateMode = "DIS"
	GatePulse    GateMode = "PULS"
	GateOutput   GateMode = "OUTP"
	GateChannel  GateMode = "CHAN"
)

var GateModes = []GateMode{GateDisabled, GatePulse, GateOutput, GateChannel}

func ParseGateMode(s string) (GateMode, error) {
	return parseToken("gate mode", s, GateModes...)
}

// ChannelGateMode is the per-channel gate function, valid when the global mode is CHAN
type ChannelGateMode string

const (
	ChannelGateDisabled ChannelGateMode = "DIS"
	ChannelGatePulse    ChannelGateMode = "PULS"
	ChannelGateOutput   ChannelGateMode = "OUTP"
)

var ChannelGateModes = []ChannelGateMode{ChannelGateDisabled, ChannelGatePulse, ChannelGateOutput}

func ParseChannelGateMode(s string) (ChannelGateMode, error) {
	return parseToken("channel gate mode", s, ChannelGateModes...)
}

// Logic is the active gate level
type Logic string

const (
	LogicHigh Logic = "HIGH"
	LogicLow  Logic = "LOW"
)

var Logics = []Logic{LogicHigh, LogicLow}

func ParseLogic(s string) (Logic, error) {
	return parseToken("gate logic", s, Logics...)
}

// AmplitudeMode is adjustable or TTL output
type AmplitudeMode string

const (
	AmplitudeAdjustable AmplitudeMode = "ADJ"
	AmplitudeTTL        AmplitudeMode = "TTL"
)

var AmplitudeModes = []AmplitudeMode{AmplitudeAdjustable, AmplitudeTTL}

func ParseAmplitudeMode(s string) (AmplitudeMode, error) {
	return parseToken("amplitude mode", s, AmplitudeModes...)
}

// Polarity of a channel output
type Polarity string

const (
	PolarityNormal     Polarity = "NORM"
	PolarityComplement Polarity = "COMP"
	PolarityInverted   Polarity = "INV"
)

var Polarities = []Polarity{PolarityNormal, PolarityComplement, PolarityInverted}

func ParsePolarity(s string) (Polarity, error) {
	return parseToken("polarity", s, Polarities...)
}

// parseToken upper-cases s and checks membership in legal
func parseToken[T ~string](kind, s string, legal ...T) (T, error) {
	v := T(strings.ToUpper(strings.TrimSpace(s)))
	if slices.Contains(legal, v) {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s %q, must be one of %v", ErrInvalidValue, kind, s, legal)
}

// checkToken verifies a typed value before it is written
func checkToken[T ~string](kind string, v T, legal ...T) error {
	if slices.Contains(legal, v) {
		return nil
	}
	return fmt.Errorf("%w: %s %q, must be one of %v", ErrInvalidValue, kind, string(v), legal)
}

// Range is an inclusive numeric limit in device units
type Range struct {
	Min float64
	Max float64
}

// Check returns ErrInvalidValue when v lies outside the range
func (r Range) Check(kind string, v float64) error {
	if v < r.Min || v > r.Max {
		return fmt.Errorf("%w: %s %g out of range [%g, %g]", ErrInvalidValue, kind, v, r.Min, r.Max)
	}
	return nil
}

// Device limits in SI units
var (
	DelayRange     = Range{Min: 0, Max: 999}
	WidthRange     = Range{Min: 10e-9, Max: 999}
	AmplitudeRange = Range{Min: 2.0, Max: 20.0}
	PeriodRange    = Range{Min: 100e-9, Max: 5000}
	RepRateRange   = Range{Min: 2e-4, Max: 10e6}
	ThresholdRange = Range{Min: 0.2, Max: 15.0}
)

const (
	MinSlot = 1
	MaxSlot = 12
)
