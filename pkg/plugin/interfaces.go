// pkg/plugin/interfaces.go
package plugin

import "context"

// Plugin is the contract an acquisition host drives. The host initializes the
// plugin, forwards every parameter edit, and polls it for data.
type Plugin interface {
	// Kind identifies the plugin flavour
	Kind() Kind

	// Initialize connects to the instrument. ok is false when the instrument
	// could not be reached; info carries a human readable summary either way.
	Initialize(ctx context.Context) (info string, ok bool, err error)

	// OnParameterChanged applies one edited setting. The returned updates are
	// other settings whose value changed as a consequence.
	OnParameterChanged(ctx context.Context, name string, value interface{}) ([]ParamUpdate, error)

	// Poll acquires once and delivers the result to the DataSink
	Poll(ctx context.Context) error

	// Settings returns the current parameter tree
	Settings() []Param

	Close() error
}

// Mover is a Plugin that positions a single scalar axis
type Mover interface {
	Plugin

	MoveAbs(ctx context.Context, value float64) (float64, error)
	MoveRel(ctx context.Context, delta float64) (float64, error)
	MoveHome(ctx context.Context) (float64, error)
	Stop(ctx context.Context) (float64, error)
	CurrentValue(ctx context.Context) (float64, error)

	Axis() Axis
}

// DataSink receives acquired data. It must not block for long.
type DataSink func(export DataExport)

// BusySink receives instrument communication state changes
type BusySink func(kind Kind, busy bool)
