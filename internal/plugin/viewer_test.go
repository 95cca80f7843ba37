package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bnc-service/internal/driver/bnc575"
	"bnc-service/pkg/plugin"
)

func initializedViewer(t *testing.T, values map[string]string) (*Viewer, *testRig) {
	t.Helper()
	rig := newTestRig(values)
	v, err := NewViewer(rig.options())
	require.NoError(t, err)

	_, ok, err := v.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	t.Cleanup(func() { v.Close() })
	rig.console.Reset()
	return v, rig
}

func TestViewerInitialize(t *testing.T) {
	rig := newTestRig(instrumentValues())
	v, err := NewViewer(rig.options())
	require.NoError(t, err)
	defer v.Close()

	info, ok, err := v.Initialize(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "BNC,575-4,31183,2.4.1 at 192.168.178.146:2001", info)
	assert.Empty(t, rig.console.Writes(), "the viewer does not recall a slot")

	id, ok := plugin.Find(v.Settings(), "connection", "controller_id")
	require.True(t, ok)
	assert.Equal(t, "BNC,575-4,31183,2.4.1", id.Value)
	assert.True(t, id.ReadOnly)
}

func TestViewerInitializeReportsUnreachableInstrument(t *testing.T) {
	rig := newTestRig(nil)
	rig.console.Fail("*IDN?", context.DeadlineExceeded)
	v, err := NewViewer(rig.options())
	require.NoError(t, err)
	defer v.Close()

	info, ok, err := v.Initialize(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEmpty(t, info)
}

func TestViewerSharedSettingsUpdateEveryGroup(t *testing.T) {
	v, rig := initializedViewer(t, instrumentValues())

	updates, err := v.OnParameterChanged(context.Background(), "delay", 1e-6)
	require.NoError(t, err)
	assert.Equal(t, []string{":PULSE1:DELAY 0.000001000"}, rig.console.Writes())

	require.Len(t, updates, 2)
	assert.Equal(t, []string{"continuous_mode", "delay"}, updates[0].Path)
	assert.Equal(t, []string{"trigger_mode", "delay"}, updates[1].Path)

	for _, group := range []string{"continuous_mode", "trigger_mode"} {
		p, ok := plugin.Find(v.Settings(), group, "delay")
		require.True(t, ok)
		assert.Equal(t, 1e-6, p.Value)
	}
}

func TestViewerDispatch(t *testing.T) {
	ctx := context.Background()
	values := instrumentValues()
	values[":PULSE0:GATE:MODE"] = "CHAN"
	v, rig := initializedViewer(t, values)

	tests := []struct {
		name  string
		value interface{}
		want  []string
	}{
		{"label", "run 7", []string{`*LBL "run 7"`}},
		{"state", "OFF", []string{":PULSE1:STATE OFF"}},
		{"channel_mode", "SING", []string{":PULSE1:CMOD SING"}},
		{"period", 0.5, []string{":PULSE0:PER 0.5"}},
		{"width", 2e-8, []string{":PULSE1:WIDT 0.000000020"}},
		{"amplitude", 3.5, []string{":PULSE1:OUTP:AMPL 3.5"}},
		{"trig_mode", "TRIG", []string{":PULSE0:TRIG:MODE TRIG"}},
		{"trigger_threshold", 0.8, []string{":PULSE0:TRIG:LEV 0.8"}},
		{"rising", false, []string{":PULSE0:TRIG:EDGE FALL"}},
		{"channel_gate_mode", "PULS", []string{":PULSE1:CGATE PULS"}},
		{"gate_threshold", 4.0, []string{":PULSE0:GATE:LEV 4"}},
		{"high", false, []string{":PULSE1:CLOGIC LOW"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig.console.Reset()
			_, err := v.OnParameterChanged(ctx, tt.name, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rig.console.Writes())
		})
	}

	rig.console.Reset()
	_, err := v.OnParameterChanged(ctx, "rising", "sideways")
	assert.ErrorIs(t, err, ErrInvalidParameterValue)
	_, err = v.OnParameterChanged(ctx, "trigger_threshold", 99.0)
	assert.ErrorIs(t, err, bnc575.ErrInvalidValue)
	_, err = v.OnParameterChanged(ctx, "global_mode", "NORM")
	assert.ErrorIs(t, err, ErrUnknownParameter)
	assert.Empty(t, rig.console.Writes())
}

func TestViewerChannelSelection(t *testing.T) {
	ctx := context.Background()
	v, rig := initializedViewer(t, instrumentValues())

	updates, err := v.OnParameterChanged(ctx, "channel_label", "d")
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "D", updates[0].Value)

	_, err = v.OnParameterChanged(ctx, "state", "ON")
	require.NoError(t, err)
	assert.Equal(t, []string{":PULSE4:STATE ON"}, rig.console.Writes())
}

func TestViewerPoll(t *testing.T) {
	v, rig := initializedViewer(t, instrumentValues())

	require.NoError(t, v.Poll(context.Background()))
	assert.Empty(t, rig.console.Writes(), "polling only queries")

	exports := rig.Exports()
	require.Len(t, exports, 1)
	export := exports[0]
	assert.Equal(t, "BNC575", export.Name)
	assert.Equal(t, plugin.KindViewer, export.Kind)
	assert.False(t, export.Timestamp.IsZero())
	require.NotEmpty(t, export.Fields)
	assert.Equal(t, plugin.Field{Label: "Channel", Value: "A"}, export.Fields[0])
	assert.Equal(t, plugin.Field{Label: "Continuous Mode", Value: "Yes"}, export.Fields[2])
}

func TestViewerPollBeforeInitialize(t *testing.T) {
	v, err := NewViewer(newTestRig(nil).options())
	require.NoError(t, err)
	assert.ErrorIs(t, v.Poll(context.Background()), ErrNotInitialized)
}
