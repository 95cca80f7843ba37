package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bnc-service/internal/driver/bnc575"
	"bnc-service/pkg/plugin"
)

func initializedMover(t *testing.T, values map[string]string) (*Mover, *testRig) {
	t.Helper()
	rig := newTestRig(values)
	m, err := NewMover(rig.options())
	require.NoError(t, err)

	info, ok, err := m.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, info, "BNC,575-4")
	assert.Contains(t, info, "192.168.178.146:2001")

	t.Cleanup(func() { m.Close() })
	rig.console.Reset()
	return m, rig
}

func TestMoverInitialize(t *testing.T) {
	rig := newTestRig(instrumentValues())
	m, err := NewMover(rig.options())
	require.NoError(t, err)
	defer m.Close()

	before := m.Settings()
	_, ok := plugin.Find(before, "output", "delay")
	assert.False(t, ok, "attribute tree is read at initialization")

	_, ok, err = m.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"*RCL 1"}, rig.console.Writes())
	assert.Equal(t, []string{"192.168.178.146:2001"}, rig.Dials())

	settings := m.Settings()
	delay, ok := plugin.Find(settings, "output", "delay")
	require.True(t, ok)
	assert.InDelta(t, 100.0, delay.Value, 1e-6)

	id, ok := plugin.Find(settings, "connection", "id")
	require.True(t, ok)
	assert.Equal(t, "BNC,575-4,31183,2.4.1", id.Value)

	_, ok = plugin.Find(settings, "move_settings", "epsilon")
	assert.True(t, ok)

	current, err := m.CurrentValue(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 100.0, current, 1e-6)
}

func TestMoverRequiresInitialize(t *testing.T) {
	m, err := NewMover(newTestRig(nil).options())
	require.NoError(t, err)

	_, err = m.MoveAbs(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = m.OnParameterChanged(context.Background(), "delay", 10.0)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, m.Poll(context.Background()), ErrNotInitialized)
	assert.NoError(t, m.Close())
}

func TestMoverMoves(t *testing.T) {
	ctx := context.Background()
	m, rig := initializedMover(t, instrumentValues())

	pos, err := m.MoveAbs(ctx, 250)
	require.NoError(t, err)
	assert.InDelta(t, 250.0, pos, 1e-6)

	pos, err = m.MoveRel(ctx, 50)
	require.NoError(t, err)
	assert.InDelta(t, 300.0, pos, 1e-6)

	pos, err = m.MoveHome(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, pos, 1e-9)

	pos, err = m.Stop(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, pos, 1e-9)

	assert.Equal(t, []string{
		":PULSE1:DELAY 0.000000250",
		":PULSE1:DELAY 0.000000300",
		":PULSE1:DELAY 0.000000000",
	}, rig.console.Writes())

	delay, ok := plugin.Find(m.Settings(), "output", "delay")
	require.True(t, ok)
	assert.InDelta(t, 0.0, delay.Value, 1e-9)
}

func TestMoverRejectsOutOfRangeMove(t *testing.T) {
	m, rig := initializedMover(t, instrumentValues())

	_, err := m.MoveAbs(context.Background(), -5)
	assert.ErrorIs(t, err, bnc575.ErrInvalidValue)
	assert.Empty(t, rig.console.Writes())
}

func TestMoverChannelSelection(t *testing.T) {
	ctx := context.Background()
	m, rig := initializedMover(t, instrumentValues())

	updates, err := m.OnParameterChanged(ctx, "channel_label", "C")
	require.NoError(t, err)

	axis, ok := updateFor(updates, "move_settings", "axis")
	require.True(t, ok)
	assert.Equal(t, "Delay (Channel C)", axis.Value)
	assert.Equal(t, "Delay (Channel C)", m.Axis().Name)
	assert.Equal(t, "ns", m.Axis().Unit)
	assert.InDelta(t, 0.25, m.Axis().Epsilon, 1e-12)

	delay, ok := updateFor(updates, "output", "delay")
	require.True(t, ok, "refresh reports the new channel delay")
	assert.InDelta(t, 300.0, delay.Value, 1e-6)

	current, err := m.CurrentValue(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 300.0, current, 1e-6)

	_, err = m.MoveAbs(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{":PULSE3:DELAY 0.000000020"}, rig.console.Writes())

	_, err = m.OnParameterChanged(ctx, "channel_label", "E")
	assert.ErrorIs(t, err, bnc575.ErrInvalidChannel)
}

func TestMoverPeriodAndRepRate(t *testing.T) {
	ctx := context.Background()
	m, rig := initializedMover(t, instrumentValues())

	updates, err := m.OnParameterChanged(ctx, "rep_rate", 500.0)
	require.NoError(t, err)
	assert.Equal(t, []string{":PULSE0:PER 0.002"}, rig.console.Writes())

	period, ok := updateFor(updates, "continuous_mode", "period")
	require.True(t, ok)
	assert.InDelta(t, 0.002, period.Value, 1e-12)

	rate, ok := updateFor(updates, "continuous_mode", "rep_rate")
	require.True(t, ok)
	assert.InDelta(t, 500.0, rate.Value, 1e-9)

	rig.console.Reset()
	updates, err = m.OnParameterChanged(ctx, "period", 0.0001)
	require.NoError(t, err)
	assert.Equal(t, []string{":PULSE0:PER 0.0001"}, rig.console.Writes())
	rate, ok = updateFor(updates, "continuous_mode", "rep_rate")
	require.True(t, ok)
	assert.InDelta(t, 10000.0, rate.Value, 1e-6)

	rig.console.Reset()
	_, err = m.OnParameterChanged(ctx, "rep_rate", 1e9)
	assert.ErrorIs(t, err, bnc575.ErrInvalidValue)
	assert.Empty(t, rig.console.Writes())
}

func TestMoverChannelGateModeRefreshesGateMode(t *testing.T) {
	m, rig := initializedMover(t, instrumentValues())

	updates, err := m.OnParameterChanged(context.Background(), "channel_gate_mode", "OUTP")
	require.NoError(t, err)
	assert.Equal(t, []string{":PULSE0:GATE:MODE CHAN", ":PULSE1:CGATE OUTP"}, rig.console.Writes())

	gate, ok := updateFor(updates, "gating", "gate_mode")
	require.True(t, ok)
	assert.Equal(t, "CHAN", gate.Value)

	p, ok := plugin.Find(m.Settings(), "gating", "gate_mode")
	require.True(t, ok)
	assert.Equal(t, "CHAN", p.Value)
}

func TestMoverAmplitudeInTTLMode(t *testing.T) {
	values := instrumentValues()
	values[":PULSE1:OUTP:MODE"] = "TTL"
	m, rig := initializedMover(t, values)

	_, err := m.OnParameterChanged(context.Background(), "amplitude", 5.0)
	assert.ErrorIs(t, err, bnc575.ErrTTLMode)
	assert.Empty(t, rig.console.Writes())
}

func TestMoverAttributeDispatch(t *testing.T) {
	ctx := context.Background()
	m, rig := initializedMover(t, instrumentValues())

	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"label", "scan", `*LBL "scan"`},
		{"global_state", false, ":INST:STATE OFF"},
		{"global_mode", "SING", ":PULSE0:MODE SING"},
		{"channel_state", "ON", ":PULSE1:STATE ON"},
		{"channel_mode", "BURS", ":PULSE1:CMOD BURS"},
		{"width", 20.0, ":PULSE1:WIDT 0.000000020"},
		{"amplitude_mode", "ADJ", ":PULSE1:OUTP:MODE ADJ"},
		{"amplitude", 5.0, ":PULSE1:OUTP:AMPL 5"},
		{"polarity", "INV", ":PULSE1:POL INV"},
		{"trig_mode", "DIS", ":PULSE0:TRIG:MODE DIS"},
		{"trig_thresh", 1.5, ":PULSE0:TRIG:LEV 1.5"},
		{"trig_edge", "FALLING", ":PULSE0:TRIG:EDGE FALL"},
		{"gate_mode", "OUTP", ":PULSE0:GATE:MODE OUTP"},
		{"gate_thresh", 3.0, ":PULSE0:GATE:LEV 3"},
		{"gate_logic", "LOW", ":PULSE0:GATE:LOGIC LOW"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig.console.Reset()
			_, err := m.OnParameterChanged(ctx, tt.name, tt.value)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, rig.console.Writes())
		})
	}

	_, err := m.OnParameterChanged(ctx, "idn", "x")
	assert.ErrorIs(t, err, ErrUnknownParameter)
	_, err = m.OnParameterChanged(ctx, "global_mode", "FAST")
	assert.ErrorIs(t, err, bnc575.ErrInvalidValue)
}

func TestMoverConfigurationPushButtons(t *testing.T) {
	ctx := context.Background()
	m, rig := initializedMover(t, instrumentValues())

	_, err := m.OnParameterChanged(ctx, "slot", 4.0)
	require.NoError(t, err)

	updates, err := m.OnParameterChanged(ctx, "save", false)
	require.NoError(t, err)
	assert.Empty(t, updates)
	assert.Empty(t, rig.console.Sent(), "releasing a push button does nothing")

	_, err = m.OnParameterChanged(ctx, "save", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"*SAV 4"}, rig.console.Writes())

	rig.console.Reset()
	rig.console.Reply(":PULSE1:DELAY?", "0.000000900")
	updates, err = m.OnParameterChanged(ctx, "restore", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"*RCL 4"}, rig.console.Writes())
	delay, ok := updateFor(updates, "output", "delay")
	require.True(t, ok)
	assert.InDelta(t, 900.0, delay.Value, 1e-6)

	rig.console.Reset()
	_, err = m.OnParameterChanged(ctx, "reset", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"*RST"}, rig.console.Writes())

	_, err = m.OnParameterChanged(ctx, "slot", 13.0)
	assert.ErrorIs(t, err, bnc575.ErrInvalidValue)
}

func TestMoverReconnectsOnAddressChange(t *testing.T) {
	ctx := context.Background()
	m, rig := initializedMover(t, instrumentValues())

	_, err := m.OnParameterChanged(ctx, "channel_label", "B")
	require.NoError(t, err)

	updates, err := m.OnParameterChanged(ctx, "port", 2002.0)
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.178.146:2001", "192.168.178.146:2002"}, rig.Dials())

	port, ok := updateFor(updates, "connection", "port")
	require.True(t, ok)
	assert.Equal(t, 2002, port.Value)
	assert.Equal(t, "Delay (Channel B)", m.Axis().Name, "channel survives a reconnect")

	_, err = m.OnParameterChanged(ctx, "ip", "10.0.0.7")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7:2002", rig.Dials()[2])

	_, err = m.OnParameterChanged(ctx, "port", "not a port")
	assert.ErrorIs(t, err, ErrInvalidParameterValue)
}

func TestMoverKeepsConsoleWhenNewAddressRefuses(t *testing.T) {
	ctx := context.Background()
	m, rig := initializedMover(t, instrumentValues())
	rig.Refuse("10.9.9.9:2001")

	_, err := m.OnParameterChanged(ctx, "ip", "10.9.9.9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "10.9.9.9:2001")
	assert.Equal(t, []string{rigAddress, "10.9.9.9:2001"}, rig.Dials())

	assert.True(t, rig.console.IsOpen(), "the working console stays open")
	current, err := m.CurrentValue(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, current, 1e-6)

	ip, ok := plugin.Find(m.Settings(), "connection", "ip")
	require.True(t, ok)
	assert.Equal(t, "192.168.178.146", ip.Value)

	_, err = m.OnParameterChanged(ctx, "ip", "10.0.0.8")
	require.NoError(t, err)
	assert.False(t, rig.console.IsOpen(), "the old console closes once the new one is up")
}

func TestMoverPoll(t *testing.T) {
	m, rig := initializedMover(t, instrumentValues())

	require.NoError(t, m.Poll(context.Background()))
	exports := rig.Exports()
	require.Len(t, exports, 1)
	assert.Equal(t, plugin.KindMove, exports[0].Kind)
	assert.Equal(t, "Data0D", exports[0].Dim)
	require.Len(t, exports[0].Fields, 1)
	assert.Equal(t, "Delay (Channel A)", exports[0].Fields[0].Label)
	assert.InDelta(t, 100.0, exports[0].Fields[0].Value, 1e-6)
}

func TestAxisNames(t *testing.T) {
	assert.Equal(t, []string{
		"Delay (Channel A)", "Delay (Channel B)", "Delay (Channel C)", "Delay (Channel D)",
	}, AxisNames())
}
