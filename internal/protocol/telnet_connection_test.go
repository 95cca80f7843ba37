package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type consoleStep struct {
	expectLine string
	response   string
	silent     bool
}

// consoleResponder plays scripted replies on the server end of a pipe
type consoleResponder struct {
	conn  net.Conn
	steps []consoleStep
	done  chan struct{}
	errCh chan error
}

func newConsoleResponder(steps []consoleStep) (net.Conn, *consoleResponder) {
	client, server := net.Pipe()
	r := &consoleResponder{
		conn:  server,
		steps: steps,
		done:  make(chan struct{}),
		errCh: make(chan error, 1),
	}
	go r.run()
	return client, r
}

func (r *consoleResponder) run() {
	defer close(r.done)
	defer r.conn.Close()

	reader := bufio.NewReader(r.conn)
	for idx, step := range r.steps {
		line, err := reader.ReadString('\n')
		if err != nil {
			r.errCh <- fmt.Errorf("step %d: read command: %w", idx, err)
			return
		}
		if line != step.expectLine {
			r.errCh <- fmt.Errorf("step %d: unexpected command %q, want %q", idx, line, step.expectLine)
			return
		}
		if step.silent {
			continue
		}
		if _, err := r.conn.Write([]byte(step.response)); err != nil {
			r.errCh <- fmt.Errorf("step %d: write reply: %w", idx, err)
			return
		}
	}
	// anything after the script is a duplicate delivery
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			r.errCh <- fmt.Errorf("unexpected extra command %q", line)
			return
		}
		if err != nil {
			return
		}
	}
}

func (r *consoleResponder) wait(t *testing.T) {
	t.Helper()
	<-r.done
	select {
	case err := <-r.errCh:
		t.Fatalf("console responder error: %v", err)
	default:
	}
}

// deadConn returns a pipe end whose peer is already closed, so writes fail
func deadConn() net.Conn {
	client, server := net.Pipe()
	server.Close()
	return client
}

// queueDialer hands out prepared connections in order and counts dials
type queueDialer struct {
	mu    sync.Mutex
	conns []net.Conn
	dials int
}

func (q *queueDialer) dial(ctx context.Context, network, address string) (net.Conn, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dials++
	if len(q.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := q.conns[0]
	q.conns = q.conns[1:]
	return c, nil
}

func testConfig() *TelnetConfig {
	cfg := DefaultTelnetConfig()
	cfg.Host = "127.0.0.1"
	cfg.AckTimeout = 200 * time.Millisecond
	cfg.ReconnectDelay = 0
	return cfg
}

func openConnection(t *testing.T, cfg *TelnetConfig, q *queueDialer, opts ...Option) *TelnetConnection {
	t.Helper()
	opts = append(opts, WithDialer(q.dial))
	tc := NewTelnetConnection(cfg, zap.NewNop(), opts...)
	require.NoError(t, tc.Open(context.Background()))
	t.Cleanup(func() { tc.Close() })
	return tc
}

func TestQueryAndSetFormatting(t *testing.T) {
	conn, responder := newConsoleResponder([]consoleStep{
		{expectLine: ":PULSE1:DELAY?\r\n", response: "0.000000100\r\n"},
		{expectLine: ":PULSE1:WIDT 0.000000010\r\n", response: "ok\r\n"},
		{expectLine: "*IDN?\r\n", response: "  BNC,575-4,31183,2.4.1-2.0.11  \r\n"},
	})
	tc := openConnection(t, testConfig(), &queueDialer{conns: []net.Conn{conn}})
	ctx := context.Background()

	reply, err := tc.Query(ctx, Path("PULSE1", "DELAY"))
	require.NoError(t, err)
	assert.Equal(t, "0.000000100", reply)

	reply, err = tc.Set(ctx, ":PULSE1:WIDT", "0.000000010")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)

	reply, err = tc.Query(ctx, "*IDN")
	require.NoError(t, err)
	assert.Equal(t, "BNC,575-4,31183,2.4.1-2.0.11", reply)

	require.NoError(t, tc.Close())
	responder.wait(t)

	stats := tc.Stats()
	assert.EqualValues(t, 3, stats.OperationCount)
	assert.Zero(t, stats.ErrorCount)
	assert.False(t, stats.IsConnected)
}

func TestSendReconnectsAndDeliversOnce(t *testing.T) {
	conn, responder := newConsoleResponder([]consoleStep{
		{expectLine: "*TRG\r\n", response: "ok\r\n"},
	})
	q := &queueDialer{conns: []net.Conn{deadConn(), conn}}
	tc := openConnection(t, testConfig(), q)

	reply, err := tc.Send(context.Background(), "*TRG")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, 2, q.dials)
	assert.EqualValues(t, 1, tc.Stats().Reconnects)

	require.NoError(t, tc.Close())
	responder.wait(t)
}

func TestReplyLengthLimit(t *testing.T) {
	first, r1 := newConsoleResponder([]consoleStep{
		{expectLine: "*IDN?\r\n", response: "BNC575\r\n"},
		{expectLine: "*IDN?\r\n", response: "BNC5750\r\n"},
	})
	q := &queueDialer{conns: []net.Conn{first}}
	cfg := testConfig()
	cfg.MaxLineLength = 8
	tc := openConnection(t, cfg, q)

	reply, err := tc.Query(context.Background(), "*IDN")
	require.NoError(t, err, "a reply of exactly MaxLineLength bytes fits")
	assert.Equal(t, "BNC575", reply)

	_, err = tc.Query(context.Background(), "*IDN")
	assert.ErrorIs(t, err, ErrLineTooLong)
	assert.False(t, tc.IsOpen())
	r1.wait(t)
}

func TestSendGivesUpAfterMaxReconnects(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReconnects = 2
	q := &queueDialer{conns: []net.Conn{deadConn(), deadConn(), deadConn(), deadConn()}}
	tc := openConnection(t, cfg, q)

	_, err := tc.Send(context.Background(), "*RST")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReconnectExhausted)
	assert.Equal(t, 3, q.dials)
}

func TestAckTimeoutClearsStateForNextCall(t *testing.T) {
	first, r1 := newConsoleResponder([]consoleStep{
		{expectLine: "*RCL 1\r\n", silent: true},
	})
	second, r2 := newConsoleResponder([]consoleStep{
		{expectLine: "*IDN?\r\n", response: "BNC575\r\n"},
	})
	q := &queueDialer{conns: []net.Conn{first, second}}
	tc := openConnection(t, testConfig(), q)

	_, err := tc.Set(context.Background(), "*RCL", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAckTimeout)
	assert.False(t, tc.IsOpen())
	r1.wait(t)

	reply, err := tc.Query(context.Background(), "*IDN")
	require.NoError(t, err)
	assert.Equal(t, "BNC575", reply)

	require.NoError(t, tc.Close())
	r2.wait(t)
}

func TestListenerSeesBusyAroundEveryExchange(t *testing.T) {
	conn, responder := newConsoleResponder([]consoleStep{
		{expectLine: "*TRG\r\n", response: "ok\r\n"},
		{expectLine: "*RST\r\n", silent: true},
	})

	var mu sync.Mutex
	var events []string
	listener := Listener{
		OnBusy: func(busy bool) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, fmt.Sprintf("busy=%v", busy))
		},
		OnReply: func(cmd, reply string) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, cmd+"->"+reply)
		},
	}
	tc := openConnection(t, testConfig(), &queueDialer{conns: []net.Conn{conn}}, WithListener(listener))

	_, err := tc.Send(context.Background(), "*TRG")
	require.NoError(t, err)
	_, err = tc.Send(context.Background(), "*RST")
	require.ErrorIs(t, err, ErrAckTimeout)
	responder.wait(t)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"busy=true", "*TRG->ok", "busy=false", "busy=true", "busy=false"}, events)
}

func TestSendAfterCloseIsRejected(t *testing.T) {
	conn, responder := newConsoleResponder(nil)
	tc := openConnection(t, testConfig(), &queueDialer{conns: []net.Conn{conn}})
	require.NoError(t, tc.Close())
	responder.wait(t)

	_, err := tc.Send(context.Background(), "*IDN?")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendHonoursContextCancel(t *testing.T) {
	conn, responder := newConsoleResponder([]consoleStep{
		{expectLine: "*IDN?\r\n", silent: true},
	})
	cfg := testConfig()
	cfg.AckTimeout = 5 * time.Second
	tc := openConnection(t, cfg, &queueDialer{conns: []net.Conn{conn}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := tc.Send(ctx, "*IDN?")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	responder.wait(t)
}

func TestPath(t *testing.T) {
	assert.Equal(t, ":PULSE0:TRIG:MODE", Path("PULSE0", "TRIG", "MODE"))
	assert.Equal(t, ":INST:STATE", Path("INST", "STATE"))
	assert.Equal(t, "", Path())
}

func TestStripTelnet(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{name: "plain", in: []byte("ok\r\n"), want: "ok\r\n"},
		{name: "will echo", in: []byte{iac, will, 1, 'o', 'k'}, want: "ok"},
		{name: "escaped iac", in: []byte{'a', iac, iac, 'b'}, want: "a\xffb"},
		{name: "subnegotiation", in: []byte{iac, sb, 24, 1, iac, se, 'x'}, want: "x"},
		{name: "trailing iac", in: []byte{'y', iac}, want: "y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(stripTelnet(tt.in)))
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	base := DefaultTelnetConfig()

	cfg, err := ApplyOverrides(base, map[string]interface{}{
		"host":        "10.0.0.5",
		"port":        float64(2002),
		"ack_timeout": "1s",
	})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:2002", cfg.Address())
	assert.Equal(t, time.Second, cfg.AckTimeout)
	assert.Equal(t, DefaultHost, base.Host, "base must not be modified")

	_, err = ApplyOverrides(base, map[string]interface{}{"port": 2001.5})
	assert.Error(t, err)

	_, err = ApplyOverrides(base, map[string]interface{}{"port": float64(70000)})
	assert.Error(t, err)
}
