// Package protocoltest provides an in-memory instrument console for tests.
package protocoltest

import (
	"context"
	"strings"
	"sync"

	"bnc-service/internal/protocol"
)

// FakeConsole implements protocol.LineProtocol. Set commands update an internal
// register map and queries read it back, so it behaves like a forgiving instrument.
type FakeConsole struct {
	mu       sync.Mutex
	open     bool
	values   map[string]string
	replies  map[string]string
	failures map[string]error
	sent     []string
	listener protocol.Listener
}

var _ protocol.LineProtocol = (*FakeConsole)(nil)

// NewFakeConsole returns an open console preloaded with register values
func NewFakeConsole(values map[string]string) *FakeConsole {
	f := &FakeConsole{
		open:     true,
		values:   make(map[string]string),
		replies:  make(map[string]string),
		failures: make(map[string]error),
	}
	for k, v := range values {
		f.values[k] = v
	}
	return f
}

// SetListener installs callbacks fired after every successful exchange
func (f *FakeConsole) SetListener(l protocol.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

// Reply forces the reply for an exact command line
func (f *FakeConsole) Reply(line, reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[line] = reply
}

// Fail makes an exact command line return err
func (f *FakeConsole) Fail(line string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[line] = err
}

// Value returns the register value last set for name
func (f *FakeConsole) Value(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[name]
}

// Sent returns every line sent so far
func (f *FakeConsole) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// Writes returns the sent lines that are not queries
func (f *FakeConsole) Writes() []string {
	var out []string
	for _, l := range f.Sent() {
		if !strings.HasSuffix(l, "?") {
			out = append(out, l)
		}
	}
	return out
}

// Reset forgets the sent history
func (f *FakeConsole) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

func (f *FakeConsole) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	return nil
}

func (f *FakeConsole) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *FakeConsole) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *FakeConsole) Send(ctx context.Context, line string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	reply, err := f.exchangeLocked(line)
	onReply := f.listener.OnReply
	f.mu.Unlock()

	if err == nil && onReply != nil {
		onReply(line, reply)
	}
	return reply, err
}

func (f *FakeConsole) exchangeLocked(line string) (string, error) {
	if !f.open {
		return "", protocol.ErrNotConnected
	}
	f.sent = append(f.sent, line)

	if err, ok := f.failures[line]; ok {
		return "", err
	}
	if reply, ok := f.replies[line]; ok {
		return reply, nil
	}

	if name, ok := strings.CutSuffix(line, "?"); ok {
		return f.values[name], nil
	}
	if name, value, ok := strings.Cut(line, " "); ok {
		f.values[name] = value
	}
	return "ok", nil
}

func (f *FakeConsole) Query(ctx context.Context, name string) (string, error) {
	return f.Send(ctx, name+"?")
}

func (f *FakeConsole) Set(ctx context.Context, name, value string) (string, error) {
	return f.Send(ctx, name+" "+value)
}

func (f *FakeConsole) Stats() protocol.ProtocolStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return protocol.ProtocolStats{
		OperationCount: int64(len(f.sent)),
		IsConnected:    f.open,
	}
}
