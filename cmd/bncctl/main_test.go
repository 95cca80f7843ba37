package main

import (
	"bufio"
	"bytes"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"bnc-service/pkg/plugin"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// lineConsole is a loopback telnet console backed by a register map
type lineConsole struct {
	ln     net.Listener
	wg     sync.WaitGroup
	mu     sync.Mutex
	values map[string]string
}

func startLineConsole(t *testing.T, values map[string]string) *lineConsole {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	c := &lineConsole{ln: ln, values: values}
	c.wg.Add(1)
	go c.serve()
	t.Cleanup(func() {
		ln.Close()
		c.wg.Wait()
	})
	return c
}

func (c *lineConsole) serve() {
	defer c.wg.Done()
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer conn.Close()
			scanner := bufio.NewScanner(conn)
			for scanner.Scan() {
				line := strings.TrimRight(scanner.Text(), "\r")
				if _, err := conn.Write([]byte(c.reply(line) + "\r\n")); err != nil {
					return
				}
			}
		}()
	}
}

func (c *lineConsole) reply(line string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name, ok := strings.CutSuffix(line, "?"); ok {
		if v, ok := c.values[name]; ok {
			return v
		}
		return "?"
	}
	if name, value, ok := strings.Cut(line, " "); ok {
		c.values[name] = value
	}
	return "ok"
}

func (c *lineConsole) value(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[name]
}

func (c *lineConsole) port() string {
	return strconv.Itoa(c.ln.Addr().(*net.TCPAddr).Port)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		host, port, channel, slot, verbose = "", 0, "", 0, false
		snapshotFormat, scanRange = "yaml", ""
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsAgainstConsole(t *testing.T) {
	console := startLineConsole(t, map[string]string{
		"*IDN":          "BNC,575-4,31183,2.4.1",
		":PULSE2:DELAY": "0.000000200",
	})
	flags := []string{"--host", "127.0.0.1", "--port", console.port()}

	out, err := run(t, append([]string{"idn"}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, "BNC,575-4,31183,2.4.1\n", out)

	_, err = run(t, append([]string{"set", "delay", "0.0000015", "--channel", "B"}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, "0.000001500", console.value(":PULSE2:DELAY"))

	out, err = run(t, append([]string{"get", "delay", "-c", "B"}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, "1.5e-06\n", out)

	_, err = run(t, append([]string{"save", "--slot", "4"}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, "4", console.value("*SAV"))
}

func TestCommandValidation(t *testing.T) {
	_, err := run(t, "set", "idn", "x")
	assert.ErrorContains(t, err, "read-only")

	_, err = run(t, "get", "bogus")
	assert.ErrorContains(t, err, "unknown attribute")

	_, err = run(t, "snapshot", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestAttributesListing(t *testing.T) {
	out, err := run(t, "attributes")
	require.NoError(t, err)
	assert.Contains(t, out, "idn")
	assert.Contains(t, out, "delay")
	assert.Regexp(t, `(?m)^idn\s+r\s+identification string$`, out)
}

func TestEncode(t *testing.T) {
	params := []plugin.Param{{Title: "Output", Name: "output", Type: plugin.TypeGroup, Children: []plugin.Param{
		{Title: "Delay (ns)", Name: "delay", Type: plugin.TypeFloat, Value: 100.0},
	}}}

	var buf bytes.Buffer
	require.NoError(t, encode(&buf, "yaml", params))
	assert.Contains(t, buf.String(), "name: output")
	assert.Contains(t, buf.String(), "value: 100")

	buf.Reset()
	require.NoError(t, encode(&buf, "json", params))
	assert.Contains(t, buf.String(), `"name": "delay"`)
}

func TestDiscover(t *testing.T) {
	console := startLineConsole(t, map[string]string{
		"*IDN": "BNC,575-4,31183,2.4.1",
	})

	out, err := run(t, "discover", "--range", "127.0.0.1", "--port", console.port())
	require.NoError(t, err)
	assert.Contains(t, out, "ADDRESS")
	assert.Contains(t, out, "127.0.0.1:"+console.port())
	assert.Contains(t, out, "575-4")
	assert.Contains(t, out, "31183")
}
