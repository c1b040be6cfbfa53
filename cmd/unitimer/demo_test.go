package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	errors "github.com/influxdata/unitimer/kit/platform/errors"
	"github.com/influxdata/unitimer/kit/prom/promtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDemo returns a demo whose work advances a mock clock by n
// microseconds instead of spinning.
func newTestDemo(t *testing.T) (*demo, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	t.Setenv("UNITIMER_CONFIG_PATH", t.TempDir())

	var stdout, stderr bytes.Buffer
	d := newDemo(&stdout, &stderr)

	mock := clock.NewMock()
	d.clock = mock
	d.work = func(n int) {
		mock.Add(time.Duration(n) * time.Microsecond)
	}
	return d, &stdout, &stderr
}

func execute(t *testing.T, d *demo, args ...string) error {
	t.Helper()
	cmd, err := newCommand(d)
	require.NoError(t, err)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestDemo_Text(t *testing.T) {
	d, stdout, _ := newTestDemo(t)
	require.NoError(t, execute(t, d, "--iterations=1000,2000000", "--log-level=error"))

	want := strings.Join([]string{
		"Iterations: 1000",
		"    Seconds:      0",
		"    Milliseconds: 1",
		"    Microseconds: 1000",
		"    Nanoseconds:  1000000",
		"Iterations: 2000000",
		"    Seconds:      2",
		"    Milliseconds: 2000",
		"    Microseconds: 2000000",
		"    Nanoseconds:  2000000000",
	}, "\n") + "\n"
	assert.Equal(t, want, stdout.String())
}

func TestDemo_Units(t *testing.T) {
	d, stdout, _ := newTestDemo(t)
	require.NoError(t, execute(t, d, "-n", "1500", "-u", "ms,us", "--log-level=error"))

	assert.Equal(t, "Iterations: 1500\n    Milliseconds: 1\n    Microseconds: 1500\n", stdout.String())
}

func TestDemo_Table(t *testing.T) {
	d, stdout, _ := newTestDemo(t)
	require.NoError(t, execute(t, d, "--iterations=3000", "--format=table", "--units=ms,ns", "--log-level=error"))

	out := stdout.String()
	assert.NotContains(t, out, "Iterations: 3000")
	assert.Regexp(t, `(?mi)^\W*iterations\W+milliseconds\W+nanoseconds\W*$`, out)
	assert.Regexp(t, `(?m)^\W*3000\W+3\W+3000000\W*$`, out)
}

func TestDemo_TableRows(t *testing.T) {
	d, stdout, _ := newTestDemo(t)
	require.NoError(t, execute(t, d, "--iterations=1500,2000000", "--format=table", "--units=s,us", "--log-level=error"))

	out := stdout.String()
	assert.Regexp(t, `(?m)^\W*1500\W+0\W+1500\W*$`, out)
	assert.Regexp(t, `(?m)^\W*2000000\W+2\W+2000000\W*$`, out)
}

func TestDemo_Metrics(t *testing.T) {
	d, stdout, _ := newTestDemo(t)
	require.NoError(t, execute(t, d, "--iterations=1000,250000", "--metrics", "--log-level=error"))

	out := stdout.String()
	assert.Contains(t, out, `unitimer_timer_callbacks_total{name="spin"} 2`)
	assert.Contains(t, out, `unitimer_timer_last_duration_seconds{name="spin"} 0.25`)
}

func TestDemo_Logs(t *testing.T) {
	d, _, stderr := newTestDemo(t)
	require.NoError(t, execute(t, d, "--iterations=42", "--log-format=json"))

	lines := strings.Split(strings.TrimSpace(stderr.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Timer stopped", entry["msg"])
	assert.Equal(t, float64(42), entry["iterations"])
	assert.Equal(t, float64(42), entry["duration_us"])
	assert.Equal(t, float64(42000), entry["duration_ns"])
}

func TestDemo_EnvConfig(t *testing.T) {
	d, stdout, _ := newTestDemo(t)
	t.Setenv("UNITIMER_UNITS", "seconds")
	t.Setenv("UNITIMER_LOG_LEVEL", "error")
	require.NoError(t, execute(t, d, "--iterations=5000000"))

	assert.Equal(t, "Iterations: 5000000\n    Seconds:      5\n", stdout.String())
}

func TestDemo_EnvLists(t *testing.T) {
	d, stdout, _ := newTestDemo(t)
	t.Setenv("UNITIMER_UNITS", "ms,us")
	t.Setenv("UNITIMER_ITERATIONS", "1000,2000")
	require.NoError(t, execute(t, d, "--log-level=error"))

	want := strings.Join([]string{
		"Iterations: 1000",
		"    Milliseconds: 1",
		"    Microseconds: 1000",
		"Iterations: 2000",
		"    Milliseconds: 2",
		"    Microseconds: 2000",
	}, "\n") + "\n"
	assert.Equal(t, want, stdout.String())
}

func TestDemo_ConfigFileLists(t *testing.T) {
	d, stdout, _ := newTestDemo(t)
	dir := os.Getenv("UNITIMER_CONFIG_PATH")
	config := "iterations = \"3000000\"\nunits = \"s, ms\"\nlog-level = \"error\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(config), 0600))
	require.NoError(t, execute(t, d))

	assert.Equal(t, "Iterations: 3000000\n    Seconds:      3\n    Milliseconds: 3000\n", stdout.String())
}

func TestDemo_ServeMetrics(t *testing.T) {
	d, _, _ := newTestDemo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var served bool
	d.serving = func(addr net.Addr) {
		served = true
		defer cancel()

		resp, err := http.Get("http://" + addr.String() + "/metrics")
		require.NoError(t, err)
		mfs, err := promtest.FromHTTPResponse(resp)
		require.NoError(t, err)

		last := promtest.MustFindMetric(t, mfs, "unitimer_timer_last_duration_seconds", map[string]string{"name": "spin"})
		assert.Equal(t, 0.5, last.GetGauge().GetValue())
		calls := promtest.MustFindMetric(t, mfs, "unitimer_timer_callbacks_total", map[string]string{"name": "spin"})
		assert.Equal(t, float64(2), calls.GetCounter().GetValue())
	}

	cmd, err := newCommand(d)
	require.NoError(t, err)
	cmd.SetArgs([]string{"--iterations=10,500000", "--metrics-addr=127.0.0.1:0", "--log-level=error"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.True(t, served)
}

func TestDemo_MetricsAddrUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	d, stdout, _ := newTestDemo(t)
	err = execute(t, d, "--iterations=1", "--metrics-addr="+ln.Addr().String())
	require.Error(t, err)
	assert.Equal(t, errors.EUnavailable, errors.ErrorCode(err))
	assert.Empty(t, stdout.String())
}

func TestDemo_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{
			name: "negative iterations",
			args: []string{"--iterations=-1"},
			code: errors.EInvalid,
		},
		{
			name: "non-numeric iterations",
			args: []string{"--iterations=lots"},
			code: errors.EInvalid,
		},
		{
			name: "unknown unit",
			args: []string{"--units=fortnights"},
			code: errors.EInvalid,
		},
		{
			name: "no units",
			args: []string{"--units="},
			code: errors.EEmptyValue,
		},
		{
			name: "unknown format",
			args: []string{"--format=xml"},
			code: errors.EInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, stdout, _ := newTestDemo(t)
			err := execute(t, d, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.ErrorCode(err))
			assert.Empty(t, stdout.String())
		})
	}
}

func TestDemo_InvalidLogFormat(t *testing.T) {
	d, _, _ := newTestDemo(t)
	err := execute(t, d, "--iterations=1", "--log-format=xml")
	require.EqualError(t, err, "unknown logging format: xml")
}

func TestParseIterations(t *testing.T) {
	counts, err := parseIterations([]string{"0", " 10 ", "1000000000"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 1000000000}, counts)
}

func TestSpin(t *testing.T) {
	spin(10)
	assert.Equal(t, 45, sink)
}

func TestDemo_DebugLogs(t *testing.T) {
	d, _, stderr := newTestDemo(t)
	require.NoError(t, execute(t, d, "--iterations=1,2", "--log-format=logfmt", "--log-level=debug"))

	out := stderr.String()
	assert.Equal(t, 2, strings.Count(out, `msg="Starting timer"`))
	assert.Equal(t, 2, strings.Count(out, `msg="Timer stopped"`))
}
