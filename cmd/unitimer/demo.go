package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/influxdata/unitimer"
	"github.com/influxdata/unitimer/kit/cli"
	errors "github.com/influxdata/unitimer/kit/platform/errors"
	"github.com/influxdata/unitimer/kit/prom"
	"github.com/influxdata/unitimer/logger"
	"github.com/influxdata/unitimer/pkg/metrics"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	formatText  = "text"
	formatTable = "table"
)

type demo struct {
	iterations  []string
	units       []string
	format      string
	logLevel    zapcore.Level
	logFormat   string
	metrics     bool
	metricsAddr string

	stdout io.Writer
	stderr io.Writer
	clock  clock.Clock
	// work is the loop being timed.
	work func(n int)
	// serving, if set, is called once every run is done and metrics are
	// being served on addr.
	serving func(addr net.Addr)
}

func newDemo(stdout, stderr io.Writer) *demo {
	return &demo{
		stdout: stdout,
		stderr: stderr,
		clock:  clock.New(),
		work:   spin,
	}
}

func newCommand(d *demo) (*cobra.Command, error) {
	var cmd *cobra.Command
	cmd, err := cli.NewCommand(viper.New(), &cli.Program{
		Name: "unitimer",
		Run: func() error {
			return d.run(cmd.Context())
		},
		Opts: []cli.Opt{
			{
				DestP:   &d.iterations,
				Flag:    "iterations",
				Short:   'n',
				Default: []string{"1000", "1000000", "1000000000"},
				Desc:    "loop lengths to time, one timer per value",
			},
			{
				DestP:   &d.units,
				Flag:    "units",
				Short:   'u',
				Default: measurementNames(unitimer.Measurements()),
				Desc:    "units to report: seconds, milliseconds, microseconds, nanoseconds",
			},
			{
				DestP:   &d.format,
				Flag:    "format",
				Default: formatText,
				Desc:    "output format: text or table",
			},
			{
				DestP:   &d.logLevel,
				Flag:    "log-level",
				Default: zapcore.InfoLevel,
				Desc:    "supported log levels are debug, info, warn and error",
			},
			{
				DestP:   &d.logFormat,
				Flag:    "log-format",
				Default: "auto",
				Desc:    "log output format: auto, logfmt, console or json",
			},
			{
				DestP:   &d.metrics,
				Flag:    "metrics",
				Default: false,
				Desc:    "print the prometheus metrics of the run when done",
			},
			{
				DestP: &d.metricsAddr,
				Flag:  "metrics-addr",
				Desc:  "serve prometheus metrics on this address at /metrics until interrupted",
			},
		},
	})
	if err != nil {
		return nil, err
	}

	cmd.Short = "Time busy loops and print the elapsed time in each unit"
	cmd.SilenceUsage = true
	cmd.SetOut(d.stdout)
	cmd.SetErr(d.stderr)
	return cmd, nil
}

func (d *demo) run(ctx context.Context) error {
	counts, err := parseIterations(d.iterations)
	if err != nil {
		return err
	}
	units, err := parseUnits(d.units)
	if err != nil {
		return err
	}
	if d.format != formatText && d.format != formatTable {
		return &errors.Error{
			Code: errors.EInvalid,
			Op:   "cmd/unitimer.run",
			Msg:  fmt.Sprintf("unknown output format %q", d.format),
		}
	}

	lc := logger.NewConfig()
	lc.Level = d.logLevel
	lc.Format = d.logFormat
	log, err := lc.New(d.stderr)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	tm := metrics.NewTimerMetrics()
	reg := prom.NewRegistry(log)
	reg.MustRegisterCollectors(tm)

	var srv *metricsServer
	if d.metricsAddr != "" {
		if srv, err = startMetricsServer(d.metricsAddr, reg, log); err != nil {
			return err
		}
		defer func() { _ = srv.srv.Close() }()
	}

	ctx = logger.NewContextWithLogger(ctx, log)

	var rows [][]any
	for _, n := range counts {
		var report unitimer.Callback
		if d.format == formatTable {
			report = func(v unitimer.View) {
				row := []any{n}
				for _, m := range units {
					row = append(row, v.Duration(m))
				}
				rows = append(rows, row)
			}
		} else {
			_, _ = fmt.Fprintf(d.stdout, "Iterations: %d\n", n)
			report = d.printDurations(units)
		}

		d.measure(ctx, n, unitimer.Chain(
			report,
			tm.Callback("spin"),
			logger.TimerCallback(log, "Timer stopped", zap.Int("iterations", n)),
		))
	}

	if d.format == formatTable {
		if err := d.renderTable(units, rows); err != nil {
			return err
		}
	}

	if d.metrics {
		if err := reg.WriteText(d.stdout); err != nil {
			return err
		}
	}

	if srv == nil {
		return nil
	}
	if d.serving != nil {
		d.serving(srv.addr())
	}
	return srv.wait(ctx)
}

// metricsServer exposes a registry over HTTP.
type metricsServer struct {
	srv  *http.Server
	ln   net.Listener
	errc chan error
	log  *zap.Logger
}

func startMetricsServer(addr string, reg *prom.Registry, log *zap.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &errors.Error{
			Code: errors.EUnavailable,
			Op:   "cmd/unitimer.startMetricsServer",
			Err:  err,
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.HTTPHandler())
	s := &metricsServer{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		ln:   ln,
		errc: make(chan error, 1),
		log:  log,
	}
	go func() {
		s.errc <- s.srv.Serve(ln)
	}()

	log.Info("Serving metrics", zap.Stringer("addr", ln.Addr()))
	return s, nil
}

func (s *metricsServer) addr() net.Addr { return s.ln.Addr() }

// wait serves until ctx is done, then shuts the server down.
func (s *metricsServer) wait(ctx context.Context) error {
	select {
	case err := <-s.errc:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Stopping metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

// measure runs one timing of d.work(n). The callback fires when the timer
// goes out of scope.
func (d *demo) measure(ctx context.Context, n int, cb unitimer.Callback) {
	logger.FromContext(ctx).Debug("Starting timer", zap.Int("iterations", n))

	timer := unitimer.NewWithCallback(cb, unitimer.WithClock(d.clock))
	defer timer.Stop()

	timer.Reset()
	d.work(n)
}

func (d *demo) printDurations(units []unitimer.Measurement) unitimer.Callback {
	return func(v unitimer.View) {
		for _, m := range units {
			_, _ = fmt.Fprintf(d.stdout, "    %-14s%d\n", title(m)+":", v.Duration(m))
		}
	}
}

func (d *demo) renderTable(units []unitimer.Measurement, rows [][]any) error {
	header := []any{"Iterations"}
	for _, m := range units {
		header = append(header, title(m))
	}

	table := tablewriter.NewWriter(d.stdout)
	table.Header(header...)
	for _, row := range rows {
		if err := table.Append(row...); err != nil {
			return err
		}
	}
	return table.Render()
}

func parseIterations(values []string) ([]int, error) {
	counts := make([]int, 0, len(values))
	for _, s := range values {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 0 {
			return nil, &errors.Error{
				Code: errors.EInvalid,
				Op:   "cmd/unitimer.parseIterations",
				Msg:  fmt.Sprintf("invalid iteration count %q", s),
			}
		}
		counts = append(counts, n)
	}
	return counts, nil
}

func parseUnits(values []string) ([]unitimer.Measurement, error) {
	if len(values) == 0 {
		return nil, &errors.Error{
			Code: errors.EEmptyValue,
			Op:   "cmd/unitimer.parseUnits",
			Msg:  "at least one unit is required",
		}
	}

	units := make([]unitimer.Measurement, 0, len(values))
	for _, s := range values {
		m, err := unitimer.ParseMeasurement(s)
		if err != nil {
			return nil, errors.NewError(
				errors.WithErrorCode(errors.EInvalid),
				errors.WithErrorOp("cmd/unitimer.parseUnits"),
				errors.WithErrorErr(err),
			)
		}
		units = append(units, m)
	}
	return units, nil
}

func measurementNames(ms []unitimer.Measurement) []string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.String()
	}
	return names
}

func title(m unitimer.Measurement) string {
	s := m.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

var sink int

// spin is a busy loop of n iterations.
func spin(n int) {
	var s int
	for i := 0; i < n; i++ {
		s += i
	}
	sink = s
}
