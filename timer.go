package unitimer

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	errors "github.com/influxdata/unitimer/kit/platform/errors"
)

// DurationUnavailable is returned by Duration while the timer is still running.
const DurationUnavailable int64 = -1

// DefaultMeasurement is the unit reported by Elapsed.
const DefaultMeasurement = Microseconds

// View is the read-only side of a Timer. Callbacks receive a View so they
// can inspect the finished timer without being able to restart it.
type View interface {
	StartInstant() time.Time
	EndInstant() time.Time
	Duration(m Measurement) int64
	Elapsed() int64
	IsRunning() bool
	IsFinished() bool
	HasCallback() bool
}

// Callback is invoked synchronously when a timer is stopped.
type Callback func(View)

// Option configures a Timer at construction.
type Option func(*Timer)

// WithClock sets the clock used for every instant the timer captures.
func WithClock(c clock.Clock) Option {
	return func(t *Timer) {
		t.clock = c
	}
}

// WithCallback sets the callback fired by Stop.
func WithCallback(cb Callback) Option {
	return func(t *Timer) {
		t.callback = cb
	}
}

// Timer measures the time between its construction (or last Reset) and Stop.
//
// A Timer is either running or finished. Durations are only reported once it
// is finished; a running timer answers DurationUnavailable. Timers are not
// safe for concurrent use.
//
// Go has no destructors, so the usual pattern is to defer Stop right after
// construction:
//
//	t := unitimer.NewWithCallback(report)
//	defer t.Stop()
type Timer struct {
	start    time.Time
	end      time.Time
	callback Callback
	running  bool

	clock clock.Clock
}

var _ View = (*Timer)(nil)

// New returns a running timer started at the current instant.
func New(opts ...Option) *Timer {
	t := &Timer{running: true}
	for _, opt := range opts {
		opt(t)
	}

	// Use the realtime clock by default.
	if t.clock == nil {
		t.clock = clock.New()
	}
	t.start = t.clock.Now()
	return t
}

// NewWithCallback returns a running timer that calls cb when stopped.
func NewWithCallback(cb Callback, opts ...Option) *Timer {
	return New(append([]Option{WithCallback(cb)}, opts...)...)
}

// Measure times fn. The timer is stopped by a deferred call, so its callback
// fires even if fn panics.
func Measure(fn func(), opts ...Option) *Timer {
	t := New(opts...)
	defer t.Stop()
	fn()
	return t
}

// StartInstant returns the instant captured at construction or the last Reset.
func (t *Timer) StartInstant() time.Time { return t.start }

// EndInstant returns the instant captured by Stop. While the timer is running
// there is no stored end, so the current instant is returned instead; two
// calls on a running timer will not agree.
func (t *Timer) EndInstant() time.Time {
	if t.running {
		return t.clock.Now()
	}
	return t.end
}

// IsRunning reports whether the timer has not been stopped since it was
// created or last reset.
func (t *Timer) IsRunning() bool { return t.running }

// IsFinished is the complement of IsRunning.
func (t *Timer) IsFinished() bool { return !t.running }

// HasCallback reports whether a callback is set.
func (t *Timer) HasCallback() bool { return t.callback != nil }

// SetCallback replaces the callback. It only affects later stops.
func (t *Timer) SetCallback(cb Callback) { t.callback = cb }

// Duration returns the elapsed time in the unit m, or DurationUnavailable if
// the timer is still running.
//
// The start and end instants are each truncated to a whole number of units
// since the Unix epoch before subtracting. The result can therefore differ by
// one unit from truncating the exact elapsed time: a timer started at
// 0.9ms and stopped at 1.1ms reports 1 millisecond but 200 microseconds.
// Epoch offsets are taken on the monotonic clock when the instants carry a
// reading.
//
// Duration panics with an EInvalid error if m is not one of the defined
// measurements.
func (t *Timer) Duration(m Measurement) int64 {
	if t.running {
		return DurationUnavailable
	}

	var unit int64
	switch m {
	case Seconds:
		unit = int64(time.Second)
	case Milliseconds:
		unit = int64(time.Millisecond)
	case Microseconds:
		unit = int64(time.Microsecond)
	case Nanoseconds:
		unit = int64(time.Nanosecond)
	default:
		panic(&errors.Error{
			Code: errors.EInvalid,
			Op:   "unitimer.Timer.Duration",
			Msg:  fmt.Sprintf("unknown timer measurement %d", int(m)),
		})
	}

	start, end := epochNanos(t.StartInstant()), epochNanos(t.EndInstant())
	return floorDiv(end, unit) - floorDiv(start, unit)
}

// epochBase anchors instants to the Unix epoch.
var epochBase = time.Now()

// epochNanos returns nanoseconds since the Unix epoch as seen from
// epochBase. Instants carrying a monotonic clock reading are measured on the
// monotonic clock, so a wall clock step between start and stop does not
// change their difference. Instants without one, such as those of a mock
// clock, yield exactly UnixNano.
func epochNanos(t time.Time) int64 {
	return epochBase.UnixNano() + int64(t.Sub(epochBase))
}

// floorDiv divides rounding towards negative infinity, matching how
// time.Time truncates to whole units.
func floorDiv(n, d int64) int64 {
	q := n / d
	if n%d != 0 && (n < 0) != (d < 0) {
		q--
	}
	return q
}

// Elapsed returns Duration(DefaultMeasurement).
func (t *Timer) Elapsed() int64 { return t.Duration(DefaultMeasurement) }

// Stop captures the end instant and calls the callback, if any. Stopping a
// finished timer does nothing.
func (t *Timer) Stop() {
	if !t.running {
		return
	}
	t.finish()

	if t.callback != nil {
		t.callback(t)
	}
}

// StopWithoutCallback is like Stop but never calls the callback.
func (t *Timer) StopWithoutCallback() {
	if !t.running {
		return
	}
	t.finish()
}

func (t *Timer) finish() {
	t.end = t.clock.Now()
	t.running = false
}

// Reset restarts the timer from the current instant, whether or not it was
// stopped. The callback is kept.
func (t *Timer) Reset() {
	t.start = t.clock.Now()
	t.end = t.start
	t.running = true
}

// Chain returns a callback that calls each non-nil cb in order.
// It returns nil if there are none.
func Chain(cbs ...Callback) Callback {
	var chain []Callback
	for _, cb := range cbs {
		if cb != nil {
			chain = append(chain, cb)
		}
	}

	switch len(chain) {
	case 0:
		return nil
	case 1:
		return chain[0]
	}
	return func(v View) {
		for _, cb := range chain {
			cb(v)
		}
	}
}
