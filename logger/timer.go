package logger

import (
	"time"

	"github.com/influxdata/unitimer"
	"go.uber.org/zap"
)

// TimerCallback returns a timer callback that logs msg at info level with the
// finished duration in every unit.
func TimerCallback(log *zap.Logger, msg string, fields ...zap.Field) unitimer.Callback {
	return func(v unitimer.View) {
		ce := log.Check(zap.InfoLevel, msg)
		if ce == nil {
			return
		}
		fs := make([]zap.Field, 0, len(fields)+5)
		fs = append(fs, fields...)
		ce.Write(append(fs, TimerFields(v)...)...)
	}
}

// TimerFields returns one field per measurement plus the elapsed time as a
// time.Duration.
func TimerFields(v unitimer.View) []zap.Field {
	return []zap.Field{
		zap.Int64("duration_s", v.Duration(unitimer.Seconds)),
		zap.Int64("duration_ms", v.Duration(unitimer.Milliseconds)),
		zap.Int64("duration_us", v.Duration(unitimer.Microseconds)),
		zap.Int64("duration_ns", v.Duration(unitimer.Nanoseconds)),
		zap.Duration("elapsed", time.Duration(v.Duration(unitimer.Nanoseconds))),
	}
}
