package unitimer_test

import (
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/influxdata/unitimer"
	errors "github.com/influxdata/unitimer/kit/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMeasurement(t *testing.T) {
	tests := []struct {
		in   string
		want unitimer.Measurement
	}{
		{in: "seconds", want: unitimer.Seconds},
		{in: "s", want: unitimer.Seconds},
		{in: "Milliseconds", want: unitimer.Milliseconds},
		{in: "ms", want: unitimer.Milliseconds},
		{in: " microseconds ", want: unitimer.Microseconds},
		{in: "us", want: unitimer.Microseconds},
		{in: "µs", want: unitimer.Microseconds},
		{in: "NANOSECONDS", want: unitimer.Nanoseconds},
		{in: "ns", want: unitimer.Nanoseconds},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := unitimer.ParseMeasurement(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMeasurement_Invalid(t *testing.T) {
	for _, in := range []string{"", "minutes", "sec"} {
		_, err := unitimer.ParseMeasurement(in)
		require.Error(t, err, in)
		assert.Equal(t, errors.EInvalid, errors.ErrorCode(err))
	}
}

func TestMeasurement_String(t *testing.T) {
	assert.Equal(t, "seconds", unitimer.Seconds.String())
	assert.Equal(t, "milliseconds", unitimer.Milliseconds.String())
	assert.Equal(t, "microseconds", unitimer.Microseconds.String())
	assert.Equal(t, "nanoseconds", unitimer.Nanoseconds.String())
	assert.Equal(t, "Measurement(7)", unitimer.Measurement(7).String())
	assert.Equal(t, "Measurement(-1)", unitimer.Measurement(-1).String())
}

func TestMeasurement_Valid(t *testing.T) {
	for _, m := range unitimer.Measurements() {
		assert.True(t, m.Valid(), m.String())
	}
	assert.False(t, unitimer.Measurement(-1).Valid())
	assert.False(t, unitimer.Measurement(4).Valid())
	assert.Equal(t, unitimer.Microseconds, unitimer.DefaultMeasurement)
}

func TestMeasurement_Text(t *testing.T) {
	var conf struct {
		Unit unitimer.Measurement `toml:"unit"`
	}
	_, err := toml.Decode(`unit = "ms"`, &conf)
	require.NoError(t, err)
	assert.Equal(t, unitimer.Milliseconds, conf.Unit)

	_, err = toml.Decode(`unit = "fortnights"`, &conf)
	require.Error(t, err)

	b, err := unitimer.Nanoseconds.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "nanoseconds", string(b))

	_, err = unitimer.Measurement(12).MarshalText()
	assert.Equal(t, errors.EInvalid, errors.ErrorCode(err))
}
