package unitimer

import (
	"fmt"
	"strconv"
	"strings"

	errors "github.com/influxdata/unitimer/kit/platform/errors"
)

// Measurement selects the unit a Timer reports durations in.
type Measurement int

const (
	Seconds Measurement = iota
	Milliseconds
	Microseconds
	Nanoseconds
)

var measurementNames = [...]string{
	Seconds:      "seconds",
	Milliseconds: "milliseconds",
	Microseconds: "microseconds",
	Nanoseconds:  "nanoseconds",
}

// Measurements returns every defined measurement, coarsest first.
func Measurements() []Measurement {
	return []Measurement{Seconds, Milliseconds, Microseconds, Nanoseconds}
}

// Valid reports whether m is one of the defined measurements.
func (m Measurement) Valid() bool {
	return m >= Seconds && m <= Nanoseconds
}

func (m Measurement) String() string {
	if !m.Valid() {
		return "Measurement(" + strconv.Itoa(int(m)) + ")"
	}
	return measurementNames[m]
}

// ParseMeasurement parses a unit name such as "milliseconds" or "ms".
func ParseMeasurement(s string) (Measurement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "seconds", "second", "s":
		return Seconds, nil
	case "milliseconds", "millisecond", "ms":
		return Milliseconds, nil
	case "microseconds", "microsecond", "us", "µs":
		return Microseconds, nil
	case "nanoseconds", "nanosecond", "ns":
		return Nanoseconds, nil
	}
	return 0, &errors.Error{
		Code: errors.EInvalid,
		Op:   "unitimer.ParseMeasurement",
		Msg:  fmt.Sprintf("unknown timer measurement %q", s),
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Measurement) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, &errors.Error{
			Code: errors.EInvalid,
			Op:   "unitimer.Measurement.MarshalText",
			Msg:  fmt.Sprintf("unknown timer measurement %d", int(m)),
		}
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Measurement) UnmarshalText(text []byte) error {
	v, err := ParseMeasurement(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
