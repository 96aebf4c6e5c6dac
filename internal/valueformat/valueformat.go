package valueformat

import (
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
)

const (
	None         Unit = "none"
	Nanoseconds  Unit = "nanoseconds"
	Microseconds Unit = "microseconds"
	Milliseconds Unit = "milliseconds"
	Seconds      Unit = "seconds"
	Bytes        Unit = "bytes"
)

type (
	Unit string

	// Formatter renders weights for display. It never affects aggregation.
	Formatter interface {
		Unit() Unit
		Format(v float64) string
	}

	// Raw prints unitless values with a magnitude suffix.
	Raw struct{}

	// Time prints durations recorded in one of the time units.
	Time struct {
		unit       Unit
		multiplier float64
	}

	// ByteSize prints memory sizes in powers of 1024.
	ByteSize struct{}
)

type scale struct {
	suffix string
	value  float64
}

var (
	rawScales = []scale{
		{"P", 1e15},
		{"T", 1e12},
		{"B", 1e9},
		{"M", 1e6},
		{"K", 1e3},
	}
	timeScales = []scale{
		{"d", 86400},
		{"h", 3600},
		{"m", 60},
		{"s", 1},
		{"ms", 1e-3},
		{"us", 1e-6},
		{"ns", 1e-9},
	}
	byteSuffixes = []string{"KB", "MB", "GB", "TB"}
)

// ForUnit returns the formatter matching a file's declared unit. Unknown
// units fall back to Raw.
func ForUnit(u Unit) Formatter {
	switch u {
	case Nanoseconds, Microseconds, Milliseconds, Seconds:
		return NewTime(u)
	case Bytes:
		return ByteSize{}
	}
	return Raw{}
}

func (Raw) Unit() Unit {
	return None
}

func (Raw) Format(v float64) string {
	for _, s := range rawScales {
		if v >= s.value {
			return fixed(v/s.value, 1) + s.suffix
		}
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func NewTime(u Unit) Time {
	t := Time{unit: u, multiplier: 1}
	switch u {
	case Nanoseconds:
		t.multiplier = 1e-9
	case Microseconds:
		t.multiplier = 1e-6
	case Milliseconds:
		t.multiplier = 1e-3
	}
	return t
}

func (t Time) Unit() Unit {
	return t.unit
}

func (t Time) Format(v float64) string {
	if v < 0 {
		return "-" + t.formatUnsigned(-v)
	}
	return t.formatUnsigned(v)
}

func (t Time) formatUnsigned(v float64) string {
	s := v * t.multiplier
	if s == 0 {
		return "0ns"
	}
	for _, unit := range timeScales {
		if s >= unit.value || unit.suffix == "ns" {
			return fixed(s/unit.value, 1) + unit.suffix
		}
	}
	return ""
}

func (ByteSize) Unit() Unit {
	return Bytes
}

func (ByteSize) Format(v float64) string {
	if v < 1024 {
		return fixed(v, 0) + " B"
	}
	for _, suffix := range byteSuffixes {
		v /= 1024
		if v < 1024 {
			return fixed(v, 1) + " " + suffix
		}
	}
	return fixed(v/1024, 1) + " PB"
}

// fixed rounds v to the given number of decimals and drops trailing zeros.
func fixed(v float64, digits int) string {
	p := math.Pow10(digits)
	return humanize.FtoaWithDigits(math.Round(v*p)/p, digits)
}
