// Package timestamp converts record timestamps between time.Time and Unix
// milliseconds. Zero on either side means "not set".
package timestamp

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/c360/mqtt2influxdb/errors"
)

const (
	// maxMs is 3000-01-01T00:00:00Z
	maxMs = 32503680000000
	// Magnitudes below this are seconds (it is 2001-09-09 in milliseconds)
	secondsThreshold = 1e12
)

// ToUnixMs returns t in Unix milliseconds, 0 for the zero time
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs is the inverse of ToUnixMs
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Parse reads a timestamp written by another producer: integer or float
// seconds or milliseconds, the same as a string or json.Number, an RFC3339
// string, or a time.Time. Anything else is 0.
func Parse(input any) int64 {
	switch v := input.(type) {
	case time.Time:
		return ToUnixMs(v)
	case int:
		return fromNumber(float64(v))
	case int64:
		if math.Abs(float64(v)) >= secondsThreshold {
			return v
		}
		return v * 1000
	case float64:
		return fromNumber(v)
	case json.Number:
		return parseString(string(v))
	case string:
		return parseString(v)
	}
	return 0
}

func fromNumber(v float64) int64 {
	if math.Abs(v) >= secondsThreshold {
		return int64(v)
	}
	return int64(v * 1000)
}

func parseString(s string) int64 {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ToUnixMs(t)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Parse(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromNumber(f)
	}
	return 0
}

// Validate rejects negative timestamps and ones after the year 3000
func Validate(ms int64) error {
	if ms < 0 || ms > maxMs {
		return fmt.Errorf("%w: timestamp %d outside 0..%d", errors.ErrInvalidData, ms, int64(maxMs))
	}
	return nil
}
