package messages

import "time"

const nanosPerSecond = int64(time.Second)

// Timestamp is the protocol's wall-clock representation of an instant:
// whole seconds since the Unix epoch plus a nanosecond remainder.
// Nanos is always in [0, 999999999], including for instants before 1970.
type Timestamp struct {
	Seconds int64 `json:"seconds" msgpack:"seconds"`
	Nanos   int32 `json:"nanos" msgpack:"nanos"`
}

// TimestampFromTime converts t without loss of precision.
// The zone of t is ignored; callers validate it before converting.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp{
		Seconds: t.Unix(),
		Nanos:   int32(t.Nanosecond()),
	}
}

// Time returns the instant in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// Valid reports whether Nanos is within its normalized range.
func (ts Timestamp) Valid() bool {
	return ts.Nanos >= 0 && int64(ts.Nanos) < nanosPerSecond
}

// Duration is the protocol's representation of an elapsed time.
// Both fields are non-negative for valid durations.
type Duration struct {
	Seconds int64 `json:"seconds" msgpack:"seconds"`
	Nanos   int32 `json:"nanos" msgpack:"nanos"`
}

// DurationFromStd converts d. Negative inputs produce an invalid Duration,
// which Valid reports.
func DurationFromStd(d time.Duration) Duration {
	return Duration{
		Seconds: int64(d / time.Second),
		Nanos:   int32(int64(d) % nanosPerSecond),
	}
}

// Std converts back to a time.Duration. Values beyond the time.Duration range
// saturate.
func (d Duration) Std() time.Duration {
	const maxSeconds = int64(1<<63-1) / nanosPerSecond
	if d.Seconds > maxSeconds {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(d.Seconds)*time.Second + time.Duration(d.Nanos)
}

// Valid reports whether d is non-negative and normalized.
func (d Duration) Valid() bool {
	return d.Seconds >= 0 && d.Nanos >= 0 && int64(d.Nanos) < nanosPerSecond
}
