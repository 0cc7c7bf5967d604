package param

import "time"

// taiOffset is TAI-UTC, constant since the 2017 leap second.
const taiOffset = 37 * time.Second

// Timestamp is an instant as whole seconds since the Unix epoch plus nanos.
// It is the wire shape of eventTime and of UTCTimeKey/TAITimeKey values.
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

// Now returns the current UTC instant.
func Now() Timestamp { return FromTime(time.Now()) }

// TAINow returns the current instant on the TAI scale.
func TAINow() Timestamp { return FromTime(time.Now().Add(taiOffset)) }

// FromTime converts t, dropping its location and monotonic reading.
func FromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time returns the instant in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

func (ts Timestamp) IsZero() bool { return ts.Seconds == 0 && ts.Nanos == 0 }
