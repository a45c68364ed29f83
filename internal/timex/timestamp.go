package timex

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp is an explicit point-in-time value: whole seconds since the
// Unix epoch plus a sub-second remainder in nanoseconds.
//
// It exists because storage layers and wire formats do not reliably
// preserve rich date types; a Timestamp serializes to a pair of integers
// at every boundary and round-trips exactly across producers and
// consumers. It is semantically "when the meal happened", not when the
// row was written; freshness comparison uses Record.UpdatedAtMs instead.
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

// TimestampOf converts a time.Time into its seconds/nanos pair.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Now returns the current instant as a Timestamp.
func Now() Timestamp {
	return TimestampOf(time.Now())
}

// Time converts the pair back into a time.Time in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// UnixMilli returns the instant in milliseconds since the epoch. Used as
// the freshness fallback when a record carries no UpdatedAtMs.
func (ts Timestamp) UnixMilli() int64 {
	return ts.Seconds*1000 + int64(ts.Nanos)/int64(time.Millisecond)
}

// IsZero reports whether the timestamp is the zero value.
func (ts Timestamp) IsZero() bool {
	return ts.Seconds == 0 && ts.Nanos == 0
}

// Equal reports exact equality of both components.
func (ts Timestamp) Equal(other Timestamp) bool {
	return ts.Seconds == other.Seconds && ts.Nanos == other.Nanos
}

// String renders the instant in RFC3339Nano for logs.
func (ts Timestamp) String() string {
	return ts.Time().Format(time.RFC3339Nano)
}

// MarshalJSON always writes the explicit pair form.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	type pair Timestamp
	return json.Marshal(pair(ts))
}

// UnmarshalJSON reads the pair form and validates the nanos range.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	type pair Timestamp
	var p pair
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	if p.Nanos < 0 || p.Nanos >= int32(time.Second) {
		return fmt.Errorf("timestamp nanos out of range: %d", p.Nanos)
	}
	*ts = Timestamp(p)
	return nil
}
