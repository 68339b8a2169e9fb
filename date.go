package flatfs

import (
	"fmt"
	"time"

	"github.com/aligator/flatfs/checkpoint"
)

// TimestampSize is the size of a packed timestamp inside a directory entry.
const TimestampSize = 7

// Timestamp is the packed time stamp used for the creation and modification time
// of a directory entry:
//  Bytes 0-1: year, big-endian
//  Byte  2:   month
//  Byte  3:   day
//  Byte  4:   hour
//  Byte  5:   minute
//  Byte  6:   second
// The values are not checked against the calendar. Whatever is stored on disk is
// kept as is, so decoding and encoding is lossless.
type Timestamp struct {
	Year   uint16
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
}

// DecodeTimestamp reads a packed timestamp from the first TimestampSize bytes of b.
func DecodeTimestamp(b []byte) (Timestamp, error) {
	if len(b) < TimestampSize {
		return Timestamp{}, checkpoint.With(nil, ErrOutOfBounds, "length", len(b))
	}

	year, err := beUint16(b, 0)
	if err != nil {
		return Timestamp{}, err
	}

	return Timestamp{
		Year:   year,
		Month:  b[2],
		Day:    b[3],
		Hour:   b[4],
		Minute: b[5],
		Second: b[6],
	}, nil
}

// Encode packs the timestamp into its on-disk form.
func (t Timestamp) Encode() [TimestampSize]byte {
	var b [TimestampSize]byte
	// Cannot fail, the array is large enough.
	_ = putBeUint16(b[:], 0, t.Year)
	b[2] = t.Month
	b[3] = t.Day
	b[4] = t.Hour
	b[5] = t.Minute
	b[6] = t.Second
	return b
}

// TimestampFromTime converts t (in UTC) to a Timestamp.
// Years which do not fit into 16 bits are clamped.
func TimestampFromTime(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}

	t = t.UTC()
	year := t.Year()
	if year < 0 {
		year = 0
	} else if year > 0xFFFF {
		year = 0xFFFF
	}

	return Timestamp{
		Year:   uint16(year),
		Month:  uint8(t.Month()),
		Day:    uint8(t.Day()),
		Hour:   uint8(t.Hour()),
		Minute: uint8(t.Minute()),
		Second: uint8(t.Second()),
	}
}

// IsZero reports whether all fields are 0, which is what images store when no
// time was available.
func (t Timestamp) IsZero() bool {
	return t == Timestamp{}
}

// Time returns the timestamp as time.Time in UTC.
// A zero Timestamp results in time.Time{} so that time.Time.IsZero() can be used.
//
// Values out of the normal ranges are normalized by time.Date, e.g. month 13 of
// 2020 becomes January 2021.
func (t Timestamp) Time() time.Time {
	if t.IsZero() {
		return time.Time{}
	}

	return time.Date(int(t.Year), time.Month(t.Month), int(t.Day), int(t.Hour), int(t.Minute), int(t.Second), 0, time.UTC)
}

// String formats the raw fields as YYYY/MM/DD HH:MM:SS.
func (t Timestamp) String() string {
	return fmt.Sprintf("%4d/%02d/%02d %02d:%02d:%02d", t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second)
}
