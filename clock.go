package flatfs

import "time"

// Clock provides the time stored in new directory entries.
// Generated mock using mockgen:
//  mockgen -source=clock.go -destination=clock_mock.go -package flatfs
type Clock interface {
	Now() time.Time
}

// SystemClock returns the current wall-clock time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ZeroClock always returns the zero time, which is stored as all zero bytes.
// Use it when no time of day is available or for reproducible images.
type ZeroClock struct{}

func (ZeroClock) Now() time.Time {
	return time.Time{}
}
