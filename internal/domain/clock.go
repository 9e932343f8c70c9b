package domain

import "time"

// Clock supplies write timestamps. Tests swap it for a deterministic one.
type Clock func() time.Time

// NowMillis returns the clock's current time as epoch milliseconds.
func (c Clock) NowMillis() int64 {
	if c == nil {
		return time.Now().UnixMilli()
	}
	return c().UnixMilli()
}
