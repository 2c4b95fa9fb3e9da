package model

import (
	"errors"
	"time"
)

// ErrInvalidResolution is returned for a clock without a positive tick rate.
var ErrInvalidResolution = errors.New("timestamp resolution must be positive")

// ClockConfig maps device ticks to wall-clock time: origin + ticks/resolution seconds.
// Values are immutable; each recording carries its own.
type ClockConfig struct {
	Origin     time.Time
	Resolution int64 // ticks per second, 30000 on the reference hardware
}

// Validate checks the resolution.
func (c ClockConfig) Validate() error {
	if c.Resolution <= 0 {
		return ErrInvalidResolution
	}
	return nil
}

// WallClock converts a device timestamp.
func (c ClockConfig) WallClock(ts int64) time.Time {
	return c.Origin.Add(c.Offset(ts))
}

// Offset converts a tick count to a duration without overflowing on long recordings.
func (c ClockConfig) Offset(ts int64) time.Duration {
	if c.Resolution <= 0 {
		return 0
	}
	whole := ts / c.Resolution
	frac := ts % c.Resolution
	return time.Duration(whole)*time.Second + time.Duration(frac*int64(time.Second)/c.Resolution)
}
