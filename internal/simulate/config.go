// Package simulate generates synthetic recordings and camera logs with known
// anomalies, and checks pipeline output against the ground truth.
package simulate

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned for an unusable simulation setup.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Config describes one synthetic recording.
type Config struct {
	Recording string    // recording id in the store
	Camera    string    // camera serial in the session logs
	Origin    time.Time // device clock origin
	Seed      uint64    // anomaly placement and amplitude noise

	Serials        int    // chunk serials emitted by the device
	StartSerial    int64  // first chunk serial
	TicksPerSerial int64  // device ticks between serials
	Resolution     int64  // device ticks per second
	FrameStart     uint16 // raw frame id of the first camera row
	Segments       int    // camera logs the serial range is split into

	DeviceTypeI   int // decoded zeros on the device stream
	DeviceTypeIII int // dropped serial groups on the device stream
	CameraTypeI   int // zero serials in the camera log
	CameraTypeII  int // reset runs in the camera log
	CameraTypeIII int // dropped rows in the camera log
}

// DefaultConfig returns a small recording that crosses a frame counter wrap and
// carries a few anomalies of every kind.
func DefaultConfig() Config {
	return Config{
		Recording:      "sim",
		Camera:         "23512908",
		Origin:         time.Date(2024, 9, 6, 15, 36, 15, 0, time.UTC),
		Seed:           1,
		Serials:        2048,
		StartSerial:    20323583,
		TicksPerSerial: 100,
		Resolution:     30000,
		FrameStart:     64000,
		Segments:       2,
		DeviceTypeI:    3,
		DeviceTypeIII:  3,
		CameraTypeI:    3,
		CameraTypeII:   2,
		CameraTypeIII:  3,
	}
}

// slotSize is the number of rows reserved for one injected anomaly.
const slotSize = 16

// Validate checks that the anomalies fit.
func (c Config) Validate() error {
	var problems []error
	if c.Recording == "" || c.Camera == "" {
		problems = append(problems, errors.New("recording and camera are required"))
	}
	if c.StartSerial < 128 {
		problems = append(problems, errors.New("start serial must be at least 128"))
	}
	if c.TicksPerSerial <= 8 {
		problems = append(problems, errors.New("ticks per serial must be greater than 8"))
	}
	if c.Resolution <= 0 {
		problems = append(problems, errors.New("resolution must be positive"))
	}
	if c.Segments <= 0 {
		problems = append(problems, errors.New("segments must be positive"))
	}
	if c.DeviceTypeI < 0 || c.DeviceTypeIII < 0 || c.CameraTypeI < 0 || c.CameraTypeII < 0 || c.CameraTypeIII < 0 {
		problems = append(problems, errors.New("anomaly counts must not be negative"))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
	}

	perSegment := c.Serials / c.Segments / slotSize
	if perSegment < 3 {
		return fmt.Errorf("%w: %d serials are too few for %d segments", ErrInvalidConfig, c.Serials, c.Segments)
	}
	usable := c.Segments * (perSegment - 2)
	if n := c.DeviceTypeI + c.DeviceTypeIII; n > usable {
		return fmt.Errorf("%w: %d device anomalies but room for %d", ErrInvalidConfig, n, usable)
	}
	if n := c.CameraTypeI + c.CameraTypeII + c.CameraTypeIII; n > usable {
		return fmt.Errorf("%w: %d camera anomalies but room for %d", ErrInvalidConfig, n, usable)
	}
	return nil
}
