// Package decode turns the device digital I/O stream into chunk serials.
//
// The device transmits every chunk serial as GroupSize consecutive serial-bit events,
// each carrying a 7-bit digit. The first event holds the least significant digit.
package decode

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/okian/videosync/internal/domain/model"
	"github.com/okian/videosync/pkg/logger"
)

const (
	// GroupSize is the number of serial-bit events per chunk serial.
	GroupSize = 5
	// DigitBits is the payload width of one serial-bit event.
	DigitBits = 7

	digitMask = 1<<DigitBits - 1
)

// Decoder decodes serial-bit groups using a fixed device clock.
type Decoder struct {
	clock  model.ClockConfig
	log    logger.Logger
	strict bool
}

// Stats summarizes one Decode call.
type Stats struct {
	SerialEvents  int // serial-bit events seen
	Groups        int // groups decoded
	DroppedEvents int // events in runs too short to decode
	BadGroups     int // groups dropped for a digit wider than 7 bits
}

// NewDecoder creates a decoder for one recording clock.
func NewDecoder(clock model.ClockConfig, opts ...Option) *Decoder {
	d := &Decoder{
		clock: clock,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode filters events to serial-bit runs, splits each run into windows of GroupSize,
// and decodes every complete window. The sample timestamp is the first event's timestamp.
func (d *Decoder) Decode(ctx context.Context, events []model.RawDigitalEvent) ([]model.SerialSample, Stats, error) {
	var stats Stats
	if err := d.clock.Validate(); err != nil {
		return nil, stats, fmt.Errorf("decode: %w", err)
	}

	out := make([]model.SerialSample, 0, len(events)/GroupSize)
	runStart := -1
	for i := 0; i <= len(events); i++ {
		if i > 0 && i < len(events) && events[i].Timestamp < events[i-1].Timestamp {
			return nil, stats, fmt.Errorf("%w: index %d", ErrUnorderedEvents, i)
		}
		inRun := i < len(events) && events[i].Reason == model.ReasonSerialBit
		if inRun {
			stats.SerialEvents++
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 {
			out = d.decodeRun(ctx, events[runStart:i], out, &stats)
			runStart = -1
		}
	}

	if stats.SerialEvents == 0 {
		return nil, stats, ErrMissingSerialChannel
	}

	d.log.Info(ctx, "decoded chunk serials",
		logger.String("serials", humanize.Comma(int64(len(out)))),
		logger.Int("serial_events", stats.SerialEvents),
		logger.Int("dropped_events", stats.DroppedEvents),
		logger.Int("bad_groups", stats.BadGroups))
	return out, stats, nil
}

func (d *Decoder) decodeRun(ctx context.Context, run []model.RawDigitalEvent, out []model.SerialSample, stats *Stats) []model.SerialSample {
	if d.strict && len(run) != GroupSize {
		stats.DroppedEvents += len(run)
		d.log.Debug(ctx, "dropping serial run of unexpected length",
			logger.Int("length", len(run)), logger.Int64("timestamp", run[0].Timestamp))
		return out
	}

	full := len(run) - len(run)%GroupSize
	stats.DroppedEvents += len(run) - full
	for g := 0; g < full; g += GroupSize {
		group := run[g : g+GroupSize]
		serial, ok := Digits(group)
		if !ok {
			stats.BadGroups++
			d.log.Warn(ctx, "serial group carries a digit wider than 7 bits",
				logger.Int64("timestamp", group[0].Timestamp))
			continue
		}
		stats.Groups++
		ts := group[0].Timestamp
		out = append(out, model.SerialSample{
			Timestamp:   ts,
			ChunkSerial: serial,
			WallClock:   d.clock.WallClock(ts),
		})
	}
	return out
}

// Digits assembles a chunk serial from 7-bit digits, least significant first.
// It reports false if any digit does not fit in 7 bits.
func Digits(group []model.RawDigitalEvent) (int64, bool) {
	var serial int64
	for k, ev := range group {
		if ev.RawValue > digitMask {
			return 0, false
		}
		serial |= int64(ev.RawValue) << (DigitBits * k)
	}
	return serial, true
}

// Encode splits a serial into GroupSize digits, least significant first.
func Encode(serial int64) [GroupSize]uint16 {
	var digits [GroupSize]uint16
	for k := range digits {
		digits[k] = uint16((serial >> (DigitBits * k)) & digitMask)
	}
	return digits
}
