// Package align joins the device serial stream, the camera stream and the analog
// stream into one record per analog sample.
package align

import (
	"context"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/okian/videosync/internal/domain/model"
	"github.com/okian/videosync/pkg/logger"
)

// Match is one device serial joined with its camera frame.
type Match struct {
	Timestamp       int64
	ChunkSerial     int64
	FrameID         int64
	RelativeFrameID int64
}

// Stats summarizes one Sync call.
type Stats struct {
	DeviceSerials   int
	CameraSerials   int
	Matched         int
	AnalogSamples   int
	ExactSamples    int
	FilledSamples   int
	UnmatchedAnalog int
}

// Synchronizer joins streams on the repaired chunk serial. It holds no mutable state.
type Synchronizer struct {
	fill       FillMode
	log        logger.Logger
	checkEvery int
}

// New creates a Synchronizer.
func New(opts ...Option) *Synchronizer {
	s := &Synchronizer{
		fill:       FillNearest,
		log:        logger.Nop(),
		checkEvery: 1 << 16,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FillMode returns the configured Step B fill.
func (s *Synchronizer) FillMode() FillMode { return s.fill }

// DeviceRange returns the span of known serials in a device stream.
func DeviceRange(device []model.SerialSample) model.SerialRange {
	r := model.SerialRange{From: math.MaxInt64, To: math.MinInt64}
	for _, d := range device {
		if d.Unknown() {
			continue
		}
		r.From = min(r.From, d.ChunkSerial)
		r.To = max(r.To, d.ChunkSerial)
	}
	return r
}

// Join inner-joins device and camera on equal chunk serial. Camera rows outside rng
// are ignored. Each serial maps to its first device timestamp and its first camera
// row, so the output holds at most one match per serial, ordered by device time.
func (s *Synchronizer) Join(device []model.SerialSample, camera CameraStream, rng model.SerialRange) ([]Match, error) {
	frames := make(map[int64]int64, len(camera.Samples))
	for _, cs := range camera.Samples {
		if cs.ChunkSerial == model.UnknownSerial || !rng.Contains(cs.ChunkSerial) {
			continue
		}
		if _, ok := frames[cs.ChunkSerial]; !ok {
			frames[cs.ChunkSerial] = cs.Frame.ReconstructedFrameID
		}
	}

	seen := make(map[int64]struct{}, len(frames))
	matches := make([]Match, 0, len(frames))
	for i, d := range device {
		if i > 0 && d.Timestamp < device[i-1].Timestamp {
			return nil, fmt.Errorf("%w: device sample %d", ErrUnorderedStream, i)
		}
		if d.Unknown() {
			continue
		}
		frame, ok := frames[d.ChunkSerial]
		if !ok {
			continue
		}
		if _, dup := seen[d.ChunkSerial]; dup {
			continue
		}
		seen[d.ChunkSerial] = struct{}{}
		matches = append(matches, Match{
			Timestamp:       d.Timestamp,
			ChunkSerial:     d.ChunkSerial,
			FrameID:         frame,
			RelativeFrameID: frame - camera.FirstFrame + 1,
		})
	}
	return matches, nil
}

// Sync runs the serial join and then walks the analog stream once, bounded to the
// first and last matched timestamps. Analog samples keep their order; samples with
// no exact match are attributed according to the fill mode.
func (s *Synchronizer) Sync(ctx context.Context, device []model.SerialSample, camera CameraStream, rng model.SerialRange, analog AnalogSource) ([]model.SyncedRecord, Stats, error) {
	stats := Stats{DeviceSerials: len(device), CameraSerials: len(camera.Samples)}
	if analog == nil {
		return nil, stats, ErrNilSource
	}

	matches, err := s.Join(device, camera, rng)
	if err != nil {
		return nil, stats, err
	}
	stats.Matched = len(matches)
	if len(matches) == 0 {
		s.log.Warn(ctx, "no serials shared by device and camera",
			logger.Int64("from", rng.From), logger.Int64("to", rng.To))
		return nil, stats, nil
	}

	from, to := matches[0].Timestamp, matches[len(matches)-1].Timestamp
	it, err := analog.Range(ctx, from, to)
	if err != nil {
		return nil, stats, fmt.Errorf("opening analog range: %w", err)
	}
	defer func() { _ = it.Close() }()

	out := make([]model.SyncedRecord, 0, min(to-from+1, 1<<22))
	next := 0
	prevTS := int64(math.MinInt64)
	for it.Next(ctx) {
		a := it.Current()
		if a.Timestamp < prevTS {
			return nil, stats, fmt.Errorf("%w: analog timestamp %d after %d", ErrUnorderedStream, a.Timestamp, prevTS)
		}
		prevTS = a.Timestamp

		for next < len(matches) && matches[next].Timestamp < a.Timestamp {
			next++
		}

		rec := model.SyncedRecord{Timestamp: a.Timestamp, Amplitude: a.Amplitude}
		switch {
		case next < len(matches) && matches[next].Timestamp == a.Timestamp:
			attach(&rec, matches[next])
			stats.ExactSamples++
		case next > 0 && next < len(matches) && s.fill != FillNone:
			s.fillBetween(&rec, matches[next-1], matches[next])
			stats.FilledSamples++
		default:
			stats.UnmatchedAnalog++
		}
		out = append(out, rec)

		stats.AnalogSamples++
		if stats.AnalogSamples%s.checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}
	}
	if err := it.Error(); err != nil {
		return nil, stats, fmt.Errorf("reading analog samples: %w", err)
	}

	s.log.Info(ctx, "synchronized streams",
		logger.String("analog_samples", humanize.Comma(int64(stats.AnalogSamples))),
		logger.Int("matched_serials", stats.Matched),
		logger.Int("exact", stats.ExactSamples),
		logger.Int("filled", stats.FilledSamples),
		logger.String("fill_mode", s.fill.String()))
	return out, stats, nil
}

func attach(rec *model.SyncedRecord, m Match) {
	serial, frame, rel := m.ChunkSerial, m.FrameID, m.RelativeFrameID
	rec.ChunkSerial = &serial
	rec.FrameID = &frame
	rec.RelativeFrameID = &rel
}

// fillBetween attributes a sample strictly between matches p and q.
func (s *Synchronizer) fillBetween(rec *model.SyncedRecord, p, q Match) {
	if s.fill == FillLinear {
		span := float64(q.Timestamp - p.Timestamp)
		frac := float64(rec.Timestamp-p.Timestamp) / span
		frame := p.FrameID + int64(math.Round(frac*float64(q.FrameID-p.FrameID)))
		serial := p.ChunkSerial
		rel := frame - p.FrameID + p.RelativeFrameID
		rec.ChunkSerial = &serial
		rec.FrameID = &frame
		rec.RelativeFrameID = &rel
		return
	}
	if rec.Timestamp-p.Timestamp <= q.Timestamp-rec.Timestamp {
		attach(rec, p)
		return
	}
	attach(rec, q)
}
