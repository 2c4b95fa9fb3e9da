package align

import (
	"context"
	"fmt"

	"github.com/okian/videosync/internal/domain/model"
	"github.com/okian/videosync/internal/domain/repair"
	"github.com/okian/videosync/internal/domain/rollover"
)

// CameraStream is the repaired camera side of one capture segment.
type CameraStream struct {
	Samples []model.CameraSample
	// FirstFrame is the reconstructed id of the segment's first logged frame; relative
	// frame ids count from it.
	FirstFrame int64
	Rollovers  int
	Report     repair.Report
	Dropped    int // rows without a trustworthy serial or frame
}

// Range returns the serial span of the stream.
func (s CameraStream) Range() model.SerialRange {
	if len(s.Samples) == 0 {
		return model.SerialRange{From: 1, To: 0}
	}
	r := model.SerialRange{From: s.Samples[0].ChunkSerial, To: s.Samples[0].ChunkSerial}
	for _, cs := range s.Samples[1:] {
		if cs.ChunkSerial < r.From {
			r.From = cs.ChunkSerial
		}
		if cs.ChunkSerial > r.To {
			r.To = cs.ChunkSerial
		}
	}
	return r
}

// CameraBuilder turns raw capture-log rows into a CameraStream.
type CameraBuilder struct {
	repairer  *repair.Repairer
	corrector *rollover.Corrector
}

// NewCameraBuilder creates a builder from a repairer and a frame counter corrector.
func NewCameraBuilder(r *repair.Repairer, c *rollover.Corrector) *CameraBuilder {
	return &CameraBuilder{repairer: r, corrector: c}
}

const noFrame = -1

// Build unwraps the frame counter, repairs the serials and realigns the frames with
// them. Rows whose serial is unknown, and synthetic rows that carry no logged frame,
// are dropped.
func (b *CameraBuilder) Build(ctx context.Context, rows []model.CameraLogRow) (CameraStream, error) {
	var stream CameraStream
	if len(rows) == 0 {
		return stream, nil
	}

	raw := make([]uint16, len(rows))
	serials := make([]int64, len(rows))
	for i, r := range rows {
		raw[i] = r.FrameID
		serials[i] = r.ChunkSerial
	}

	frames, rollovers, err := b.corrector.Unwrap(raw)
	if err != nil {
		return stream, fmt.Errorf("unwrapping frame ids: %w", err)
	}
	stream.FirstFrame = frames[0].ReconstructedFrameID
	stream.Rollovers = rollovers

	reconstructed := make([]int64, len(frames))
	for i, f := range frames {
		reconstructed[i] = f.ReconstructedFrameID
	}

	filled, res, err := b.repairer.FixWithFill(ctx, serials, reconstructed, noFrame)
	if err != nil {
		return stream, fmt.Errorf("repairing camera serials: %w", err)
	}
	stream.Report = res.Report

	stream.Samples = make([]model.CameraSample, 0, len(filled))
	for k, frame := range filled {
		serial := res.Values[k]
		if serial == model.UnknownSerial || frame == noFrame {
			if res.Sources[k] >= 0 {
				stream.Dropped++
			}
			continue
		}
		stream.Samples = append(stream.Samples, model.CameraSample{
			ChunkSerial: serial,
			Frame: model.FrameCounterSample{
				RawFrameID:           frames[res.Sources[k]].RawFrameID,
				ReconstructedFrameID: frame,
			},
		})
	}
	return stream, nil
}
