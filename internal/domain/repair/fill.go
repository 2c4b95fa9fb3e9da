package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/videosync/internal/domain/model"
)

// FixWithFill repairs serials and realigns a companion array (camera frame ids) with
// the result. Companion values survive on rows whose origin keeps them; reset-run
// rows, inserted rows and unknown rows receive fill.
func (r *Repairer) FixWithFill(ctx context.Context, serials, companion []int64, fill int64) ([]int64, Result, error) {
	if len(serials) != len(companion) {
		return nil, Result{}, fmt.Errorf("%w: %d serials, %d companions", ErrLengthMismatch, len(serials), len(companion))
	}
	res, err := r.Heuristic(ctx, serials)
	if err != nil {
		return nil, Result{}, err
	}
	return Realign(res, companion, fill), res, nil
}

// Realign maps companion values from input rows onto the rows of res.
func Realign(res Result, companion []int64, fill int64) []int64 {
	out := make([]int64, res.Len())
	for k := range out {
		src := res.Sources[k]
		if src >= 0 && src < len(companion) && res.Origins[k].KeepsCompanion() {
			out[k] = companion[src]
			continue
		}
		out[k] = fill
	}
	return out
}

// Samples repairs a timestamped serial stream. Inserted samples get timestamps and
// wall clocks linearly interpolated between the surrounding input samples, which
// assumes the serial clock ticks uniformly inside the gap.
func (r *Repairer) Samples(ctx context.Context, in []model.SerialSample) ([]model.SerialSample, Report, error) {
	serials := make([]int64, len(in))
	for i, s := range in {
		serials[i] = s.ChunkSerial
	}
	res, err := r.Heuristic(ctx, serials)
	if err != nil {
		return nil, Report{}, err
	}

	out := make([]model.SerialSample, res.Len())
	for k := 0; k < res.Len(); {
		src := res.Sources[k]
		if src >= 0 {
			out[k] = model.SerialSample{
				Timestamp:   in[src].Timestamp,
				ChunkSerial: res.Values[k],
				WallClock:   in[src].WallClock,
			}
			k++
			continue
		}

		// Inserted runs always sit between two input rows.
		end := k
		for end < res.Len() && res.Sources[end] < 0 {
			end++
		}
		prev, next := in[res.Sources[k-1]], in[res.Sources[end]]
		steps := int64(end - k + 1)
		span := next.Timestamp - prev.Timestamp
		wall := next.WallClock.Sub(prev.WallClock)
		for p := k; p < end; p++ {
			step := int64(p - k + 1)
			out[p] = model.SerialSample{
				Timestamp:   prev.Timestamp + lerp(span, step, steps),
				ChunkSerial: res.Values[p],
				WallClock:   prev.WallClock.Add(time.Duration(lerp(int64(wall), step, steps))),
			}
		}
		k = end
	}
	return out, res.Report, nil
}

// lerp returns d*step/steps without forming the full product, so hour-long gaps
// filled with many values do not overflow.
func lerp(d, step, steps int64) int64 {
	return d/steps*step + d%steps*step/steps
}
