// Package repair classifies and repairs discontinuities in chunk serial streams.
//
// Four anomaly kinds are recognised, in increasing severity of information loss:
// Type I (lone zero), Type II (sub-counter reset run), Type III (jump between valid
// values) and Type IV (small sentinel values). Values that cannot be bounded by two
// valid neighbours are marked with model.UnknownSerial rather than guessed.
package repair

import (
	"context"
	"fmt"

	"github.com/okian/videosync/internal/domain/model"
	"github.com/okian/videosync/pkg/logger"
)

const unknown = model.UnknownSerial

// Config holds the empirically chosen thresholds of the heuristic.
type Config struct {
	// ValidityThreshold is the smallest value treated as a real serial.
	ValidityThreshold int64
	// ResetBound is the largest value a Type II reset run may reach.
	ResetBound int64
	// MaxInsert caps the synthetic values inserted into one jump. Larger jumps are
	// recorded as unresolved Type III anomalies and left open.
	MaxInsert int64
}

// DefaultConfig returns the thresholds of the reference hardware.
func DefaultConfig() Config {
	return Config{
		ValidityThreshold: 128,
		ResetBound:        127,
		MaxInsert:         1 << 20,
	}
}

// Validate checks that the thresholds are usable.
func (c Config) Validate() error {
	if c.ValidityThreshold <= 0 {
		return fmt.Errorf("%w: validity threshold %d", ErrInvalidConfig, c.ValidityThreshold)
	}
	if c.ResetBound < 0 || c.ResetBound >= c.ValidityThreshold {
		return fmt.Errorf("%w: reset bound %d", ErrInvalidConfig, c.ResetBound)
	}
	if c.MaxInsert <= 0 {
		return fmt.Errorf("%w: max insert %d", ErrInvalidConfig, c.MaxInsert)
	}
	return nil
}

// Repairer runs the combined heuristic with a fixed configuration. It holds no
// mutable state and may be shared between goroutines.
type Repairer struct {
	cfg    Config
	log    logger.Logger
	stream string
}

// New creates a Repairer.
func New(cfg Config, opts ...Option) (*Repairer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Repairer{
		cfg:    cfg,
		log:    logger.Nop(),
		stream: "serial",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the repairer configuration.
func (r *Repairer) Config() Config { return r.cfg }

// Result is a repaired sequence. Origins and Sources run parallel to Values; Sources
// holds the input index of each value or -1 for inserted values.
type Result struct {
	Values  []int64
	Origins []Origin
	Sources []int
	Report  Report
}

// Len returns the number of output values.
func (res Result) Len() int { return len(res.Values) }

func (res *Result) emit(v int64, o Origin, src int) {
	res.Values = append(res.Values, v)
	res.Origins = append(res.Origins, o)
	res.Sources = append(res.Sources, src)
	switch o {
	case OriginTypeIII:
		res.Report.Inserted++
	case OriginUnknown:
		res.Report.Unknown++
	}
}

func (r *Repairer) valid(v int64) bool { return v >= r.cfg.ValidityThreshold }

// Heuristic repairs a serial sequence. Type I zeros and leading Type IV sentinels are
// resolved first; then every stretch between two valid values is classified as a
// Type II reset run, a bounded Type IV run or a Type III jump and filled with the
// arithmetic continuation. Stretches that do not fit between their bounds and
// trailing values that are not a reset run become unknown markers.
//
// An empty input yields an empty result. A sequence that never reaches the validity
// threshold is returned unchanged.
func (r *Repairer) Heuristic(ctx context.Context, in []int64) (Result, error) {
	res := Result{Report: newReport()}
	n := len(in)
	if n == 0 {
		return res, nil
	}

	vals := append([]int64(nil), in...)
	origins := make([]Origin, n)
	anchor := make([]bool, n)

	first := firstValid(vals, r.cfg.ValidityThreshold)
	if first < 0 {
		for i, v := range vals {
			o := OriginReal
			if v == unknown {
				o = OriginUnknown
			}
			res.emit(v, o, i)
		}
		return res, nil
	}
	for i, v := range vals {
		anchor[i] = r.valid(v)
	}

	fixTypeI(vals, r.valid, func(i int) {
		origins[i] = OriginTypeI
		anchor[i] = true
		res.Report.add(model.AnomalyRecord{Kind: model.TypeI, Position: i, GapLength: 1})
	})

	r.fixLeading(ctx, vals, origins, anchor, first, &res.Report)

	if err := checkAdjacentZeros(vals, anchor); err != nil {
		r.log.Error(ctx, "unmodeled anomaly", logger.String("stream", r.stream), logger.Error(err))
		return Result{}, err
	}

	last := -1
	for j := 0; j < n; j++ {
		if !anchor[j] {
			if last < 0 {
				res.emit(vals[j], origins[j], j)
			}
			continue
		}
		if last >= 0 {
			r.bridge(ctx, &res, vals, last, j)
		}
		res.emit(vals[j], origins[j], j)
		last = j
	}
	r.tail(ctx, &res, vals, last)

	if res.Report.Total() > 0 {
		r.log.Debug(ctx, "repaired serial stream",
			logger.String("stream", r.stream),
			logger.Int("input", n),
			logger.Int("output", res.Len()),
			logger.Int("anomalies", res.Report.Total()),
			logger.Int("inserted", res.Report.Inserted),
			logger.Int("unknown", res.Report.Unknown))
	}
	return res, nil
}

// fixLeading counts backward from the first valid value. Positions that would go
// negative become unknown markers.
func (r *Repairer) fixLeading(ctx context.Context, vals []int64, origins []Origin, anchor []bool, first int, rep *Report) {
	if first == 0 {
		return
	}
	changed, unresolved := 0, 0
	for k := 0; k < first; k++ {
		v := vals[first] - int64(first-k)
		if v < 0 {
			if vals[k] != unknown {
				unresolved++
			}
			vals[k] = unknown
			origins[k] = OriginUnknown
			continue
		}
		if vals[k] != v {
			changed++
		}
		vals[k] = v
		origins[k] = OriginTypeIV
		anchor[k] = true
	}
	if changed > 0 {
		rep.add(model.AnomalyRecord{Kind: model.TypeIV, Position: 0, GapLength: first})
	}
	if unresolved > 0 {
		rep.add(model.AnomalyRecord{Kind: model.TypeIV, Position: 0, GapLength: unresolved, Unresolved: true})
		r.log.Warn(ctx, "leading sentinels left unknown",
			logger.String("stream", r.stream), logger.Int("count", unresolved))
	}
}

func checkAdjacentZeros(vals []int64, anchor []bool) error {
	for i := 0; i+1 < len(vals); i++ {
		if vals[i] == 0 && vals[i+1] == 0 && !anchor[i] && !anchor[i+1] {
			return fmt.Errorf("%w: positions %d and %d", ErrAdjacentZeros, i, i+1)
		}
	}
	return nil
}

// bridge emits everything strictly between the valid values at i and j.
func (r *Repairer) bridge(ctx context.Context, res *Result, vals []int64, i, j int) {
	lo, hi := vals[i], vals[j]
	d := hi - lo
	m := j - i - 1

	if m == 0 {
		switch {
		case d == 1:
		case d == 0:
			res.Report.Duplicates++
		case d < 0:
			res.Report.Regressions++
			r.log.Warn(ctx, "serial goes backwards",
				logger.String("stream", r.stream), logger.Int("position", j),
				logger.Int64("from", lo), logger.Int64("to", hi))
		default:
			r.insert(ctx, res, lo, hi, j)
		}
		return
	}

	interior := vals[i+1 : j]
	if d < int64(m+1) {
		already := true
		for k := range interior {
			if interior[k] != unknown {
				already = false
			}
			res.emit(unknown, OriginUnknown, i+1+k)
		}
		if !already {
			res.Report.add(model.AnomalyRecord{Kind: model.TypeIV, Position: i + 1, GapLength: m, Unresolved: true})
			r.log.Warn(ctx, "stretch does not fit between its bounds",
				logger.String("stream", r.stream), logger.Int("position", i+1),
				logger.Int("length", m), logger.Int64("from", lo), logger.Int64("to", hi))
		}
		return
	}

	extra := d - 1 - int64(m)

	// x, 0, y with room for more than one value: a lone zero ahead of a jump.
	if m == 1 && interior[0] == 0 {
		res.emit(lo+1, OriginTypeI, i+1)
		res.Report.add(model.AnomalyRecord{Kind: model.TypeI, Position: i + 1, GapLength: 1})
		r.insert(ctx, res, lo+1, hi, j)
		return
	}

	kind, origin := model.TypeIV, OriginTypeIV
	if r.resetRun(interior) {
		kind, origin = model.TypeII, OriginTypeII
	}

	// x, 0, 1, ..., k, 0, y with an exact fit: the closing zero sits between k's
	// continuation and y like a Type I zero and keeps its companion data.
	closing := kind == model.TypeII && m >= 2 && interior[m-1] == 0 && extra == 0
	for k := 0; k < m; k++ {
		o := origin
		if closing && k == m-1 {
			o = OriginTypeI
		}
		res.emit(lo+int64(k+1), o, i+1+k)
	}
	if closing {
		res.Report.add(model.AnomalyRecord{Kind: model.TypeII, Position: i + 1, GapLength: m - 1})
		res.Report.add(model.AnomalyRecord{Kind: model.TypeI, Position: j - 1, GapLength: 1})
	} else {
		res.Report.add(model.AnomalyRecord{Kind: kind, Position: i + 1, GapLength: m})
	}

	if extra > 0 {
		r.insert(ctx, res, lo+int64(m), hi, j)
	}
}

// resetRun reports whether a stretch is a sub-counter reset: it starts 0, 1 and
// stays within the reset bound. Other bounded values are sentinels.
func (r *Repairer) resetRun(interior []int64) bool {
	if len(interior) < 2 || interior[0] != 0 || interior[1] != 1 {
		return false
	}
	for _, v := range interior {
		if v < 0 || v > r.cfg.ResetBound {
			return false
		}
	}
	return true
}

// insert fills the open interval (from, to) ahead of input position pos.
func (r *Repairer) insert(ctx context.Context, res *Result, from, to int64, pos int) {
	jump := to - from
	gap := jump - 1
	if gap > r.cfg.MaxInsert {
		res.Report.add(model.AnomalyRecord{Kind: model.TypeIII, Position: pos, GapLength: 0, JumpSize: &jump, Unresolved: true})
		r.log.Warn(ctx, "jump too large to fill",
			logger.String("stream", r.stream), logger.Int("position", pos), logger.Int64("jump", jump))
		return
	}
	for v := from + 1; v < to; v++ {
		res.emit(v, OriginTypeIII, -1)
	}
	res.Report.add(model.AnomalyRecord{Kind: model.TypeIII, Position: pos, GapLength: int(gap), JumpSize: &jump})
}

// tail handles values after the last valid one. A reset run 0, 1, 2, ... of at least
// two values is continued; anything else becomes unknown.
func (r *Repairer) tail(ctx context.Context, res *Result, vals []int64, last int) {
	rest := vals[last+1:]
	if len(rest) == 0 {
		return
	}

	p := 0
	for p < len(rest) && rest[p] == int64(p) && rest[p] <= r.cfg.ResetBound {
		p++
	}
	if p >= 2 {
		for k := 0; k < p; k++ {
			res.emit(vals[last]+int64(k+1), OriginTypeII, last+1+k)
		}
		res.Report.add(model.AnomalyRecord{Kind: model.TypeII, Position: last + 1, GapLength: p})
	} else {
		p = 0
	}

	rest = rest[p:]
	if len(rest) == 0 {
		return
	}
	already := true
	for k, v := range rest {
		if v != unknown {
			already = false
		}
		res.emit(unknown, OriginUnknown, last+1+p+k)
	}
	if !already {
		res.Report.add(model.AnomalyRecord{Kind: model.TypeIV, Position: last + 1 + p, GapLength: len(rest), Unresolved: true})
		r.log.Warn(ctx, "trailing values left unknown",
			logger.String("stream", r.stream), logger.Int("position", last+1+p), logger.Int("length", len(rest)))
	}
}
