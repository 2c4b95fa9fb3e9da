package repair

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/videosync/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// seq returns from, from+step, ... while below to.
func seq(from, to, step int64) []int64 {
	var out []int64
	for v := from; v < to; v += step {
		out = append(out, v)
	}
	return out
}

func join(parts ...[]int64) []int64 {
	var out []int64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func vals(v ...int64) []int64 { return v }

func newTestRepairer() *Repairer {
	r, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return r
}

func TestFixDiscontinuities(t *testing.T) {
	Convey("Given the simple Type I/II fixer", t, func() {
		cases := []struct {
			name string
			in   []int64
			want []int64
		}{
			{"two type I zeros", vals(1, 2, 3, 0, 5, 6, 7, 0, 9), vals(1, 2, 3, 4, 5, 6, 7, 8, 9)},
			{"type I then type II", vals(10, 11, 0, 13, 14, 0, 1, 2, 3, 4, 0, 21), seq(10, 22, 1)},
			{"type II reset run", vals(5, 6, 7, 8, 0, 1, 2, 3, 4), seq(5, 14, 1)},
			{"alternating zeros", vals(2, 0, 4, 0, 6), vals(2, 3, 4, 5, 6)},
			{"trailing zero", vals(1, 2, 3, 4, 0), vals(1, 2, 3, 4, 0)},
		}
		for _, c := range cases {
			Convey("When fixing "+c.name, func() {
				So(FixDiscontinuities(c.in), ShouldResemble, c.want)
			})
		}

		Convey("When fixing an empty array", func() {
			So(FixDiscontinuities(nil), ShouldBeEmpty)
		})

		Convey("When the input is fixed it should not be modified", func() {
			in := vals(1, 0, 3)
			_ = FixDiscontinuities(in)
			So(in, ShouldResemble, vals(1, 0, 3))
		})
	})
}

func TestFixTypeI(t *testing.T) {
	Convey("Given the Type I pass", t, func() {
		cases := []struct {
			name string
			in   []int64
			want []int64
		}{
			{"single gap", vals(100, 0, 102), vals(100, 101, 102)},
			{"two gaps", vals(100, 0, 102, 0, 104), vals(100, 101, 102, 103, 104)},
			{"gap not two", vals(100, 0, 103), vals(100, 0, 103)},
			{"zero at edge", vals(0, 2), vals(0, 2)},
			{"no zeros", vals(1, 2, 3, 4), vals(1, 2, 3, 4)},
			{"single zero", vals(0), vals(0)},
			{"single value", vals(42), vals(42)},
			{"consecutive zeros", vals(200, 0, 0, 203), vals(200, 0, 0, 203)},
			{"second gap too wide", vals(10, 0, 12, 0, 15), vals(10, 11, 12, 0, 15)},
		}
		for _, c := range cases {
			Convey("When fixing "+c.name, func() {
				So(FixTypeI(c.in), ShouldResemble, c.want)
			})
		}
		So(FixTypeI(nil), ShouldBeEmpty)
	})
}

func TestFixTypeIV(t *testing.T) {
	Convey("Given the Type IV pass with threshold 128", t, func() {
		cases := []struct {
			name string
			in   []int64
			want []int64
		}{
			{"all small", vals(0, 1, 2, 3), vals(0, 1, 2, 3)},
			{"all small unordered", vals(50, 127, 10), vals(50, 127, 10)},
			{"single real", vals(129), vals(129)},
			{"leading sentinels", vals(0, 0, 130, 131, 132), vals(128, 129, 130, 131, 132)},
			{"mixed sentinels", vals(5, 10, 200, 201, 0, 202), vals(198, 199, 200, 201, -1, 202)},
			{"interior after leading", vals(0, 0, 130, 0, 131), vals(128, 129, 130, -1, 131)},
			{"first real at one", vals(127, 128), vals(127, 128)},
		}
		for _, c := range cases {
			Convey("When fixing "+c.name, func() {
				So(FixTypeIV(c.in, 128), ShouldResemble, c.want)
			})
		}
		So(FixTypeIV(nil, 128), ShouldBeEmpty)
	})
}

func TestHeuristic(t *testing.T) {
	ctx := context.Background()

	Convey("Given the combined heuristic", t, func() {
		r := newTestRepairer()

		cases := []struct {
			name string
			in   []int64
			want []int64
		}{
			{"single zero", vals(0), vals(0)},
			{"all unknown", vals(-1, -1, -1, -1, -1), vals(-1, -1, -1, -1, -1)},
			{"small values", vals(1, 2, 3, 4, 5), vals(1, 2, 3, 4, 5)},
			{"type I", vals(20323583, 0, 20323585), seq(20323583, 20323586, 1)},
			{"type I twice", vals(20323583, 0, 20323585, 0, 20323587), seq(20323583, 20323588, 1)},
			{"type II full reset", join(vals(20332543), seq(0, 128, 1), vals(0, 20332673)), seq(20332543, 20332674, 1)},
			{"sparse bounded stretch", join(vals(5537789), seq(3, 124, 3), vals(5537923)), seq(5537789, 5537924, 1)},
			{"type III jumps", vals(20323583, 20323585, 20323589, 20323592), seq(20323583, 20323593, 1)},
			{"type IV two leading", vals(-1, -1, 20323572), seq(20323570, 20323573, 1)},
			{"type IV one leading", vals(-1, 20323572), seq(20323571, 20323573, 1)},
			{"leading sentinels with type I", vals(-1, -1, 20323583, 0, 20323585, 0, 20323587), seq(20323581, 20323588, 1)},
			{
				"combined I, III, IV and II",
				join(vals(-1, -1, 20323583, 0, 20323585, 0, 20323587, 20323588, 20323589, 20323592, 20323597), seq(1, 128, 3), vals(20323723)),
				seq(20323581, 20323724, 1),
			},
			{
				"combined with even reset run",
				join(vals(-1, -1, -1, 20323587, 0, 20323589, 20323592, 20323597), seq(2, 128, 2), vals(20323723)),
				seq(20323584, 20323724, 1),
			},
			{"small leading value", vals(127, 0, 20323585, 20323586, 20323587), seq(20323583, 20323588, 1)},
			{"trailing reset run", join(vals(5685247), seq(0, 127, 1)), seq(5685247, 5685247+128, 1)},
		}
		for _, c := range cases {
			Convey("When repairing "+c.name, func() {
				res, err := r.Heuristic(ctx, c.in)

				Convey("Then the sequence should be repaired", func() {
					So(err, ShouldBeNil)
					So(res.Values, ShouldResemble, c.want)
					So(res.Origins, ShouldHaveLength, len(c.want))
					So(res.Sources, ShouldHaveLength, len(c.want))
				})
			})
		}

		Convey("When the input is empty", func() {
			res, err := r.Heuristic(ctx, nil)
			So(err, ShouldBeNil)
			So(res.Len(), ShouldEqual, 0)
			So(res.Report.Total(), ShouldEqual, 0)
		})

		Convey("When two zeros remain adjacent", func() {
			_, err := r.Heuristic(ctx, vals(200, 0, 0, 203))

			Convey("Then it should fail loudly", func() {
				So(errors.Is(err, ErrAdjacentZeros), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "positions 1 and 2")
			})
		})

		Convey("When jumps are classified", func() {
			res, err := r.Heuristic(ctx, vals(20323583, 20323585, 20323589, 20323592))

			Convey("Then the jump histogram should count each size", func() {
				So(err, ShouldBeNil)
				So(res.Report.Counts[model.TypeIII], ShouldEqual, 3)
				So(res.Report.Jumps, ShouldResemble, map[int64]int{2: 1, 4: 1, 3: 1})
				So(res.Report.Inserted, ShouldEqual, 6)
				So(res.Sources[1], ShouldEqual, -1)
				So(res.Origins[1], ShouldEqual, OriginTypeIII)
			})
		})

		Convey("When a full reset run closes with a zero", func() {
			in := join(vals(20332543), seq(0, 128, 1), vals(0, 20332673))
			res, err := r.Heuristic(ctx, in)

			Convey("Then the run is Type II and the closing zero Type I", func() {
				So(err, ShouldBeNil)
				So(res.Report.Counts[model.TypeII], ShouldEqual, 1)
				So(res.Report.Counts[model.TypeI], ShouldEqual, 1)
				So(res.Origins[1], ShouldEqual, OriginTypeII)
				So(res.Origins[129], ShouldEqual, OriginTypeI)
				So(res.Report.Inserted, ShouldEqual, 0)
			})
		})

		Convey("When an interior stretch does not fit between its bounds", func() {
			res, err := r.Heuristic(ctx, vals(200, 5, 6, 201, 202))

			Convey("Then it should be marked unknown, never guessed", func() {
				So(err, ShouldBeNil)
				So(res.Values, ShouldResemble, vals(200, -1, -1, 201, 202))
				So(res.Report.Unknown, ShouldEqual, 2)
				So(res.Report.Anomalies, ShouldHaveLength, 1)
				So(res.Report.Anomalies[0].Kind, ShouldEqual, model.TypeIV)
				So(res.Report.Anomalies[0].Unresolved, ShouldBeTrue)
			})
		})

		Convey("When a bounded sentinel sits between valid values", func() {
			res, err := r.Heuristic(ctx, vals(300, -1, 302))

			Convey("Then it should be filled as a bounded Type IV", func() {
				So(err, ShouldBeNil)
				So(res.Values, ShouldResemble, vals(300, 301, 302))
				So(res.Origins[1], ShouldEqual, OriginTypeIV)
			})
		})

		Convey("When a bounded code that is not a reset run sits between valid values", func() {
			res, err := r.Heuristic(ctx, vals(200, 5, 202))

			Convey("Then it should be counted as Type IV", func() {
				So(err, ShouldBeNil)
				So(res.Values, ShouldResemble, vals(200, 201, 202))
				So(res.Origins, ShouldResemble, []Origin{OriginReal, OriginTypeIV, OriginReal})
				So(res.Report.Counts[model.TypeIV], ShouldEqual, 1)
				So(res.Report.Counts[model.TypeII], ShouldEqual, 0)
			})
		})

		Convey("When a lone zero precedes a jump", func() {
			res, err := r.Heuristic(ctx, vals(200, 0, 205))

			Convey("Then the zero should be Type I and the rest a Type III insert", func() {
				So(err, ShouldBeNil)
				So(res.Values, ShouldResemble, seq(200, 206, 1))
				So(res.Origins, ShouldResemble, []Origin{OriginReal, OriginTypeI, OriginTypeIII, OriginTypeIII, OriginTypeIII, OriginReal})
				So(res.Report.Counts[model.TypeI], ShouldEqual, 1)
				So(res.Report.Counts[model.TypeIII], ShouldEqual, 1)
				So(res.Report.Counts[model.TypeII], ShouldEqual, 0)
				So(res.Report.Jumps, ShouldResemble, map[int64]int{4: 1})
			})
		})

		Convey("When a sparse run does not start at zero", func() {
			res, err := r.Heuristic(ctx, join(vals(5537789), seq(3, 124, 3), vals(5537923)))

			Convey("Then it should be a bounded Type IV stretch", func() {
				So(err, ShouldBeNil)
				So(res.Report.Counts[model.TypeIV], ShouldEqual, 1)
				So(res.Report.Counts[model.TypeII], ShouldEqual, 0)
				So(res.Origins[1], ShouldEqual, OriginTypeIV)
			})
		})

		Convey("When trailing values are not a reset run", func() {
			res, err := r.Heuristic(ctx, vals(300, 301, 7, 3))

			Convey("Then they should become unknown", func() {
				So(err, ShouldBeNil)
				So(res.Values, ShouldResemble, vals(300, 301, -1, -1))
			})
		})

		Convey("When valid values repeat or go backwards", func() {
			res, err := r.Heuristic(ctx, vals(300, 300, 301, 299))

			Convey("Then they should be kept and counted", func() {
				So(err, ShouldBeNil)
				So(res.Values, ShouldResemble, vals(300, 300, 301, 299))
				So(res.Report.Duplicates, ShouldEqual, 1)
				So(res.Report.Regressions, ShouldEqual, 1)
			})
		})

		Convey("When a jump exceeds the insert cap", func() {
			cfg := DefaultConfig()
			cfg.MaxInsert = 10
			capped, err := New(cfg)
			So(err, ShouldBeNil)

			res, err := capped.Heuristic(ctx, vals(300, 400))

			Convey("Then the jump should be flagged and left open", func() {
				So(err, ShouldBeNil)
				So(res.Values, ShouldResemble, vals(300, 400))
				So(res.Report.Anomalies[0].Unresolved, ShouldBeTrue)
				So(*res.Report.Anomalies[0].JumpSize, ShouldEqual, 100)
			})
		})
	})
}

func TestHeuristicProperties(t *testing.T) {
	ctx := context.Background()
	inputs := [][]int64{
		vals(-1, -1, 20323583, 0, 20323585, 0, 20323587),
		join(vals(-1, -1, 20323583, 0, 20323585, 0, 20323587, 20323588, 20323589, 20323592, 20323597), seq(1, 128, 3), vals(20323723)),
		join(vals(20332543), seq(0, 128, 1), vals(0, 20332673)),
		join(vals(5685247), seq(0, 127, 1)),
		vals(20323583, 20323585, 20323589, 20323592),
		vals(200, 5, 6, 201, 202, 3, 9),
	}

	Convey("Given repaired sequences", t, func() {
		r := newTestRepairer()

		for i, in := range inputs {
			first, err := r.Heuristic(ctx, in)
			So(err, ShouldBeNil)

			Convey(fmt.Sprintf("Then repairing input %d again should change nothing", i), func() {
				second, err := r.Heuristic(ctx, first.Values)
				So(err, ShouldBeNil)
				So(second.Values, ShouldResemble, first.Values)
				So(second.Report.Total(), ShouldEqual, 0)
			})

			Convey(fmt.Sprintf("Then known values of input %d should step by zero or one", i), func() {
				prev := int64(-1)
				for _, v := range first.Values {
					if v == model.UnknownSerial {
						continue
					}
					if prev >= 0 {
						So(v-prev, ShouldBeBetweenOrEqual, 0, 1)
					}
					prev = v
				}
			})

			if first.Report.Unknown == 0 {
				Convey(fmt.Sprintf("Then kept plus inserted values of input %d should cover the valid range", i), func() {
					lo, hi := first.Values[0], first.Values[len(first.Values)-1]
					So(int64(first.Len()), ShouldEqual, hi-lo+1)
					So(first.Len()-first.Report.Inserted, ShouldEqual, len(in))
				})
			}
		}
	})
}

func TestHeuristicCappedJump(t *testing.T) {
	ctx := context.Background()

	Convey("Given a repairer whose insert cap is below a jump", t, func() {
		cfg := DefaultConfig()
		cfg.MaxInsert = 2
		r, err := New(cfg)
		So(err, ShouldBeNil)

		first, err := r.Heuristic(ctx, vals(200, 210))
		So(err, ShouldBeNil)
		second, err := r.Heuristic(ctx, first.Values)
		So(err, ShouldBeNil)

		Convey("Then a rerun should keep the values and report only the same open jump", func() {
			So(second.Values, ShouldResemble, first.Values)
			So(first.Report.Anomalies, ShouldHaveLength, 1)
			So(second.Report.Anomalies, ShouldResemble, first.Report.Anomalies)
			So(second.Report.Anomalies[0].Unresolved, ShouldBeTrue)
			So(second.Report.Inserted, ShouldEqual, 0)
		})
	})
}

func TestFixWithFill(t *testing.T) {
	ctx := context.Background()

	Convey("Given serials with a companion frame array", t, func() {
		r := newTestRepairer()

		Convey("When a reset run is repaired", func() {
			serials := join(vals(20332543), seq(0, 128, 1), vals(0, 20332673))
			frames := join(vals(10), seq(11, 139, 1), vals(139, 140))

			filled, _, err := r.FixWithFill(ctx, serials, frames, 0)

			Convey("Then reset rows should lose their frames and the closing zero keep it", func() {
				So(err, ShouldBeNil)
				want := join(vals(10), make([]int64, 128), vals(139, 140))
				So(filled, ShouldResemble, want)
			})
		})

		Convey("When jumps are filled", func() {
			filled, res, err := r.FixWithFill(ctx, vals(20323583, 20323585, 20323589, 20323592), vals(101, 102, 103, 104), 0)

			Convey("Then inserted rows should carry the fill value", func() {
				So(err, ShouldBeNil)
				So(filled, ShouldResemble, vals(101, 0, 102, 0, 0, 0, 103, 0, 0, 104))
				So(res.Len(), ShouldEqual, 10)
			})
		})

		Convey("When a bounded sentinel is repaired", func() {
			filled, _, err := r.FixWithFill(ctx, vals(200, 5, 202), vals(7, 8, 9), 0)

			Convey("Then its row should keep its frame", func() {
				So(err, ShouldBeNil)
				So(filled, ShouldResemble, vals(7, 8, 9))
			})
		})

		Convey("When lengths differ", func() {
			_, _, err := r.FixWithFill(ctx, vals(1, 2), vals(1), 0)
			So(errors.Is(err, ErrLengthMismatch), ShouldBeTrue)
		})
	})
}

func TestSamples(t *testing.T) {
	ctx := context.Background()
	origin := time.Date(2024, 4, 16, 22, 0, 0, 0, time.UTC)

	Convey("Given a timestamped serial stream with a jump", t, func() {
		r := newTestRepairer()
		in := []model.SerialSample{
			{Timestamp: 1000, ChunkSerial: 500, WallClock: origin},
			{Timestamp: 1400, ChunkSerial: 504, WallClock: origin.Add(400 * time.Millisecond)},
			{Timestamp: 1500, ChunkSerial: 505, WallClock: origin.Add(500 * time.Millisecond)},
		}

		Convey("When repairing it", func() {
			out, report, err := r.Samples(ctx, in)

			Convey("Then inserted samples should be interpolated across the gap", func() {
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 6)
				So(report.Inserted, ShouldEqual, 3)
				So(out[1].ChunkSerial, ShouldEqual, 501)
				So(out[1].Timestamp, ShouldEqual, 1100)
				So(out[2].Timestamp, ShouldEqual, 1200)
				So(out[3].Timestamp, ShouldEqual, 1300)
				So(out[3].WallClock, ShouldEqual, origin.Add(300*time.Millisecond))
				So(out[4], ShouldResemble, in[1])
			})
		})

		Convey("When a long wall-clock gap is filled with many samples", func() {
			const steps = 100001
			gap := []model.SerialSample{
				{Timestamp: 0, ChunkSerial: 500, WallClock: origin},
				{Timestamp: 10 * steps, ChunkSerial: 500 + steps, WallClock: origin.Add(steps * 1000 * time.Second)},
			}
			out, report, err := r.Samples(ctx, gap)

			Convey("Then interpolation should not overflow", func() {
				So(err, ShouldBeNil)
				So(report.Inserted, ShouldEqual, steps-1)
				So(out[1].WallClock, ShouldEqual, origin.Add(1000*time.Second))
				So(out[50000].WallClock, ShouldEqual, origin.Add(50000*1000*time.Second))
				So(out[steps-1].WallClock, ShouldEqual, origin.Add((steps-1)*1000*time.Second))
				So(out[steps-1].Timestamp, ShouldEqual, 10*(steps-1))
				So(out[steps], ShouldResemble, gap[1])
			})
		})

		Convey("When the stream has adjacent zeros", func() {
			_, _, err := r.Samples(ctx, []model.SerialSample{{ChunkSerial: 300}, {ChunkSerial: 0}, {ChunkSerial: 0}, {ChunkSerial: 303}})
			So(errors.Is(err, ErrAdjacentZeros), ShouldBeTrue)
		})
	})
}

func TestDetect(t *testing.T) {
	Convey("Given a raw serial stream", t, func() {
		Convey("When profiling a stream with every kind of discontinuity", func() {
			p := Detect(vals(10, 11, 0, 13, 14, 0, 1, 2, 5, 6))

			Convey("Then counts and sections should match", func() {
				So(p.TypeI, ShouldEqual, 1)
				So(p.TypeII, ShouldEqual, 1)
				So(p.TypeIII, ShouldEqual, 1)
				So(p.Sections, ShouldResemble, []int{2, 2, 2, 2})
				So(p.LongestSection(), ShouldEqual, 2)
			})
		})

		Convey("When profiling an empty stream", func() {
			So(Detect(nil).Sections, ShouldBeEmpty)
		})
	})
}

func TestConfig(t *testing.T) {
	Convey("Given repair configurations", t, func() {
		So(DefaultConfig().Validate(), ShouldBeNil)

		bad := DefaultConfig()
		bad.ResetBound = 128
		_, err := New(bad)
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)

		bad = DefaultConfig()
		bad.ValidityThreshold = 0
		So(errors.Is(bad.Validate(), ErrInvalidConfig), ShouldBeTrue)
	})

	Convey("Given reports from two segments", t, func() {
		r := newTestRepairer()
		a, _ := r.Heuristic(context.Background(), vals(300, 302))
		b, _ := r.Heuristic(context.Background(), vals(400, 403))

		merged := newReport()
		merged.Merge(a.Report, 0)
		merged.Merge(b.Report, a.Len())

		So(merged.Counts[model.TypeIII], ShouldEqual, 2)
		So(merged.Jumps, ShouldResemble, map[int64]int{2: 1, 3: 1})
		So(merged.Anomalies[1].Position, ShouldEqual, 3+1)
		So(OriginTypeIII.String(), ShouldEqual, "type_iii")
	})
}
