package align

import (
	"context"
	"sort"

	"github.com/okian/videosync/internal/domain/model"
)

// AnalogIterator walks analog samples in timestamp order.
type AnalogIterator interface {
	// Next advances to the next sample. It returns false at the end of data or on error.
	Next(ctx context.Context) bool
	// Current returns the sample Next advanced to.
	Current() model.AnalogSample
	// Error returns the error that stopped iteration, if any.
	Error() error
	// Close releases the iterator.
	Close() error
}

// AnalogSource yields the analog samples of one channel whose timestamps fall in
// [from, to]. Implementations must not materialize samples outside the bound.
type AnalogSource interface {
	Range(ctx context.Context, from, to int64) (AnalogIterator, error)
}

// SliceSource serves samples from an in-memory slice ordered by timestamp.
type SliceSource []model.AnalogSample

// Range locates the bound with binary search.
func (s SliceSource) Range(_ context.Context, from, to int64) (AnalogIterator, error) {
	lo := sort.Search(len(s), func(i int) bool { return s[i].Timestamp >= from })
	hi := sort.Search(len(s), func(i int) bool { return s[i].Timestamp > to })
	if hi < lo {
		hi = lo
	}
	return &sliceIterator{samples: s[lo:hi], pos: -1}, nil
}

type sliceIterator struct {
	samples []model.AnalogSample
	pos     int
	err     error
}

func (it *sliceIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}
	if it.pos+1 >= len(it.samples) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Current() model.AnalogSample { return it.samples[it.pos] }

func (it *sliceIterator) Error() error { return it.err }

func (it *sliceIterator) Close() error { return nil }
