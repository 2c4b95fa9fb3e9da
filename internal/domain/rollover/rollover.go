// Package rollover unwraps fixed-width frame counters into monotonic sequences.
package rollover

import (
	"fmt"

	"github.com/okian/videosync/internal/domain/model"
)

// DefaultModulus is the largest value of the 16-bit camera frame counter.
const DefaultModulus = 65535

// Corrector unwraps a counter whose values run from 0 to Modulus inclusive. The wrap
// period is therefore Modulus+1, so 65535 is followed by 65536 once the raw counter
// returns to 0.
type Corrector struct {
	modulus int64
}

// New creates a Corrector.
func New(modulus int64) (*Corrector, error) {
	if modulus <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidModulus, modulus)
	}
	return &Corrector{modulus: modulus}, nil
}

// Modulus returns the largest raw value.
func (c *Corrector) Modulus() int64 { return c.modulus }

// Period returns the wrap period.
func (c *Corrector) Period() int64 { return c.modulus + 1 }

// Unwrap corrects raw values in one forward pass. A value strictly below its
// predecessor counts as one rollover; equal values do not.
func (c *Corrector) Unwrap(raw []uint16) ([]model.FrameCounterSample, int, error) {
	out := make([]model.FrameCounterSample, len(raw))
	rollovers := int64(0)
	for i, v := range raw {
		if int64(v) > c.modulus {
			return nil, 0, fmt.Errorf("%w: %d at index %d", ErrOutOfRange, v, i)
		}
		if i > 0 && v < raw[i-1] {
			rollovers++
		}
		out[i] = model.FrameCounterSample{
			RawFrameID:           v,
			ReconstructedFrameID: int64(v) + c.Period()*rollovers,
		}
	}
	return out, int(rollovers), nil
}

// Values unwraps and returns only the reconstructed values.
func (c *Corrector) Values(raw []uint16) ([]int64, error) {
	samples, _, err := c.Unwrap(raw)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(samples))
	for i, s := range samples {
		out[i] = s.ReconstructedFrameID
	}
	return out, nil
}
