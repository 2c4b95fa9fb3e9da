package align

import (
	"fmt"
	"strings"
)

// FillMode selects how analog samples between two matched events are attributed.
type FillMode int

// Fill modes.
const (
	// FillNearest attributes a sample to the nearer matched event; ties go to the earlier one.
	FillNearest FillMode = iota
	// FillLinear interpolates the frame id between the surrounding events and rounds it.
	FillLinear
	// FillNone keeps samples without an exact timestamp match unattributed.
	FillNone
)

func (m FillMode) String() string {
	switch m {
	case FillNearest:
		return "nearest"
	case FillLinear:
		return "linear"
	case FillNone:
		return "none"
	default:
		return fmt.Sprintf("FillMode(%d)", int(m))
	}
}

// ParseFillMode parses "nearest", "linear" or "none".
func ParseFillMode(s string) (FillMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nearest":
		return FillNearest, nil
	case "linear", "interpolate":
		return FillLinear, nil
	case "none":
		return FillNone, nil
	default:
		return FillNearest, fmt.Errorf("%w: %q", ErrInvalidFillMode, s)
	}
}
