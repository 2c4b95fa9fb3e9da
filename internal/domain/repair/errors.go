package repair

import "errors"

// Sentinel errors for the discontinuity repairer.
var (
	// ErrAdjacentZeros is returned when two zeros remain adjacent after the Type I and
	// leading Type IV passes. The pattern is outside the known anomaly taxonomy.
	ErrAdjacentZeros = errors.New("adjacent zeros after type I/IV repair")
	// ErrLengthMismatch is returned when a companion array does not line up with its serials.
	ErrLengthMismatch = errors.New("companion length does not match serial length")
	// ErrInvalidConfig is returned for a threshold configuration that cannot classify anything.
	ErrInvalidConfig = errors.New("invalid repair configuration")
)
