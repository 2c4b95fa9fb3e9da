package align

import "errors"

// Sentinel errors for the synchronizer.
var (
	// ErrUnorderedStream is returned when a device or analog stream is not ordered by timestamp.
	ErrUnorderedStream = errors.New("stream is not ordered by timestamp")
	// ErrInvalidFillMode is returned when parsing an unknown fill mode name.
	ErrInvalidFillMode = errors.New("invalid fill mode")
	// ErrNilSource is returned when no analog source is supplied.
	ErrNilSource = errors.New("analog source is nil")
)
