package decode

import "errors"

// Sentinel errors for the bit-group decoder.
var (
	// ErrMissingSerialChannel is returned when the event stream carries no serial-bit events at all.
	ErrMissingSerialChannel = errors.New("no serial-bit events in digital stream")
	// ErrUnorderedEvents is returned when event timestamps go backwards.
	ErrUnorderedEvents = errors.New("digital events are not ordered by timestamp")
)
