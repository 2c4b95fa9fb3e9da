package export

import "errors"

var (
	// ErrNoRecords is returned when there is nothing to export.
	ErrNoRecords = errors.New("no synced records")
	// ErrNoFrames is returned when no record is attributed to a frame.
	ErrNoFrames = errors.New("no records attributed to a frame")
	// ErrInvalidOption is returned for an unusable exporter setting.
	ErrInvalidOption = errors.New("invalid export option")
)
