package camlog

import "errors"

var (
	// ErrCameraNotFound is returned when a session log has no column for the camera.
	ErrCameraNotFound = errors.New("camera not found in session log")
	// ErrMalformedLog is returned when a session log cannot be decoded or its arrays disagree.
	ErrMalformedLog = errors.New("malformed session log")
)
