package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrClosed      = errors.New("store is closed")
	ErrInvalidData = errors.New("invalid data")
)
