package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for this package.
var (
	// ErrNoOverlap is returned when no camera segment shares serials with the device.
	ErrNoOverlap = errors.New("no camera segment overlaps the device serial range")
	// ErrJobsFailed is returned by RunAll when at least one job failed.
	ErrJobsFailed = errors.New("jobs failed")
)

// Pipeline stages, used in RecordingError and stage latency metrics.
const (
	StageQueue   = "queue"
	StageLoad    = "load"
	StageDecode  = "decode"
	StageRepair  = "repair"
	StageCamera  = "camera"
	StageSync    = "sync"
	StagePersist = "persist"
	StageExport  = "export"
)

// RecordingError is the single error a failed job reports.
type RecordingError struct {
	Job   string
	Stage string
	Err   error
}

func (e *RecordingError) Error() string {
	return fmt.Sprintf("job %s: %s: %v", e.Job, e.Stage, e.Err)
}

// Unwrap returns the stage error.
func (e *RecordingError) Unwrap() error { return e.Err }
