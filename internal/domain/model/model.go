// Package model contains the records passed between pipeline stages.
package model

import (
	"time"
)

// InsertionReason tags why the recording device inserted a digital event.
type InsertionReason uint8

// Insertion reasons as written by the device.
const (
	ReasonExposure  InsertionReason = 1   // camera exposure strobe
	ReasonSerialBit InsertionReason = 129 // one 7-bit digit of a chunk serial
)

// UnknownSerial marks a position the repairer refused to guess.
const UnknownSerial int64 = -1

// RawDigitalEvent is one record from the device digital I/O channel.
type RawDigitalEvent struct {
	Timestamp int64
	Reason    InsertionReason
	RawValue  uint16
}

// SerialSample is a decoded chunk serial on the device clock.
type SerialSample struct {
	Timestamp   int64
	ChunkSerial int64
	WallClock   time.Time
}

// Unknown reports whether the serial carries the unknown marker.
func (s SerialSample) Unknown() bool { return s.ChunkSerial == UnknownSerial }

// FrameCounterSample pairs a raw wrapping frame counter with its unwrapped value.
type FrameCounterSample struct {
	RawFrameID           uint16
	ReconstructedFrameID int64
}

// AnalogSample is one amplitude reading of a named channel.
type AnalogSample struct {
	Timestamp int64
	Amplitude int16
}

// CameraLogRow is one (chunk serial, frame id) pair from a capture-session log.
type CameraLogRow struct {
	ChunkSerial int64
	FrameID     uint16
}

// CameraSample is a repaired camera-side row.
type CameraSample struct {
	ChunkSerial int64
	Frame       FrameCounterSample
}

// SyncedRecord attributes one analog sample to a camera frame, if any.
// Nil pointers mean no camera event maps to the sample. Segment names the camera
// segment the sample was synchronized against; frame ids restart in every segment.
type SyncedRecord struct {
	Timestamp       int64
	Amplitude       int16
	ChunkSerial     *int64
	FrameID         *int64
	RelativeFrameID *int64
	Segment         string
}

// HasFrame reports whether the record is attributed to a frame.
func (r SyncedRecord) HasFrame() bool { return r.FrameID != nil }

// Recording identifies one device file set and its clock.
type Recording struct {
	ID    string
	Clock ClockConfig
}

// SerialRange is an inclusive chunk serial interval.
type SerialRange struct {
	From int64
	To   int64
}

// Contains reports whether serial lies in the range.
func (r SerialRange) Contains(serial int64) bool {
	return serial >= r.From && serial <= r.To
}

// Overlaps reports whether two ranges share at least one serial.
func (r SerialRange) Overlaps(o SerialRange) bool {
	return r.From <= o.To && o.From <= r.To
}

// Empty reports whether the range holds no serial.
func (r SerialRange) Empty() bool { return r.To < r.From }
