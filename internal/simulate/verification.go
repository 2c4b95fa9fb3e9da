package simulate

import (
	"errors"
	"fmt"

	"github.com/okian/videosync/internal/domain/model"
)

// ErrMismatch is returned when synced records disagree with the ground truth.
var ErrMismatch = errors.New("synced records disagree with ground truth")

// Verification summarizes a check of pipeline output.
type Verification struct {
	Records    int
	Attributed int // records carrying a chunk serial
	Exact      int // records at a device serial timestamp attributed to that serial
	Checked    int // attributed records whose frame ids were compared
	Mismatches int
	First      string // description of the first mismatch
}

func (v *Verification) fail(format string, args ...any) {
	v.Mismatches++
	if v.First == "" {
		v.First = fmt.Sprintf(format, args...)
	}
}

// Verify compares synced records with the dataset. Every attributed record must carry
// a serial the device emitted; when checkFrames is set its frame and relative frame
// must be the ones the camera logged for that serial. Interpolating fills produce
// frames between two logged ones, so callers disable checkFrames for them.
func (d *Dataset) Verify(records []model.SyncedRecord, checkFrames bool) (Verification, error) {
	v := Verification{Records: len(records)}
	n := d.Config.Serials

	for k, r := range records {
		if k > 0 && r.Timestamp <= records[k-1].Timestamp {
			v.fail("record %d: timestamp %d not after %d", k, r.Timestamp, records[k-1].Timestamp)
		}
		if r.ChunkSerial == nil {
			continue
		}
		v.Attributed++

		i := int(*r.ChunkSerial - d.Config.StartSerial)
		if i < 0 || i >= n {
			v.fail("record %d: serial %d was never emitted", k, *r.ChunkSerial)
			continue
		}
		if r.Timestamp == d.SerialTimestamp(i) {
			v.Exact++
		}
		if !checkFrames {
			continue
		}

		v.Checked++
		if r.FrameID == nil || r.RelativeFrameID == nil {
			v.fail("record %d: serial %d without frame", k, *r.ChunkSerial)
			continue
		}
		if got, want := uint16(*r.FrameID), d.RawFrame(i); got != want {
			v.fail("record %d: serial %d has raw frame %d, want %d", k, *r.ChunkSerial, got, want)
			continue
		}
		seg := d.segmentOf(i)
		if want := int64(i - d.Segments[seg].Start + 1); *r.RelativeFrameID != want {
			v.fail("record %d: serial %d has relative frame %d, want %d", k, *r.ChunkSerial, *r.RelativeFrameID, want)
		}
	}

	if v.Mismatches > 0 {
		return v, fmt.Errorf("%w: %d mismatches, first: %s", ErrMismatch, v.Mismatches, v.First)
	}
	return v, nil
}
