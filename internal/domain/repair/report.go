package repair

import (
	"github.com/okian/videosync/internal/domain/model"
)

// Origin tags where an output value came from.
type Origin uint8

// Output origins.
const (
	OriginReal     Origin = iota // input value kept as is
	OriginTypeI                  // lone zero filled
	OriginTypeII                 // reset run replaced by continuation
	OriginTypeIII                // synthetic value inserted into a jump
	OriginTypeIV                 // sentinel resolved from bounding values
	OriginUnknown                // left as the unknown marker
)

var originNames = [...]string{"real", "type_i", "type_ii", "type_iii", "type_iv", "unknown"}

func (o Origin) String() string {
	if int(o) < len(originNames) {
		return originNames[o]
	}
	return "invalid"
}

// KeepsCompanion reports whether a companion value recorded with the input row still
// belongs to this output row.
func (o Origin) KeepsCompanion() bool {
	switch o {
	case OriginReal, OriginTypeI, OriginTypeIV:
		return true
	default:
		return false
	}
}

// Report is the diagnostic output of one repair. All fields are plain numbers so the
// caller can serialize it as a key-value report.
type Report struct {
	Anomalies   []model.AnomalyRecord
	Counts      map[model.AnomalyKind]int
	Jumps       map[int64]int // Type III jump size -> occurrences
	Inserted    int           // synthetic values added
	Unknown     int           // unknown markers in the output
	Duplicates  int           // consecutive equal valid values kept
	Regressions int           // consecutive valid values going backwards, kept
}

func newReport() Report {
	return Report{
		Counts: make(map[model.AnomalyKind]int),
		Jumps:  make(map[int64]int),
	}
}

func (r *Report) add(rec model.AnomalyRecord) {
	r.Anomalies = append(r.Anomalies, rec)
	r.Counts[rec.Kind]++
	if rec.Kind == model.TypeIII && rec.JumpSize != nil {
		r.Jumps[*rec.JumpSize]++
	}
}

// Total returns the number of recorded anomalies.
func (r Report) Total() int { return len(r.Anomalies) }

// Merge folds other into r, shifting other's positions by offset.
func (r *Report) Merge(other Report, offset int) {
	if r.Counts == nil {
		r.Counts = make(map[model.AnomalyKind]int)
	}
	if r.Jumps == nil {
		r.Jumps = make(map[int64]int)
	}
	for _, rec := range other.Anomalies {
		rec.Position += offset
		r.Anomalies = append(r.Anomalies, rec)
	}
	for k, v := range other.Counts {
		r.Counts[k] += v
	}
	for k, v := range other.Jumps {
		r.Jumps[k] += v
	}
	r.Inserted += other.Inserted
	r.Unknown += other.Unknown
	r.Duplicates += other.Duplicates
	r.Regressions += other.Regressions
}
