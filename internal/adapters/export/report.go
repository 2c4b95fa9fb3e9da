package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/videosync/internal/domain/model"
	"github.com/okian/videosync/internal/domain/repair"
	"github.com/okian/videosync/pkg/logger"
)

// StreamReport is the serializable form of a repair.Report.
type StreamReport struct {
	Counts      map[string]int        `yaml:"counts"`
	Jumps       map[int64]int         `yaml:"jumps,omitempty"`
	Inserted    int                   `yaml:"inserted"`
	Unknown     int                   `yaml:"unknown"`
	Duplicates  int                   `yaml:"duplicates"`
	Regressions int                   `yaml:"regressions"`
	Anomalies   []model.AnomalyRecord `yaml:"anomalies,omitempty"`
}

// NewStreamReport converts a repair report. Every anomaly kind gets a count, zero
// included, so reports from different runs share keys.
func NewStreamReport(r repair.Report, withAnomalies bool) StreamReport {
	s := StreamReport{
		Counts:      make(map[string]int, 4),
		Inserted:    r.Inserted,
		Unknown:     r.Unknown,
		Duplicates:  r.Duplicates,
		Regressions: r.Regressions,
	}
	for _, k := range []model.AnomalyKind{model.TypeI, model.TypeII, model.TypeIII, model.TypeIV} {
		s.Counts[k.String()] = r.Counts[k]
	}
	if len(r.Jumps) > 0 {
		s.Jumps = make(map[int64]int, len(r.Jumps))
		for size, n := range r.Jumps {
			s.Jumps[size] = n
		}
	}
	if withAnomalies {
		s.Anomalies = append([]model.AnomalyRecord(nil), r.Anomalies...)
	}
	return s
}

// SegmentReport describes one synchronized camera segment.
type SegmentReport struct {
	Log       string       `yaml:"log"`
	From      int64        `yaml:"serial_from"`
	To        int64        `yaml:"serial_to"`
	Rollovers int          `yaml:"rollovers"`
	Dropped   int          `yaml:"dropped_rows"`
	Matched   int          `yaml:"matched_serials"`
	Exact     int          `yaml:"exact_samples"`
	Filled    int          `yaml:"filled_samples"`
	Unmatched int          `yaml:"unmatched_samples"`
	Camera    StreamReport `yaml:"camera"`
}

// Report is the per-run summary written next to the exported media.
type Report struct {
	Job          string          `yaml:"job"`
	RunID        string          `yaml:"run_id"`
	Recording    string          `yaml:"recording"`
	CameraSerial string          `yaml:"camera_serial"`
	FillMode     string          `yaml:"fill_mode"`
	StartedAt    time.Time       `yaml:"started_at"`
	Elapsed      string          `yaml:"elapsed"`
	Serials      int             `yaml:"device_serials"`
	Records      int             `yaml:"synced_records"`
	Frames       int             `yaml:"frames"`
	Device       StreamReport    `yaml:"device"`
	Segments     []SegmentReport `yaml:"segments"`
	Artifacts    []string        `yaml:"artifacts,omitempty"`
}

// WriteReport writes r as YAML.
func (e *Exporter) WriteReport(ctx context.Context, name string, r Report) (string, error) {
	sort.Strings(r.Artifacts)
	out, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	e.log.Debug(ctx, "wrote report", logger.String("path", path))
	return path, nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (Report, error) {
	var r Report
	b, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("reading report: %w", err)
	}
	if err := yaml.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}
