package simulate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/videosync/internal/adapters/camlog"
	"github.com/okian/videosync/internal/config"
	"github.com/okian/videosync/internal/domain/model"
	"github.com/okian/videosync/pkg/logger"
)

const (
	decoyCamera         = "00000000"
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Store receives the device side of a dataset.
type Store interface {
	PutRecording(ctx context.Context, rec model.Recording, sourcePath string) error
	PutDigitalEvents(ctx context.Context, recordingID string, events []model.RawDigitalEvent) error
	PutAnalogSamples(ctx context.Context, recordingID, channel string, samples []model.AnalogSample) error
}

// Write stores the device streams and writes one session log per segment into dir.
// It returns a job that synchronizes the dataset.
func (d *Dataset) Write(ctx context.Context, store Store, channel, dir string) (config.Job, error) {
	job := config.Job{
		Name:         d.Config.Recording,
		Recording:    d.Config.Recording,
		CameraSerial: d.Config.Camera,
	}

	if err := store.PutRecording(ctx, d.Recording, "simulated"); err != nil {
		return job, fmt.Errorf("storing recording: %w", err)
	}
	if err := store.PutDigitalEvents(ctx, d.Recording.ID, d.Events); err != nil {
		return job, fmt.Errorf("storing digital events: %w", err)
	}
	if err := store.PutAnalogSamples(ctx, d.Recording.ID, channel, d.Analog); err != nil {
		return job, fmt.Errorf("storing analog samples: %w", err)
	}

	if err := os.MkdirAll(dir, directoryPermission); err != nil {
		return job, fmt.Errorf("creating log dir: %w", err)
	}
	for k, seg := range d.Segments {
		// The decoy column shares serials but not frames, so picking the wrong
		// column shows up as frame mismatches.
		decoy := make([]model.CameraLogRow, len(seg.Rows))
		for i, r := range seg.Rows {
			decoy[i] = model.CameraLogRow{ChunkSerial: r.ChunkSerial, FrameID: uint16(i)}
		}

		var buf bytes.Buffer
		if err := camlog.Write(&buf, []string{decoyCamera, d.Config.Camera}, [][]model.CameraLogRow{decoy, seg.Rows}); err != nil {
			return job, fmt.Errorf("encoding segment %d: %w", k, err)
		}
		started := d.Config.Origin.Add(time.Duration(k) * time.Minute)
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", d.Config.Recording, started.Format("20060102_150405")))
		if err := os.WriteFile(path, buf.Bytes(), filePermission); err != nil {
			return job, fmt.Errorf("writing segment %d: %w", k, err)
		}
		job.CameraLogs = append(job.CameraLogs, path)
	}

	logger.Get().Info(ctx, "simulated recording written",
		logger.String("recording", d.Recording.ID),
		logger.Int("serials", d.Config.Serials),
		logger.Int("events", len(d.Events)),
		logger.Int("analog_samples", len(d.Analog)),
		logger.Int("segments", len(d.Segments)),
		logger.Any("injected", d.Injected))
	return job, nil
}
