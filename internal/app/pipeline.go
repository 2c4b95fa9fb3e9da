package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/okian/videosync/internal/adapters/camlog"
	"github.com/okian/videosync/internal/adapters/export"
	"github.com/okian/videosync/internal/adapters/repository"
	"github.com/okian/videosync/internal/config"
	"github.com/okian/videosync/internal/domain/align"
	"github.com/okian/videosync/internal/domain/model"
	"github.com/okian/videosync/internal/domain/repair"
	"github.com/okian/videosync/pkg/logger"
	"github.com/okian/videosync/pkg/metrics"
)

// Outcome is everything one successful job produced.
type Outcome struct {
	Run     repository.Run
	Records []model.SyncedRecord
	Report  export.Report
}

// segment is one camera log synchronized against the device. name identifies
// the segment's video and tags the records synchronized against it.
type segment struct {
	log    string
	name   string
	stream align.CameraStream
	stats  align.Stats
}

// segmentName is the log's base name without its extension, which the camera
// software shares with the segment's video.
func segmentName(log string) string {
	base := filepath.Base(log)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// pipeline carries the state of one job.
type pipeline struct {
	*Service
	job   config.Job
	log   logger.Logger
	start time.Time

	recording model.Recording
	events    []model.RawDigitalEvent
	device    []model.SerialSample
	serials   int
	deviceRep repair.Report
	rng       model.SerialRange
	segments  []segment
	records   []model.SyncedRecord
}

// Run synchronizes one job. It satisfies the worker pool's Runner.
func (s *Service) Run(ctx context.Context, j config.Job) error {
	_, err := s.Process(ctx, j)
	return err
}

// Process synchronizes one job and returns what it produced. A job stores its run
// and publishes its artifacts together or leaves neither behind; a failure is a
// *RecordingError.
func (s *Service) Process(ctx context.Context, j config.Job) (*Outcome, error) {
	p := &pipeline{
		Service: s,
		job:     j,
		log:     s.logger.With(logger.String("job", j.Name), logger.String("recording", j.Recording)),
		start:   time.Now(),
	}

	out, err := p.run(ctx)
	if err != nil {
		metrics.RecordRun("failed")
		return nil, err
	}
	metrics.RecordRun("ok")
	p.log.Info(ctx, "job finished",
		logger.String("run_id", out.Run.ID),
		logger.String("records", humanize.Comma(int64(len(out.Records)))),
		logger.Int("segments", out.Run.Segments),
		logger.Duration("elapsed", time.Since(p.start)))
	return out, nil
}

func (p *pipeline) run(ctx context.Context) (*Outcome, error) {
	steps := []struct {
		stage string
		fn    func(context.Context) error
	}{
		{StageLoad, p.load},
		{StageDecode, p.decode},
		{StageRepair, p.repair},
		{StageCamera, p.camera},
		{StageSync, p.sync},
	}
	for _, st := range steps {
		if err := p.stage(ctx, st.stage, st.fn); err != nil {
			return nil, err
		}
	}

	out := &Outcome{Records: p.records}
	out.Run = repository.Run{
		ID:           uuid.NewString(),
		Job:          p.job.Name,
		RecordingID:  p.recording.ID,
		CameraSerial: p.job.CameraSerial,
		FillMode:     p.FillMode().String(),
		StartedAt:    p.start.UTC(),
		Segments:     len(p.segments),
		Records:      len(p.records),
	}
	for _, seg := range p.segments {
		out.Run.Matched += seg.stats.Matched
	}

	// Artifacts are staged before the run is stored and published after it commits.
	// A failed publication takes the stored run back out.
	var batch *export.Batch
	if p.exporter != nil {
		batch = p.exporter.Begin(out.Run.ID)
	}
	defer batch.Abort(context.WithoutCancel(ctx))

	out.Report = p.report(out.Run)
	if err := p.stage(ctx, StageExport, func(ctx context.Context) error {
		return p.export(ctx, batch, &out.Report)
	}); err != nil {
		return nil, err
	}

	if err := p.stage(ctx, StagePersist, func(ctx context.Context) error {
		out.Run.FinishedAt = time.Now().UTC()
		return p.store.SaveRun(ctx, out.Run, p.anomalies(), p.records)
	}); err != nil {
		return nil, err
	}

	if err := p.stage(ctx, StageExport, func(ctx context.Context) error {
		err := batch.Commit(ctx)
		if err == nil {
			return nil
		}
		if dErr := p.store.DeleteRun(context.WithoutCancel(ctx), out.Run.ID); dErr != nil {
			return errors.Join(err, fmt.Errorf("removing run %s: %w", out.Run.ID, dErr))
		}
		p.log.Warn(ctx, "artifacts not published, run removed", logger.String("run_id", out.Run.ID), logger.Error(err))
		return err
	}); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	metrics.RecordStageLatency(name, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordErrorByComponent("pipeline", name)
		return &RecordingError{Job: p.job.Name, Stage: name, Err: err}
	}
	return nil
}

func (p *pipeline) load(ctx context.Context) error {
	var err error
	if p.recording, err = p.store.Recording(ctx, p.job.Recording); err != nil {
		return fmt.Errorf("loading recording: %w", err)
	}
	if p.events, err = p.store.DigitalEvents(ctx, p.recording.ID); err != nil {
		return fmt.Errorf("loading digital events: %w", err)
	}
	p.log.Debug(ctx, "recording loaded",
		logger.String("events", humanize.Comma(int64(len(p.events)))),
		logger.Any("origin", p.recording.Clock.Origin))
	return nil
}

func (p *pipeline) decode(ctx context.Context) error {
	samples, stats, err := p.decoder(p.recording.Clock).Decode(ctx, p.events)
	if err != nil {
		return err
	}
	metrics.AddSerialsDecoded(len(samples))
	if stats.BadGroups > 0 || stats.DroppedEvents > 0 {
		p.log.Warn(ctx, "serial-bit events dropped while decoding",
			logger.Int("bad_groups", stats.BadGroups),
			logger.Int("dropped_events", stats.DroppedEvents))
	}
	p.device = samples
	p.events = nil
	return nil
}

func (p *pipeline) repair(ctx context.Context) error {
	repaired, rep, err := p.deviceRepairer.Samples(ctx, p.device)
	if err != nil {
		return fmt.Errorf("repairing device serials: %w", err)
	}
	p.device, p.deviceRep = repaired, rep
	p.serials = len(repaired)
	recordAnomalies("device", rep)

	p.rng = align.DeviceRange(p.device)
	if p.rng.Empty() {
		return fmt.Errorf("%w: device stream has no known serial", ErrNoOverlap)
	}
	p.log.Info(ctx, "device stream repaired",
		logger.Int64("serial_from", p.rng.From),
		logger.Int64("serial_to", p.rng.To),
		logger.Int("anomalies", rep.Total()),
		logger.Int("inserted", rep.Inserted))
	return nil
}

// camera opens the session logs in time order and builds a stream for every
// segment that overlaps the device range.
func (p *pipeline) camera(ctx context.Context) error {
	logs := append([]string(nil), p.job.CameraLogs...)
	camlog.SortByTime(logs)
	threshold := p.cfg.ValidityThreshold

	for _, path := range logs {
		if err := ctx.Err(); err != nil {
			return err
		}
		session, err := camlog.Open(path)
		if err != nil {
			return err
		}
		raw, err := session.SerialRange(p.job.CameraSerial, threshold)
		if errors.Is(err, camlog.ErrCameraNotFound) {
			p.log.Warn(ctx, "camera not in session log, skipping", logger.String("log", path))
			continue
		}
		if err != nil {
			return err
		}
		if raw.Empty() || !raw.Overlaps(p.rng) {
			p.log.Warn(ctx, "camera segment does not overlap the device, skipping",
				logger.String("log", path),
				logger.Int64("serial_from", raw.From),
				logger.Int64("serial_to", raw.To))
			continue
		}

		rows, err := session.Camera(p.job.CameraSerial)
		if err != nil {
			return err
		}
		stream, err := p.cameras.Build(ctx, rows)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		recordAnomalies("camera", stream.Report)
		metrics.AddRollovers(stream.Rollovers)
		p.segments = append(p.segments, segment{log: path, name: segmentName(path), stream: stream})
	}

	if len(p.segments) == 0 {
		return fmt.Errorf("%w: %d logs checked", ErrNoOverlap, len(logs))
	}
	return nil
}

func (p *pipeline) sync(ctx context.Context) error {
	analog := p.store.AnalogSource(p.recording.ID, p.cfg.AnalogChannel)
	fill := p.FillMode().String()

	for k := range p.segments {
		seg := &p.segments[k]
		records, stats, err := p.synchronizer.Sync(ctx, p.device, seg.stream, p.rng, analog)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(seg.log), err)
		}
		seg.stats = stats
		metrics.AddSerialsMatched(stats.Matched)
		metrics.AddAnalogSamples(stats.AnalogSamples)
		metrics.AddFilled(fill, stats.FilledSamples)

		// Segments are in time order; a sample already covered by an earlier one is
		// not emitted twice.
		skipped := 0
		for _, r := range records {
			if n := len(p.records); n > 0 && r.Timestamp <= p.records[n-1].Timestamp {
				skipped++
				continue
			}
			r.Segment = seg.name
			p.records = append(p.records, r)
		}
		if skipped > 0 {
			p.log.Warn(ctx, "camera segments overlap in time",
				logger.String("log", seg.log), logger.Int("skipped_samples", skipped))
		}
	}
	metrics.AddSyncedRecords(len(p.records))
	p.device = nil
	return nil
}

func (p *pipeline) anomalies() []repository.RunAnomaly {
	out := make([]repository.RunAnomaly, 0, p.deviceRep.Total())
	for _, a := range p.deviceRep.Anomalies {
		out = append(out, repository.RunAnomaly{Stream: "device", AnomalyRecord: a})
	}
	for _, seg := range p.segments {
		stream := "camera:" + filepath.Base(seg.log)
		for _, a := range seg.stream.Report.Anomalies {
			out = append(out, repository.RunAnomaly{Stream: stream, AnomalyRecord: a})
		}
	}
	return out
}

func (p *pipeline) report(run repository.Run) export.Report {
	r := export.Report{
		Job:          run.Job,
		RunID:        run.ID,
		Recording:    run.RecordingID,
		CameraSerial: run.CameraSerial,
		FillMode:     run.FillMode,
		StartedAt:    run.StartedAt,
		Serials:      p.serials,
		Records:      len(p.records),
		Device:       export.NewStreamReport(p.deviceRep, true),
	}
	for _, seg := range p.segments {
		rng := seg.stream.Range()
		r.Segments = append(r.Segments, export.SegmentReport{
			Log:       filepath.Base(seg.log),
			From:      rng.From,
			To:        rng.To,
			Rollovers: seg.stream.Rollovers,
			Dropped:   seg.stream.Dropped,
			Matched:   seg.stats.Matched,
			Exact:     seg.stats.ExactSamples,
			Filled:    seg.stats.FilledSamples,
			Unmatched: seg.stats.UnmatchedAnalog,
			Camera:    export.NewStreamReport(seg.stream.Report, true),
		})
	}
	return r
}

// export stages the audio track, the frame list and the report. Without records
// only the report is written.
func (p *pipeline) export(ctx context.Context, batch *export.Batch, r *export.Report) error {
	if batch == nil {
		return nil
	}
	if len(p.records) > 0 {
		wav, err := batch.WriteWAV(ctx, p.job.Name+".wav", p.records)
		if err != nil {
			return err
		}
		r.Artifacts = append(r.Artifacts, filepath.Base(wav))

		list, frames, err := batch.WriteConcatList(ctx, p.job.Name+"_frames.txt", p.records, p.recording.Clock.Resolution)
		switch {
		case errors.Is(err, export.ErrNoFrames):
			p.log.Warn(ctx, "no record carries a frame, frame list skipped")
		case err != nil:
			return err
		default:
			r.Frames = frames
			r.Artifacts = append(r.Artifacts, filepath.Base(list))
		}
	} else {
		p.log.Warn(ctx, "no synced records, audio and frame list skipped")
	}

	r.Elapsed = time.Since(p.start).Round(time.Millisecond).String()
	_, err := batch.WriteReport(ctx, p.job.Name+"_report.yaml", *r)
	return err
}

func recordAnomalies(stream string, rep repair.Report) {
	for _, a := range rep.Anomalies {
		metrics.RecordAnomaly(stream, a.Kind.String())
		if a.JumpSize != nil {
			metrics.RecordJumpSize(stream, *a.JumpSize)
		}
	}
	metrics.AddUnknownMarkers(stream, rep.Unknown)
}
