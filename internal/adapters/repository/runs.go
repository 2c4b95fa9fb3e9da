package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/videosync/internal/domain/model"
)

// Run is the header of one synchronization run.
type Run struct {
	ID           string
	Job          string
	RecordingID  string
	CameraSerial string
	FillMode     string
	StartedAt    time.Time
	FinishedAt   time.Time
	Segments     int
	Matched      int
	Records      int
}

// RunAnomaly is an anomaly tagged with the stream it was found in.
type RunAnomaly struct {
	Stream string
	model.AnomalyRecord
}

const (
	insertRunSQL = `
    INSERT INTO runs (id, job, recording_id, camera_serial, fill_mode, started_at, finished_at, segments, matched, records)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertAnomaliesSQL     = `INSERT INTO anomalies (run_id, stream, kind, position, gap_length, jump_size, unresolved) VALUES `
	insertSyncedRecordsSQL = `INSERT INTO synced_records (run_id, seq, timestamp, amplitude, chunk_serial, frame_id, relative_frame_id, segment) VALUES `

	runColumns      = `id, job, recording_id, camera_serial, fill_mode, started_at, finished_at, segments, matched, records`
	selectRunSQL    = `SELECT ` + runColumns + ` FROM runs WHERE id = ?`
	selectRunsSQL   = `SELECT ` + runColumns + ` FROM runs ORDER BY started_at, id`
	selectJobRunSQL = `SELECT ` + runColumns + ` FROM runs WHERE job = ? ORDER BY started_at, id`

	deleteSyncedRecordsSQL = `DELETE FROM synced_records WHERE run_id = ?`
	deleteAnomaliesSQL     = `DELETE FROM anomalies WHERE run_id = ?`
	deleteRunSQL           = `DELETE FROM runs WHERE id = ?`

	selectAnomaliesSQL = `
    SELECT stream, kind, position, gap_length, jump_size, unresolved
    FROM anomalies
    WHERE run_id = ?
    ORDER BY rowid`
	selectSyncedRecordsSQL = `
    SELECT timestamp, amplitude, chunk_serial, frame_id, relative_frame_id, segment
    FROM synced_records
    WHERE run_id = ?
    ORDER BY seq`
)

// SaveRun stores a run with its anomalies and synced records in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run, anomalies []RunAnomaly, records []model.SyncedRecord) error {
	if run.ID == "" {
		return fmt.Errorf("%w: empty run id", ErrInvalidData)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertRunSQL,
			run.ID, run.Job, run.RecordingID, run.CameraSerial, run.FillMode,
			run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano),
			run.Segments, run.Matched, run.Records,
		); err != nil {
			return fmt.Errorf("inserting run %s: %w", run.ID, err)
		}

		if err := insertBatched(ctx, tx, insertAnomaliesSQL, 7, s.batchSize, anomalies,
			func(_ int, a RunAnomaly) []any {
				return []any{run.ID, a.Stream, a.Kind.String(), a.Position, a.GapLength, nullInt64(a.JumpSize), a.Unresolved}
			}); err != nil {
			return fmt.Errorf("inserting anomalies: %w", err)
		}

		if err := insertBatched(ctx, tx, insertSyncedRecordsSQL, 8, s.batchSize, records,
			func(i int, r model.SyncedRecord) []any {
				return []any{run.ID, i, r.Timestamp, int(r.Amplitude),
					nullInt64(r.ChunkSerial), nullInt64(r.FrameID), nullInt64(r.RelativeFrameID), r.Segment}
			}); err != nil {
			return fmt.Errorf("inserting synced records: %w", err)
		}
		return nil
	})
}

// DeleteRun removes a run with its anomalies and synced records. Deleting an
// unknown run returns ErrNotFound.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{deleteSyncedRecordsSQL, deleteAnomaliesSQL} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("deleting run %s: %w", id, err)
			}
		}
		res, err := tx.ExecContext(ctx, deleteRunSQL, id)
		if err != nil {
			return fmt.Errorf("deleting run %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

func scanRun(sc interface{ Scan(...any) error }) (Run, error) {
	var r Run
	var started, finished string
	if err := sc.Scan(&r.ID, &r.Job, &r.RecordingID, &r.CameraSerial, &r.FillMode,
		&started, &finished, &r.Segments, &r.Matched, &r.Records); err != nil {
		return r, err
	}
	var err error
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return r, fmt.Errorf("%w: started_at %q: %w", ErrInvalidData, started, err)
	}
	if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return r, fmt.Errorf("%w: finished_at %q: %w", ErrInvalidData, finished, err)
	}
	return r, nil
}

// Run loads one run header.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	db, err := s.getReadDB()
	if err != nil {
		return Run{}, fmt.Errorf("getting read connection: %w", err)
	}
	r, err := scanRun(db.QueryRowContext(ctx, selectRunSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return r, fmt.Errorf("scanning run %s: %w", id, err)
	}
	return r, nil
}

// Runs lists runs in start order, optionally restricted to one job name.
func (s *Store) Runs(ctx context.Context, job string) (runs []Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	var rows *sql.Rows
	if job == "" {
		rows, err = db.QueryContext(ctx, selectRunsSQL)
	} else {
		rows, err = db.QueryContext(ctx, selectJobRunSQL, job)
	}
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		r, sErr := scanRun(rows)
		if sErr != nil {
			return nil, fmt.Errorf("scanning run: %w", sErr)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Anomalies returns the anomalies stored for a run in insertion order.
func (s *Store) Anomalies(ctx context.Context, runID string) ([]RunAnomaly, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	rows, err := db.QueryContext(ctx, selectAnomaliesSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying anomalies: %w", err)
	}
	return Collect(ctx, newIterator(rows, func(r *sql.Rows) (RunAnomaly, error) {
		var a RunAnomaly
		var kind string
		var jump sql.NullInt64
		if err := r.Scan(&a.Stream, &kind, &a.Position, &a.GapLength, &jump, &a.Unresolved); err != nil {
			return a, err
		}
		k, ok := model.ParseAnomalyKind(kind)
		if !ok {
			return a, fmt.Errorf("%w: anomaly kind %q", ErrInvalidData, kind)
		}
		a.Kind = k
		a.JumpSize = ptrInt64(jump)
		return a, nil
	}))
}

// SyncedRecords streams the records of a run in output order.
func (s *Store) SyncedRecords(ctx context.Context, runID string) (*Iterator[model.SyncedRecord], error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	rows, err := db.QueryContext(ctx, selectSyncedRecordsSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying synced records: %w", err)
	}
	return newIterator(rows, func(r *sql.Rows) (model.SyncedRecord, error) {
		var rec model.SyncedRecord
		var amp int
		var serial, frame, rel sql.NullInt64
		if err := r.Scan(&rec.Timestamp, &amp, &serial, &frame, &rel, &rec.Segment); err != nil {
			return rec, err
		}
		rec.Amplitude = int16(amp)
		rec.ChunkSerial = ptrInt64(serial)
		rec.FrameID = ptrInt64(frame)
		rec.RelativeFrameID = ptrInt64(rel)
		return rec, nil
	}), nil
}
