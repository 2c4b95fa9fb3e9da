package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/videosync/internal/domain/align"
	"github.com/okian/videosync/internal/domain/model"
)

const (
	upsertRecordingSQL = `
    INSERT INTO recordings (id, origin, resolution, source_path)
    VALUES (?, ?, ?, ?)
    ON CONFLICT (id) DO UPDATE SET
        origin      = excluded.origin,
        resolution  = excluded.resolution,
        source_path = excluded.source_path`

	selectRecordingSQL  = `SELECT id, origin, resolution FROM recordings WHERE id = ?`
	selectRecordingsSQL = `SELECT id, origin, resolution FROM recordings ORDER BY id`

	deleteDigitalEventsSQL = `DELETE FROM digital_events WHERE recording_id = ?`
	insertDigitalEventsSQL = `INSERT INTO digital_events (recording_id, seq, timestamp, reason, raw_value) VALUES `
	selectDigitalEventsSQL = `
    SELECT timestamp, reason, raw_value
    FROM digital_events
    WHERE recording_id = ?
    ORDER BY seq`

	deleteAnalogSamplesSQL = `DELETE FROM analog_samples WHERE recording_id = ? AND channel = ?`
	insertAnalogSamplesSQL = `INSERT INTO analog_samples (recording_id, channel, timestamp, amplitude) VALUES `
	selectAnalogRangeSQL   = `
    SELECT timestamp, amplitude
    FROM analog_samples
    WHERE recording_id = ? AND channel = ? AND timestamp BETWEEN ? AND ?
    ORDER BY timestamp`
	selectAnalogBoundsSQL = `
    SELECT COUNT(*), MIN(timestamp), MAX(timestamp)
    FROM analog_samples
    WHERE recording_id = ? AND channel = ?`
	selectChannelsSQL = `SELECT DISTINCT channel FROM analog_samples WHERE recording_id = ? ORDER BY channel`
)

// PutRecording creates or replaces the recording header.
func (s *Store) PutRecording(ctx context.Context, rec model.Recording, sourcePath string) (err error) {
	if rec.ID == "" {
		return fmt.Errorf("%w: empty recording id", ErrInvalidData)
	}
	if err = rec.Clock.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidData, err)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}
	stmt, err := db.PrepareContext(ctx, upsertRecordingSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, rec.ID, rec.Clock.Origin.UTC().Format(time.RFC3339Nano), rec.Clock.Resolution, sourcePath); err != nil {
		return fmt.Errorf("upserting recording %s: %w", rec.ID, err)
	}
	return nil
}

func scanRecording(sc interface{ Scan(...any) error }) (model.Recording, error) {
	var rec model.Recording
	var origin string
	if err := sc.Scan(&rec.ID, &origin, &rec.Clock.Resolution); err != nil {
		return rec, err
	}
	t, err := time.Parse(time.RFC3339Nano, origin)
	if err != nil {
		return rec, fmt.Errorf("%w: origin %q: %w", ErrInvalidData, origin, err)
	}
	rec.Clock.Origin = t
	return rec, nil
}

// Recording loads one recording header.
func (s *Store) Recording(ctx context.Context, id string) (model.Recording, error) {
	db, err := s.getReadDB()
	if err != nil {
		return model.Recording{}, fmt.Errorf("getting read connection: %w", err)
	}
	rec, err := scanRecording(db.QueryRowContext(ctx, selectRecordingSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("scanning recording %s: %w", id, err)
	}
	return rec, nil
}

// Recordings lists every recording ordered by id.
func (s *Store) Recordings(ctx context.Context) (recs []model.Recording, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	rows, err := db.QueryContext(ctx, selectRecordingsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying recordings: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		rec, sErr := scanRecording(rows)
		if sErr != nil {
			return nil, fmt.Errorf("scanning recording: %w", sErr)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// PutDigitalEvents replaces the digital event stream of a recording. Event order
// is preserved through a sequence column.
func (s *Store) PutDigitalEvents(ctx context.Context, recordingID string, events []model.RawDigitalEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteDigitalEventsSQL, recordingID); err != nil {
			return fmt.Errorf("clearing digital events: %w", err)
		}
		return insertBatched(ctx, tx, insertDigitalEventsSQL, 5, s.batchSize, events,
			func(i int, e model.RawDigitalEvent) []any {
				return []any{recordingID, i, e.Timestamp, int(e.Reason), int(e.RawValue)}
			})
	})
}

// DigitalEvents returns the digital event stream of a recording in device order.
func (s *Store) DigitalEvents(ctx context.Context, recordingID string) ([]model.RawDigitalEvent, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	rows, err := db.QueryContext(ctx, selectDigitalEventsSQL, recordingID)
	if err != nil {
		return nil, fmt.Errorf("querying digital events: %w", err)
	}
	return Collect(ctx, newIterator(rows, func(r *sql.Rows) (model.RawDigitalEvent, error) {
		var e model.RawDigitalEvent
		var reason, raw int
		if err := r.Scan(&e.Timestamp, &reason, &raw); err != nil {
			return e, err
		}
		e.Reason = model.InsertionReason(reason)
		e.RawValue = uint16(raw)
		return e, nil
	}))
}

// PutAnalogSamples replaces one analog channel of a recording.
func (s *Store) PutAnalogSamples(ctx context.Context, recordingID, channel string, samples []model.AnalogSample) error {
	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp <= samples[i-1].Timestamp {
			return fmt.Errorf("%w: analog timestamp %d at %d not increasing", ErrInvalidData, samples[i].Timestamp, i)
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteAnalogSamplesSQL, recordingID, channel); err != nil {
			return fmt.Errorf("clearing analog samples: %w", err)
		}
		return insertBatched(ctx, tx, insertAnalogSamplesSQL, 4, s.batchSize, samples,
			func(_ int, a model.AnalogSample) []any {
				return []any{recordingID, channel, a.Timestamp, int(a.Amplitude)}
			})
	})
}

// Channels lists the analog channels stored for a recording.
func (s *Store) Channels(ctx context.Context, recordingID string) (channels []string, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	rows, err := db.QueryContext(ctx, selectChannelsSQL, recordingID)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var c string
		if err = rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning channel: %w", err)
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// AnalogBounds describes the extent of one stored channel.
type AnalogBounds struct {
	Count int64
	First int64
	Last  int64
}

// AnalogBounds returns the sample count and timestamp span of a channel.
func (s *Store) AnalogBounds(ctx context.Context, recordingID, channel string) (AnalogBounds, error) {
	var b AnalogBounds
	db, err := s.getReadDB()
	if err != nil {
		return b, fmt.Errorf("getting read connection: %w", err)
	}
	var first, last sql.NullInt64
	if err = db.QueryRowContext(ctx, selectAnalogBoundsSQL, recordingID, channel).Scan(&b.Count, &first, &last); err != nil {
		return b, fmt.Errorf("scanning analog bounds: %w", err)
	}
	if b.Count == 0 {
		return b, fmt.Errorf("channel %s of %s: %w", channel, recordingID, ErrNotFound)
	}
	b.First, b.Last = first.Int64, last.Int64
	return b, nil
}

// AnalogSource exposes one stored channel to the synchronizer. Each Range call
// runs a bounded query, so samples outside the requested span are never read.
func (s *Store) AnalogSource(recordingID, channel string) align.AnalogSource {
	return &analogSource{store: s, recording: recordingID, channel: channel}
}

type analogSource struct {
	store     *Store
	recording string
	channel   string
}

func (a *analogSource) Range(ctx context.Context, from, to int64) (align.AnalogIterator, error) {
	db, err := a.store.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	rows, err := db.QueryContext(ctx, selectAnalogRangeSQL, a.recording, a.channel, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying analog range: %w", err)
	}
	return newIterator(rows, func(r *sql.Rows) (model.AnalogSample, error) {
		var smp model.AnalogSample
		var amp int
		if err := r.Scan(&smp.Timestamp, &amp); err != nil {
			return smp, err
		}
		smp.Amplitude = int16(amp)
		return smp, nil
	}), nil
}
