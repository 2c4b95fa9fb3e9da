// Package repository persists device recordings and synchronization runs in SQLite.
package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/okian/videosync/pkg/logger"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	defaultBatchSize = 500

	writeParams = "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000"
	readParams  = "mode=ro&_foreign_keys=on&_busy_timeout=5000"
)

// Store is a SQLite backed repository. Connections are opened lazily: one
// single-connection handle for writes and a pooled read-only handle.
type Store struct {
	path      string
	log       logger.Logger
	batchSize int

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open returns a Store for the database file at path. The file and schema are
// created on first use.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty database path", ErrInvalidData)
	}
	s := &Store{
		path:      path,
		log:       logger.Nop(),
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Init opens the write connection and applies the schema.
func (s *Store) Init(ctx context.Context) error {
	db, err := s.getWriteDB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *Store) getWriteDB() (*sql.DB, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.path, writeParams))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}
		s.writeDB = db
		s.log.Debug(context.Background(), "sqlite store opened", logger.String("path", s.path))
	})
	return s.writeDB, s.writeDBErr
}

func (s *Store) getReadDB() (*sql.DB, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	// The read-only handle cannot create the file, so the schema must exist first.
	if _, err := s.getWriteDB(); err != nil {
		return nil, err
	}
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.path, readParams))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})
	return s.readDB, s.readDBErr
}

// Close closes every open connection. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		var errs []error
		if s.readDB != nil {
			if err := s.readDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing read connection: %w", err))
			}
		}
		if s.writeDB != nil {
			if err := s.writeDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing write connection: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(tx *sql.Tx, err *error) {
	if rErr := tx.Rollback(); rErr != nil && !errors.Is(rErr, sql.ErrTxDone) && *err == nil {
		*err = rErr
	}
}

// withTx runs fn inside a write transaction.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// insertBatched writes rows as multi-row INSERT statements of at most batchSize rows.
func insertBatched[T any](ctx context.Context, tx *sql.Tx, prefix string, cols, batchSize int, rows []T, args func(int, T) []any) error {
	if len(rows) == 0 {
		return nil
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?,", cols), ",") + ")"

	var full *sql.Stmt
	defer func() {
		if full != nil {
			_ = full.Close()
		}
	}()

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		n := end - start

		values := make([]any, 0, n*cols)
		for i := start; i < end; i++ {
			values = append(values, args(i, rows[i])...)
		}

		var err error
		if n == batchSize {
			if full == nil {
				full, err = tx.PrepareContext(ctx, prefix+strings.TrimSuffix(strings.Repeat(tuple+",", n), ","))
				if err != nil {
					return fmt.Errorf("preparing statement: %w", err)
				}
			}
			_, err = full.ExecContext(ctx, values...)
		} else {
			_, err = tx.ExecContext(ctx, prefix+strings.TrimSuffix(strings.Repeat(tuple+",", n), ","), values...)
		}
		if err != nil {
			return fmt.Errorf("inserting rows %d..%d: %w", start, end-1, err)
		}
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func ptrInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	x := v.Int64
	return &x
}
