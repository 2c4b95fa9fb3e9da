package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Iterator streams query rows one at a time. It must be closed after use.
type Iterator[T any] struct {
	rows    *sql.Rows
	scan    func(*sql.Rows) (T, error)
	current T
	err     error
	done    bool
}

func newIterator[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error)) *Iterator[T] {
	return &Iterator[T]{rows: rows, scan: scan}
}

// Next advances to the next row. It returns false when the rows are exhausted,
// the context is done, or a scan fails.
func (it *Iterator[T]) Next(ctx context.Context) bool {
	if it.done || it.err != nil {
		return false
	}
	select {
	case <-ctx.Done():
		it.err = ctx.Err()
		return false
	default:
	}

	if !it.rows.Next() {
		it.done = true
		if err := it.rows.Err(); err != nil {
			it.err = fmt.Errorf("iterating rows: %w", err)
		}
		return false
	}
	v, err := it.scan(it.rows)
	if err != nil {
		it.err = fmt.Errorf("scanning row: %w", err)
		return false
	}
	it.current = v
	return true
}

// Current returns the row Next advanced to.
func (it *Iterator[T]) Current() T { return it.current }

// Error returns the error that stopped iteration.
func (it *Iterator[T]) Error() error { return it.err }

// Close releases the underlying rows.
func (it *Iterator[T]) Close() error { return it.rows.Close() }

// Collect drains the iterator into a slice and closes it.
func Collect[T any](ctx context.Context, it *Iterator[T]) (out []T, err error) {
	defer closeWithError(it, &err)
	for it.Next(ctx) {
		out = append(out, it.Current())
	}
	return out, it.Error()
}
