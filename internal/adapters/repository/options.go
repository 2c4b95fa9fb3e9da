package repository

import "github.com/okian/videosync/pkg/logger"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBatchSize sets how many rows are inserted per prepared statement round.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}
