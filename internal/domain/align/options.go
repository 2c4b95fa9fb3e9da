package align

import "github.com/okian/videosync/pkg/logger"

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithFillMode sets the Step B gap fill.
func WithFillMode(m FillMode) Option {
	return func(s *Synchronizer) {
		s.fill = m
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCancelCheckEvery sets how many analog samples are processed between context checks.
func WithCancelCheckEvery(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.checkEvery = n
		}
	}
}
