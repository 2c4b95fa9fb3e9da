// Package worker runs synchronization jobs taken off a queue.
package worker

import (
	"github.com/okian/videosync/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithResults registers a callback invoked after every job. Pool workers share the
// callback, so it must be safe for concurrent use.
func WithResults(fn func(Result)) Option {
	return func(w *InMemoryWorker) {
		if fn != nil {
			w.results = fn
		}
	}
}
