package repair

import "github.com/okian/videosync/pkg/logger"

// Option configures a Repairer.
type Option func(*Repairer)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Repairer) {
		if l != nil {
			r.log = l
		}
	}
}

// WithStream labels log lines and anomaly metrics with the stream name ("device", "camera").
func WithStream(name string) Option {
	return func(r *Repairer) {
		if name != "" {
			r.stream = name
		}
	}
}
