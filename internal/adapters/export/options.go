package export

import "github.com/okian/videosync/pkg/logger"

// Option configures an Exporter.
type Option func(*Exporter)

// WithSampleRate sets the WAV sample rate in Hz.
func WithSampleRate(hz int) Option {
	return func(e *Exporter) {
		e.sampleRate = hz
	}
}

// WithFramePattern sets the printf pattern that names frame image files from a
// relative frame id.
func WithFramePattern(p string) Option {
	return func(e *Exporter) {
		e.framePattern = p
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.log = l
		}
	}
}
