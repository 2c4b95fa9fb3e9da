package decode

import "github.com/okian/videosync/pkg/logger"

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.log = l
		}
	}
}

// WithStrictGroups discards every serial-bit run whose length is not exactly GroupSize
// instead of splitting long runs into consecutive groups.
func WithStrictGroups(strict bool) Option {
	return func(d *Decoder) {
		d.strict = strict
	}
}
