package service

import (
	"github.com/okian/videosync/internal/adapters/export"
	"github.com/okian/videosync/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithExporter replaces the exporter built from the configuration.
func WithExporter(e *export.Exporter) Option {
	return func(s *Service) {
		if e != nil {
			s.exporter = e
		}
	}
}

// WithoutExport skips the WAV, frame list and report files; runs are still stored.
func WithoutExport() Option {
	return func(s *Service) {
		s.noExport = true
	}
}
