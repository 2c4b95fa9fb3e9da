// Package service runs the synchronization pipeline for recordings: decode the
// device serial stream, repair it, pick the camera segments that overlap it,
// synchronize each against the analog channel, then store and export the result.
package service

import (
	"context"
	"fmt"

	"github.com/okian/videosync/internal/adapters/export"
	"github.com/okian/videosync/internal/adapters/repository"
	"github.com/okian/videosync/internal/config"
	"github.com/okian/videosync/internal/domain/align"
	"github.com/okian/videosync/internal/domain/decode"
	"github.com/okian/videosync/internal/domain/model"
	"github.com/okian/videosync/internal/domain/repair"
	"github.com/okian/videosync/internal/domain/rollover"
	"github.com/okian/videosync/pkg/logger"
)

// Store is the persistence the pipeline needs.
type Store interface {
	Recording(ctx context.Context, id string) (model.Recording, error)
	DigitalEvents(ctx context.Context, recordingID string) ([]model.RawDigitalEvent, error)
	AnalogSource(recordingID, channel string) align.AnalogSource
	SaveRun(ctx context.Context, run repository.Run, anomalies []repository.RunAnomaly, records []model.SyncedRecord) error
	DeleteRun(ctx context.Context, id string) error
}

// Service holds the immutable pipeline components. It is safe for concurrent use;
// every Run works on its own data.
type Service struct {
	cfg   *config.Config
	store Store

	deviceRepairer *repair.Repairer
	cameras        *align.CameraBuilder
	synchronizer   *align.Synchronizer
	exporter       *export.Exporter
	noExport       bool

	logger logger.Logger
}

// New builds a Service from a validated configuration.
func New(cfg *config.Config, store Store, opts ...Option) (*Service, error) {
	if cfg == nil || store == nil {
		return nil, fmt.Errorf("%w: config and store are required", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		store:  store,
		logger: logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.deviceRepairer, err = repair.New(cfg.RepairConfig(),
		repair.WithLogger(s.logger.Named("repair")), repair.WithStream("device"))
	if err != nil {
		return nil, err
	}
	cameraRepairer, err := repair.New(cfg.RepairConfig(),
		repair.WithLogger(s.logger.Named("repair")), repair.WithStream("camera"))
	if err != nil {
		return nil, err
	}
	corrector, err := rollover.New(cfg.FrameModulus)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	s.cameras = align.NewCameraBuilder(cameraRepairer, corrector)

	sc, err := cfg.SyncConfig()
	if err != nil {
		return nil, err
	}
	s.synchronizer = align.New(align.WithFillMode(sc.FillMode), align.WithLogger(s.logger.Named("sync")))

	if s.exporter == nil && !s.noExport {
		s.exporter, err = export.New(cfg.OutputDir,
			export.WithSampleRate(cfg.AudioSampleRate),
			export.WithFramePattern(cfg.FramePattern),
			export.WithLogger(s.logger.Named("export")))
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// FillMode returns the configured gap fill.
func (s *Service) FillMode() align.FillMode { return s.synchronizer.FillMode() }

func (s *Service) decoder(clock model.ClockConfig) *decode.Decoder {
	return decode.NewDecoder(clock,
		decode.WithLogger(s.logger.Named("decode")),
		decode.WithStrictGroups(s.cfg.StrictGroups))
}
