package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/okian/videosync/internal/adapters/camlog"
	"github.com/okian/videosync/internal/config"
	"github.com/okian/videosync/internal/domain/repair"
)

// StreamProfile is the detection-only view of one serial stream.
type StreamProfile struct {
	repair.Profile `yaml:",inline"`

	Stream         string `yaml:"stream"`
	Serials        int    `yaml:"serials"`
	LongestSection int    `yaml:"longest_section"`
}

func newStreamProfile(stream string, serials []int64) StreamProfile {
	p := repair.Detect(serials)
	return StreamProfile{Stream: stream, Serials: len(serials), Profile: p, LongestSection: p.LongestSection()}
}

// Profile counts the discontinuities of a job's raw device and camera serial
// streams without repairing anything.
func (s *Service) Profile(ctx context.Context, j config.Job) ([]StreamProfile, error) {
	p := &pipeline{Service: s, job: j, log: s.logger.Named("profile")}
	if err := p.stage(ctx, StageLoad, p.load); err != nil {
		return nil, err
	}
	if err := p.stage(ctx, StageDecode, p.decode); err != nil {
		return nil, err
	}

	device := make([]int64, len(p.device))
	for i, d := range p.device {
		device[i] = d.ChunkSerial
	}
	out := []StreamProfile{newStreamProfile("device", device)}

	logs := append([]string(nil), j.CameraLogs...)
	camlog.SortByTime(logs)
	for _, path := range logs {
		session, err := camlog.Open(path)
		if err != nil {
			return nil, &RecordingError{Job: j.Name, Stage: StageCamera, Err: err}
		}
		rows, err := session.Camera(j.CameraSerial)
		if errors.Is(err, camlog.ErrCameraNotFound) {
			continue
		}
		if err != nil {
			return nil, &RecordingError{Job: j.Name, Stage: StageCamera, Err: err}
		}
		serials := make([]int64, len(rows))
		for i, r := range rows {
			serials[i] = r.ChunkSerial
		}
		out = append(out, newStreamProfile(fmt.Sprintf("camera:%s", filepath.Base(path)), serials))
	}
	return out, nil
}
