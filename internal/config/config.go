// Package config defines the pipeline configuration and its loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Thresholds are turned into immutable per-component values (RepairConfig,
//   SyncConfig) at construction time; components never read global state.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/okian/videosync/internal/domain/align"
	"github.com/okian/videosync/internal/domain/repair"
)

// Job names one recording to synchronize against one camera.
type Job struct {
	// Name identifies the job in logs, reports and output paths.
	Name string `koanf:"name" yaml:"name"`
	// Recording is the recording id in the device store.
	Recording string `koanf:"recording" yaml:"recording"`
	// CameraSerial selects the camera inside each capture-session log.
	CameraSerial string `koanf:"camera_serial" yaml:"camera_serial"`
	// CameraLogs are capture-session JSON logs; segments that do not overlap the
	// recording are skipped.
	CameraLogs []string `koanf:"camera_logs" yaml:"camera_logs"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogJSON switches logs to JSON lines.
	LogJSON bool `koanf:"log_json"`

	// DBPath is the SQLite device and report store.
	DBPath string `koanf:"db_path"`
	// OutputDir receives WAV files, frame lists and reports.
	OutputDir string `koanf:"output_dir"`

	// WorkerCount sets how many recordings are processed in parallel.
	WorkerCount int `koanf:"worker_count"`
	// QueueSize bounds the job queue.
	QueueSize int `koanf:"queue_size"`

	// MetricsAddr serves /healthz, /metrics and /runs while running when set, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`

	// ValidityThreshold is the smallest serial treated as real (Type IV below it).
	ValidityThreshold int64 `koanf:"validity_threshold"`
	// ResetBound is the largest value of a Type II reset run.
	ResetBound int64 `koanf:"reset_bound"`
	// MaxInsert caps the synthetic serials inserted into one jump.
	MaxInsert int64 `koanf:"max_insert"`
	// StrictGroups drops serial-bit runs that are not exactly one group long.
	StrictGroups bool `koanf:"strict_groups"`

	// FrameModulus is the largest raw camera frame id.
	FrameModulus int64 `koanf:"frame_modulus"`
	// FillMode is nearest, linear or none.
	FillMode string `koanf:"fill_mode"`

	// AnalogChannel names the analog channel exported as audio.
	AnalogChannel string `koanf:"analog_channel"`
	// AudioSampleRate is the WAV sample rate in Hz.
	AudioSampleRate int `koanf:"audio_sample_rate"`
	// FramePattern names frame files in the concat list.
	FramePattern string `koanf:"frame_pattern"`

	Jobs []Job `koanf:"jobs"`
}

// SyncConfig groups the synchronizer settings.
type SyncConfig struct {
	FillMode     align.FillMode
	FrameModulus int64
}

// New creates a Config with defaults. Context is accepted first to satisfy the
// project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		DBPath:            "videosync.sqlite3",
		OutputDir:         "out",
		WorkerCount:       runtime.NumCPU(),
		QueueSize:         1024,
		ValidityThreshold: 128,
		ResetBound:        127,
		MaxInsert:         1 << 20,
		FrameModulus:      65535,
		FillMode:          "nearest",
		AnalogChannel:     "ainp1",
		AudioSampleRate:   30000,
		FramePattern:      "frame_%06d.png",
	}
}

// RepairConfig returns the repairer thresholds.
func (c *Config) RepairConfig() repair.Config {
	return repair.Config{
		ValidityThreshold: c.ValidityThreshold,
		ResetBound:        c.ResetBound,
		MaxInsert:         c.MaxInsert,
	}
}

// SyncConfig returns the synchronizer settings.
func (c *Config) SyncConfig() (SyncConfig, error) {
	mode, err := align.ParseFillMode(c.FillMode)
	if err != nil {
		return SyncConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return SyncConfig{FillMode: mode, FrameModulus: c.FrameModulus}, nil
}

// Validate checks every field a component relies on.
func (c *Config) Validate() error {
	var problems []string
	if c.DBPath == "" {
		problems = append(problems, "db_path must not be empty")
	}
	if c.OutputDir == "" {
		problems = append(problems, "output_dir must not be empty")
	}
	if c.WorkerCount <= 0 {
		problems = append(problems, "worker_count must be positive")
	}
	if c.QueueSize <= 0 {
		problems = append(problems, "queue_size must be positive")
	}
	if err := c.RepairConfig().Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.FrameModulus <= 0 || c.FrameModulus > 65535 {
		problems = append(problems, "frame_modulus must be in 1..65535")
	}
	if _, err := align.ParseFillMode(c.FillMode); err != nil {
		problems = append(problems, err.Error())
	}
	if c.AudioSampleRate <= 0 {
		problems = append(problems, "audio_sample_rate must be positive")
	}
	if !strings.Contains(c.FramePattern, "%") {
		problems = append(problems, "frame_pattern must contain a format verb")
	}
	seen := make(map[string]struct{}, len(c.Jobs))
	for i, j := range c.Jobs {
		if j.Name == "" || j.Recording == "" || j.CameraSerial == "" {
			problems = append(problems, fmt.Sprintf("jobs[%d]: name, recording and camera_serial are required", i))
			continue
		}
		if _, dup := seen[j.Name]; dup {
			problems = append(problems, fmt.Sprintf("jobs[%d]: duplicate name %q", i, j.Name))
		}
		seen[j.Name] = struct{}{}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
