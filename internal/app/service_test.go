package service_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/videosync/internal/adapters/export"
	"github.com/okian/videosync/internal/adapters/repository"
	service "github.com/okian/videosync/internal/app"
	"github.com/okian/videosync/internal/config"
	"github.com/okian/videosync/internal/simulate"
	"github.com/okian/videosync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

type fixture struct {
	cfg     *config.Config
	store   *repository.Store
	dataset *simulate.Dataset
	job     config.Job
}

// newFixture writes a simulated recording into a fresh store.
func newFixture(t *testing.T, sim simulate.Config) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	cfg := config.New(ctx)
	cfg.DBPath = filepath.Join(dir, "videosync.sqlite3")
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.WorkerCount = 2

	store, err := repository.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	d, err := simulate.Generate(sim)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	job, err := d.Write(ctx, store, cfg.AnalogChannel, filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return &fixture{cfg: cfg, store: store, dataset: d, job: job}
}

func TestService_New(t *testing.T) {
	Convey("Given a configuration", t, func() {
		cfg := config.New(context.Background())
		cfg.OutputDir = t.TempDir()
		store, err := repository.Open(filepath.Join(t.TempDir(), "db.sqlite3"))
		So(err, ShouldBeNil)
		defer store.Close()

		Convey("When it is valid", func() {
			svc, err := service.New(cfg, store, service.WithLogger(logger.Nop()))
			So(err, ShouldBeNil)
			So(svc.FillMode().String(), ShouldEqual, "nearest")
		})

		Convey("When it is invalid", func() {
			cfg.FillMode = "cubic"
			_, err := service.New(cfg, store)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When the store is missing", func() {
			_, err := service.New(cfg, nil)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestService_Process(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulate.DefaultConfig())
	svc, err := service.New(f.cfg, f.store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	out, err := svc.Process(ctx, f.job)

	Convey("Given a simulated recording split over two camera logs", t, func() {
		So(err, ShouldBeNil)

		Convey("Then every record should agree with the ground truth", func() {
			v, err := f.dataset.Verify(out.Records, true)
			So(err, ShouldBeNil)
			So(v.Records, ShouldBeGreaterThan, 0)
			So(v.Attributed, ShouldEqual, v.Records)
			So(v.Exact, ShouldEqual, out.Run.Matched)
			So(out.Run.Segments, ShouldEqual, 2)
		})

		Convey("Then the report should count the injected anomalies", func() {
			So(out.Report.Device.Counts["type_i"], ShouldEqual, 3)
			So(out.Report.Device.Counts["type_iii"], ShouldEqual, 3)
			So(out.Report.Segments, ShouldHaveLength, 2)

			camera := map[string]int{}
			rollovers := 0
			for _, s := range out.Report.Segments {
				for k, n := range s.Camera.Counts {
					camera[k] += n
				}
				rollovers += s.Rollovers
			}
			// Each reset run also closes with a zero counted as Type I.
			So(camera["type_i"], ShouldEqual, 5)
			So(camera["type_ii"], ShouldEqual, 2)
			So(camera["type_iii"], ShouldEqual, 3)
			So(rollovers, ShouldEqual, 1)
		})

		Convey("Then the run should be stored", func() {
			run, err := f.store.Run(ctx, out.Run.ID)
			So(err, ShouldBeNil)
			So(run.Job, ShouldEqual, f.job.Name)
			So(run.Records, ShouldEqual, len(out.Records))

			anomalies, err := f.store.Anomalies(ctx, out.Run.ID)
			So(err, ShouldBeNil)
			So(anomalies, ShouldHaveLength, 16)

			it, err := f.store.SyncedRecords(ctx, out.Run.ID)
			So(err, ShouldBeNil)
			stored, err := repository.Collect(ctx, it)
			So(err, ShouldBeNil)
			So(stored, ShouldHaveLength, len(out.Records))
			So(stored[0], ShouldResemble, out.Records[0])
		})

		Convey("Then the exports should be written", func() {
			for _, name := range []string{"sim.wav", "sim_frames.txt"} {
				_, err := os.Stat(filepath.Join(f.cfg.OutputDir, name))
				So(err, ShouldBeNil)
			}
			r, err := export.ReadReport(filepath.Join(f.cfg.OutputDir, "sim_report.yaml"))
			So(err, ShouldBeNil)
			So(r.RunID, ShouldEqual, out.Run.ID)
			So(r.Records, ShouldEqual, len(out.Records))
			So(r.Frames, ShouldBeGreaterThan, 0)
			So(r.Artifacts, ShouldResemble, []string{"sim.wav", "sim_frames.txt"})
		})

		Convey("Then frames should be named after the segment they come from", func() {
			want := map[string]bool{}
			for _, log := range f.job.CameraLogs {
				want[strings.TrimSuffix(filepath.Base(log), ".json")] = true
			}
			seen := map[string]bool{}
			for _, r := range out.Records {
				seen[r.Segment] = true
			}
			So(seen, ShouldResemble, want)

			b, err := os.ReadFile(filepath.Join(f.cfg.OutputDir, "sim_frames.txt"))
			So(err, ShouldBeNil)
			for name := range want {
				So(string(b), ShouldContainSubstring, "file '"+name+"/frame_")
			}
		})
	})
}

func TestService_PublishFailure(t *testing.T) {
	ctx := context.Background()
	sim := simulate.DefaultConfig()
	sim.Serials = 1024
	f := newFixture(t, sim)

	// The report's final name is taken, so publishing fails after the run committed.
	report := filepath.Join(f.cfg.OutputDir, f.job.Name+"_report.yaml")
	if err := os.MkdirAll(report, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	svc, err := service.New(f.cfg, f.store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.Process(ctx, f.job)

	Convey("Given an output directory that cannot take the report", t, func() {
		Convey("Then the job should fail at export", func() {
			var re *service.RecordingError
			So(errors.As(err, &re), ShouldBeTrue)
			So(re.Stage, ShouldEqual, service.StageExport)
		})

		Convey("Then no run should be left in the store", func() {
			runs, err := f.store.Runs(ctx, f.job.Name)
			So(err, ShouldBeNil)
			So(runs, ShouldBeEmpty)
		})

		Convey("Then no artifact should be left behind", func() {
			entries, err := os.ReadDir(f.cfg.OutputDir)
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 1)
			So(entries[0].Name(), ShouldEqual, filepath.Base(report))
			So(entries[0].IsDir(), ShouldBeTrue)
		})
	})
}

func TestService_Failures(t *testing.T) {
	ctx := context.Background()
	sim := simulate.DefaultConfig()
	sim.Serials = 256
	sim.DeviceTypeI, sim.DeviceTypeIII = 1, 1
	sim.CameraTypeI, sim.CameraTypeII, sim.CameraTypeIII = 1, 0, 1
	f := newFixture(t, sim)

	Convey("Given a service without exports", t, func() {
		svc, err := service.New(f.cfg, f.store, service.WithoutExport())
		So(err, ShouldBeNil)

		Convey("When the recording is unknown", func() {
			job := f.job
			job.Recording = "missing"
			_, err := svc.Process(ctx, job)

			var re *service.RecordingError
			So(errors.As(err, &re), ShouldBeTrue)
			So(re.Stage, ShouldEqual, service.StageLoad)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the camera is in none of the logs", func() {
			job := f.job
			job.CameraSerial = "11111111"
			_, err := svc.Process(ctx, job)

			var re *service.RecordingError
			So(errors.As(err, &re), ShouldBeTrue)
			So(re.Stage, ShouldEqual, service.StageCamera)
			So(errors.Is(err, service.ErrNoOverlap), ShouldBeTrue)
		})

		Convey("When a log does not exist", func() {
			job := f.job
			job.CameraLogs = append([]string{filepath.Join(t.TempDir(), "gone_20240906_153615.json")}, job.CameraLogs...)
			err := svc.Run(ctx, job)
			So(err, ShouldNotBeNil)

			runs, err := f.store.Runs(ctx, job.Name)
			So(err, ShouldBeNil)
			So(runs, ShouldBeEmpty)
		})
	})
}

func TestService_RunAll(t *testing.T) {
	ctx := context.Background()
	sim := simulate.DefaultConfig()
	sim.Serials = 1024
	f := newFixture(t, sim)
	f.cfg.FillMode = "linear"

	svc, err := service.New(f.cfg, f.store, service.WithoutExport())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	broken := f.job
	broken.Name = "broken"
	broken.Recording = "missing"
	sum, err := svc.RunAll(ctx, []config.Job{broken, f.job})

	Convey("Given a batch with one good and one broken job", t, func() {
		Convey("Then the failure should be isolated", func() {
			So(errors.Is(err, service.ErrJobsFailed), ShouldBeTrue)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			So(sum.Failed, ShouldEqual, 1)
			So(sum.Results, ShouldHaveLength, 2)
			So(sum.Results[0].Job.Name, ShouldEqual, "broken")
			So(sum.Results[0].Err, ShouldNotBeNil)
			So(sum.Results[1].Err, ShouldBeNil)
		})

		Convey("Then the good job's interpolated records should carry true serials", func() {
			runs, err := f.store.Runs(ctx, f.job.Name)
			So(err, ShouldBeNil)
			So(runs, ShouldHaveLength, 1)
			So(runs[0].FillMode, ShouldEqual, "linear")

			it, err := f.store.SyncedRecords(ctx, runs[0].ID)
			So(err, ShouldBeNil)
			records, err := repository.Collect(ctx, it)
			So(err, ShouldBeNil)

			v, err := f.dataset.Verify(records, false)
			So(err, ShouldBeNil)
			So(v.Attributed, ShouldEqual, len(records))
		})
	})
}
