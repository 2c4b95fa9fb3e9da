package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okian/videosync/internal/adapters/camlog"
	"github.com/okian/videosync/internal/adapters/repository"
	app "github.com/okian/videosync/internal/app"
	"github.com/okian/videosync/internal/config"
	"github.com/okian/videosync/internal/domain/align"
	"github.com/okian/videosync/internal/simulate"
	"github.com/okian/videosync/pkg/logger"
)

// state is shared by the subcommands once the root has loaded the configuration.
type state struct {
	configPath string
	cfg        *config.Config
}

// jobFlags describe one job on the command line instead of in the config file.
type jobFlags struct {
	recording string
	camera    string
	logsDir   string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.recording, "recording", "", "recording id in the store")
	cmd.Flags().StringVar(&f.camera, "camera", "", "camera serial in the session logs")
	cmd.Flags().StringVar(&f.logsDir, "logs", "", "directory of camera session logs (*.json)")
}

func (f *jobFlags) set() bool { return f.recording != "" }

func (f *jobFlags) job() (config.Job, error) {
	if f.camera == "" || f.logsDir == "" {
		return config.Job{}, fmt.Errorf("%w: --recording needs --camera and --logs", config.ErrInvalidConfig)
	}
	logs, err := camlog.Glob(f.logsDir)
	if err != nil {
		return config.Job{}, err
	}
	return config.Job{Name: f.recording, Recording: f.recording, CameraSerial: f.camera, CameraLogs: logs}, nil
}

// selectJobs returns the named jobs, or all of them when names is empty.
func selectJobs(jobs []config.Job, names []string) ([]config.Job, error) {
	if len(names) == 0 {
		return jobs, nil
	}
	byName := make(map[string]config.Job, len(jobs))
	for _, j := range jobs {
		byName[j.Name] = j
	}
	out := make([]config.Job, 0, len(names))
	for _, n := range names {
		j, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: no job named %q", config.ErrInvalidConfig, n)
		}
		out = append(out, j)
	}
	return out, nil
}

func newRootCmd() *cobra.Command {
	st := &state{}
	root := &cobra.Command{
		Use:           "videosync",
		Short:         "Synchronize device recordings with camera frame logs",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context(), st.configPath)
			if err != nil {
				return err
			}
			if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr()), logger.WithJSON(cfg.LogJSON)); err != nil {
				return err
			}
			if err := logger.SetLevelString(cfg.LogLevel); err != nil {
				logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
					logger.String("log_level", cfg.LogLevel), logger.Error(err))
				_ = logger.SetLevelString("info")
			}
			st.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&st.configPath, "config", "c", "", "YAML config file (default $VSYNC_CONFIG)")

	root.AddCommand(newRunCmd(st), newProfileCmd(st), newSimulateCmd(st), newVersionCmd())
	return root
}

// open returns the store and a service over it. The caller closes the store.
func (st *state) open(opts ...app.Option) (*repository.Store, *app.Service, error) {
	store, err := repository.Open(st.cfg.DBPath, repository.WithLogger(logger.Get().Named("repository")))
	if err != nil {
		return nil, nil, err
	}
	svc, err := app.New(st.cfg, store, opts...)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, svc, nil
}

func newRunCmd(st *state) *cobra.Command {
	var flags jobFlags
	cmd := &cobra.Command{
		Use:   "run [job...]",
		Short: "Synchronize configured jobs, or the job given by flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			jobs, err := selectJobs(st.cfg.Jobs, args)
			if err != nil {
				return err
			}
			if flags.set() {
				j, err := flags.job()
				if err != nil {
					return err
				}
				jobs = []config.Job{j}
			}
			if len(jobs) == 0 {
				return fmt.Errorf("%w: no jobs to run", config.ErrInvalidConfig)
			}

			store, svc, err := st.open()
			if err != nil {
				return err
			}
			defer store.Close()

			stopStatus := startStatusServer(ctx, st.cfg.MetricsAddr, store)
			defer stopStatus()

			sum, err := svc.RunAll(ctx, jobs)
			printSummary(cmd.OutOrStdout(), sum)
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

func printSummary(w io.Writer, sum app.Summary) {
	for _, r := range sum.Results {
		status := "ok"
		if r.Err != nil {
			status = "failed: " + r.Err.Error()
		}
		fmt.Fprintf(w, "%-24s %-10s %s\n", r.Job.Name, r.Elapsed.Round(time.Millisecond), status)
	}
	fmt.Fprintf(w, "%d jobs, %d failed\n", len(sum.Results), sum.Failed)
}

func newProfileCmd(st *state) *cobra.Command {
	var flags jobFlags
	cmd := &cobra.Command{
		Use:   "profile [job]",
		Short: "Count serial discontinuities without repairing them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var job config.Job
			switch {
			case flags.set():
				j, err := flags.job()
				if err != nil {
					return err
				}
				job = j
			case len(args) == 1:
				jobs, err := selectJobs(st.cfg.Jobs, args)
				if err != nil {
					return err
				}
				job = jobs[0]
			default:
				return fmt.Errorf("%w: name a job or pass --recording", config.ErrInvalidConfig)
			}

			store, svc, err := st.open(app.WithoutExport())
			if err != nil {
				return err
			}
			defer store.Close()

			profiles, err := svc.Profile(cmd.Context(), job)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), profiles)
		},
	}
	flags.register(cmd)
	return cmd
}

func newSimulateCmd(st *state) *cobra.Command {
	sim := simulate.DefaultConfig()
	var logsDir string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate a recording with known anomalies, synchronize it and check the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := simulate.Generate(sim)
			if err != nil {
				return err
			}

			store, svc, err := st.open()
			if err != nil {
				return err
			}
			defer store.Close()

			if logsDir == "" {
				logsDir = filepath.Join(st.cfg.OutputDir, "simulated", sim.Recording)
			}
			job, err := d.Write(ctx, store, st.cfg.AnalogChannel, logsDir)
			if err != nil {
				return err
			}
			out, err := svc.Process(ctx, job)
			if err != nil {
				return err
			}

			v, verr := d.Verify(out.Records, svc.FillMode() != align.FillLinear)
			if err := writeYAML(cmd.OutOrStdout(), map[string]any{
				"run_id":       out.Run.ID,
				"records":      humanize.Comma(int64(len(out.Records))),
				"matched":      out.Run.Matched,
				"injected":     d.Injected,
				"verification": v,
			}); err != nil {
				return err
			}
			return verr
		},
	}
	f := cmd.Flags()
	f.StringVar(&sim.Recording, "recording", sim.Recording, "recording id")
	f.StringVar(&sim.Camera, "camera", sim.Camera, "camera serial")
	f.Uint64Var(&sim.Seed, "seed", sim.Seed, "random seed")
	f.IntVar(&sim.Serials, "serials", sim.Serials, "chunk serials to emit")
	f.IntVar(&sim.Segments, "segments", sim.Segments, "camera session logs")
	f.IntVar(&sim.DeviceTypeI, "device-type-i", sim.DeviceTypeI, "zero serials on the device")
	f.IntVar(&sim.DeviceTypeIII, "device-type-iii", sim.DeviceTypeIII, "dropped serial groups on the device")
	f.IntVar(&sim.CameraTypeI, "camera-type-i", sim.CameraTypeI, "zero serials in the camera log")
	f.IntVar(&sim.CameraTypeII, "camera-type-ii", sim.CameraTypeII, "reset runs in the camera log")
	f.IntVar(&sim.CameraTypeIII, "camera-type-iii", sim.CameraTypeIII, "dropped camera rows")
	f.StringVar(&logsDir, "logs", "", "where to write the session logs (default <output_dir>/simulated/<recording>)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print the version",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "videosync", version)
		},
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return enc.Close()
}
