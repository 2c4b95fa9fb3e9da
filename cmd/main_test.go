package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/videosync/internal/adapters/repository"
	"github.com/okian/videosync/internal/config"
	"github.com/okian/videosync/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

// execute runs the CLI with args and returns what it printed on stdout.
func execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSelectJobs(t *testing.T) {
	convey.Convey("Given configured jobs", t, func() {
		jobs := []config.Job{{Name: "a"}, {Name: "b"}, {Name: "c"}}

		convey.Convey("When no names are given", func() {
			got, err := selectJobs(jobs, nil)
			convey.So(err, convey.ShouldBeNil)
			convey.So(got, convey.ShouldResemble, jobs)
		})

		convey.Convey("When names are given", func() {
			got, err := selectJobs(jobs, []string{"c", "a"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(got, convey.ShouldResemble, []config.Job{{Name: "c"}, {Name: "a"}})
		})

		convey.Convey("When a name is unknown", func() {
			_, err := selectJobs(jobs, []string{"z"})
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestVersionCommand(t *testing.T) {
	convey.Convey("Given the version command", t, func() {
		out, err := execute("version")
		convey.So(err, convey.ShouldBeNil)
		convey.So(out, convey.ShouldEqual, "videosync dev\n")
	})
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	logs := filepath.Join(dir, "logs")
	t.Setenv("VSYNC_CONFIG", "")
	t.Setenv("VSYNC_DB_PATH", filepath.Join(dir, "videosync.sqlite3"))
	t.Setenv("VSYNC_OUTPUT_DIR", filepath.Join(dir, "out"))
	t.Setenv("VSYNC_WORKER_COUNT", "2")

	simOut, simErr := execute("simulate", "--serials", "512", "--logs", logs)
	runOut, runErr := execute("run", "--recording", "sim", "--camera", "23512908", "--logs", logs)
	profileOut, profileErr := execute("profile", "--recording", "sim", "--camera", "23512908", "--logs", logs)

	convey.Convey("Given a simulated recording", t, func() {
		convey.Convey("Then simulate should verify the pipeline output", func() {
			convey.So(simErr, convey.ShouldBeNil)
			convey.So(simOut, convey.ShouldContainSubstring, "mismatches: 0")
			convey.So(simOut, convey.ShouldContainSubstring, "run_id:")
		})

		convey.Convey("Then run should synchronize the logs again", func() {
			convey.So(runErr, convey.ShouldBeNil)
			convey.So(runOut, convey.ShouldContainSubstring, "1 jobs, 0 failed")
			_, err := os.Stat(filepath.Join(dir, "out", "sim_report.yaml"))
			convey.So(err, convey.ShouldBeNil)
		})

		convey.Convey("Then profile should list the device and both camera logs", func() {
			convey.So(profileErr, convey.ShouldBeNil)
			convey.So(strings.Count(profileOut, "stream: "), convey.ShouldEqual, 3)
			convey.So(profileOut, convey.ShouldContainSubstring, "stream: device")
			convey.So(profileOut, convey.ShouldContainSubstring, "type_iii:")
		})

		convey.Convey("Then an unknown job should be rejected", func() {
			_, err := execute("run", "missing")
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestStatusServer(t *testing.T) {
	store, err := repository.Open(filepath.Join(t.TempDir(), "status.sqlite3"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	convey.Convey("Given a status address", t, func() {
		stop := startStatusServer(context.Background(), "127.0.0.1:39187", store)
		defer stop()

		convey.Convey("Then /metrics should be served", func() {
			var resp *http.Response
			var err error
			for i := 0; i < 50; i++ {
				resp, err = http.Get("http://127.0.0.1:39187/metrics")
				if err == nil {
					break
				}
				time.Sleep(20 * time.Millisecond)
			}
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			convey.So(err, convey.ShouldBeNil)
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			convey.So(string(body), convey.ShouldContainSubstring, "system_goroutine_count")
		})
	})

	convey.Convey("Given no status address", t, func() {
		stop := startStatusServer(context.Background(), "", store)
		convey.So(stop, convey.ShouldNotBeNil)
		stop()
	})
}
