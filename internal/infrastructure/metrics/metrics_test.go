package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/semmidev/rotabak/internal/domain"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRecorder(t *testing.T) {
	Convey("Given a metrics recorder", t, func() {
		r := New()
		finished := time.Date(2024, 5, 2, 1, 0, 5, 0, time.UTC)

		report := &domain.RunReport{
			StartedAt:    finished.Add(-5 * time.Second),
			FinishedAt:   finished,
			Selected:     []string{"a.bak", "b.bak"},
			Artifact:     "/dst/2024-05-01.zip",
			ArtifactSize: 2048,
			RemoteKeys:   []string{"s3:2024-05-01/2024-05-01.zip"},
			Pruned:       domain.PruneResult{Deleted: []string{"2024-04-30.zip"}},
		}

		Convey("When a successful run is observed", func() {
			report.Record(domain.StageSelect, domain.StatusOK, nil, time.Second)
			r.ObserveStage(domain.StageResult{Stage: domain.StageSelect, Status: domain.StatusOK, Duration: time.Second})
			r.ObserveStage(domain.StageResult{Stage: domain.StagePrune, Status: domain.StatusSkipped})
			r.ObserveRun(report)

			Convey("Gauges and counters should reflect it", func() {
				So(testutil.ToFloat64(r.runs.WithLabelValues("success")), ShouldEqual, 1)
				So(testutil.ToFloat64(r.stages.WithLabelValues("prune", "skipped")), ShouldEqual, 1)
				So(testutil.ToFloat64(r.filesSelected), ShouldEqual, 2)
				So(testutil.ToFloat64(r.archiveSize), ShouldEqual, 2048)
				So(testutil.ToFloat64(r.entriesPruned), ShouldEqual, 1)
				So(testutil.ToFloat64(r.lastExitCode), ShouldEqual, 0)
				So(testutil.ToFloat64(r.lastSuccess), ShouldEqual, float64(finished.Unix()))
				So(testutil.ToFloat64(r.lastRunDuration), ShouldEqual, 5)
			})
		})

		Convey("When a failed run is observed", func() {
			report.RemoteKeys = nil
			report.Record(domain.StageUpload, domain.StatusFailed, errors.New("s3: timeout"), time.Second)
			r.ObserveRun(report)

			Convey("The last success timestamp should stay unset", func() {
				So(testutil.ToFloat64(r.runs.WithLabelValues("failure")), ShouldEqual, 1)
				So(testutil.ToFloat64(r.lastExitCode), ShouldEqual, domain.ExitUpload)
				So(testutil.ToFloat64(r.lastSuccess), ShouldEqual, 0)
			})
		})

		Convey("Flush should write a node_exporter textfile", func() {
			tempDir, err := os.MkdirTemp("", "metrics_test")
			So(err, ShouldBeNil)
			defer os.RemoveAll(tempDir)

			r.ObserveRun(report)
			path := filepath.Join(tempDir, "rotabak.prom")
			So(r.Flush(path, "", "rotabak"), ShouldBeNil)

			content, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(strings.Contains(string(content), "rotabak_archive_size_bytes 2048"), ShouldBeTrue)
		})

		Convey("Flush with nothing configured is a no-op", func() {
			So(r.Flush("", "", "rotabak"), ShouldBeNil)
		})
	})
}
