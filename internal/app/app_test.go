package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/semmidev/rotabak/internal/adapter/journal"
	"github.com/semmidev/rotabak/internal/config"
	"github.com/semmidev/rotabak/internal/domain"
	"github.com/semmidev/rotabak/internal/infrastructure/lock"

	. "github.com/smartystreets/goconvey/convey"
)

func testConfig(root string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "rotabak", LogLevel: "error"},
		Backup: config.BackupConfig{
			SourcePath:         filepath.Join(root, "src"),
			DestinationPath:    filepath.Join(root, "dst"),
			DateFormat:         "underscore",
			FileSuffix:         ".bak",
			RetentionMode:      config.RetentionFile,
			ArchiveFormat:      "tar.zst",
			VerifyArchive:      true,
			UploadFolderLayout: "2006-01-02",
			UploadTimeout:      time.Minute,
			Retry:              config.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2},
			UploadTargets: []config.UploadTarget{
				{Type: "local", Enabled: true, Path: filepath.Join(root, "mirror"), RetentionDays: 7},
			},
		},
		Lock:    config.LockConfig{Path: filepath.Join(root, "run", "rotabak.lock")},
		Metrics: config.MetricsConfig{Textfile: filepath.Join(root, "rotabak.prom")},
		Journal: config.JournalConfig{Path: filepath.Join(root, "journal.db")},
	}
}

func TestAppRunOnce(t *testing.T) {
	Convey("Given an app backed by a local mirror", t, func() {
		root, err := os.MkdirTemp("", "app_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(root)

		cfg := testConfig(root)
		So(os.MkdirAll(cfg.Backup.SourcePath, 0755), ShouldBeNil)
		So(os.MkdirAll(cfg.Backup.DestinationPath, 0755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(cfg.Backup.SourcePath, "db_2024_05_01.bak"), []byte("dump"), 0644), ShouldBeNil)
		So(os.WriteFile(filepath.Join(cfg.Backup.DestinationPath, "2024-04-30.tar.zst"), []byte("old"), 0644), ShouldBeNil)

		ctx := context.Background()
		application, err := New(ctx, cfg)
		So(err, ShouldBeNil)

		day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.Local)

		Convey("When running once for a date with files", func() {
			err := application.Run(ctx, RunOptions{Once: true, Date: day})
			application.Shutdown()

			Convey("It should archive, prune, mirror and journal the run", func() {
				So(err, ShouldBeNil)

				_, err := os.Stat(filepath.Join(cfg.Backup.DestinationPath, "2024-05-01.tar.zst"))
				So(err, ShouldBeNil)
				_, err = os.Stat(filepath.Join(cfg.Backup.DestinationPath, "2024-04-30.tar.zst"))
				So(os.IsNotExist(err), ShouldBeTrue)
				_, err = os.Stat(filepath.Join(root, "mirror", "2024-05-01", "2024-05-01.tar.zst"))
				So(err, ShouldBeNil)
				_, err = os.Stat(cfg.Metrics.Textfile)
				So(err, ShouldBeNil)

				j, err := journal.Open(cfg.Journal.Path)
				So(err, ShouldBeNil)
				defer j.Close()
				entries, err := j.Last(ctx, 5)
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 1)
				So(entries[0].Status, ShouldEqual, "success")
			})
		})

		Convey("When no files match the date", func() {
			err := application.Run(ctx, RunOptions{Once: true, Date: day.AddDate(0, 0, 3)})
			application.Shutdown()

			Convey("It should succeed without creating anything", func() {
				So(err, ShouldBeNil)
				_, err := os.Stat(filepath.Join(root, "mirror", "2024-05-04"))
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When the source directory has gone missing", func() {
			So(os.RemoveAll(cfg.Backup.SourcePath), ShouldBeNil)
			err := application.Run(ctx, RunOptions{Once: true, Date: day})
			application.Shutdown()

			Convey("It should map to the selection exit code", func() {
				So(domain.ExitCodeFor(err), ShouldEqual, domain.ExitSelect)
			})
		})

		Convey("When a date is given to a scheduled app without once", func() {
			application.config.App.Schedule = "0 0 1 * * *"
			err := application.Run(ctx, RunOptions{Date: day})
			application.Shutdown()

			Convey("It should refuse before running anything", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "-once")
				So(domain.ExitCodeFor(err), ShouldEqual, domain.ExitStartup)
				_, err := os.Stat(filepath.Join(cfg.Backup.DestinationPath, "2024-05-01.tar.zst"))
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When another process holds the lock", func() {
			other, err := lock.New(cfg.Lock.Path)
			So(err, ShouldBeNil)
			So(other.TryAcquire(), ShouldBeNil)
			defer other.Release()

			err = application.Run(ctx, RunOptions{Once: true, Date: day})
			application.Shutdown()

			Convey("It should exit without side effects", func() {
				So(errors.Is(err, domain.ErrLocked), ShouldBeTrue)
				So(domain.ExitCodeFor(err), ShouldEqual, domain.ExitLocked)
				_, err := os.Stat(filepath.Join(cfg.Backup.DestinationPath, "2024-05-01.tar.zst"))
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})
	})
}

func TestAppStartupFailures(t *testing.T) {
	Convey("Given a config whose only target cannot be built", t, func() {
		root, err := os.MkdirTemp("", "app_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(root)

		cfg := testConfig(root)
		cfg.Backup.UploadTargets = []config.UploadTarget{
			{Type: "telegram", Enabled: true, BotToken: "x", ChatID: "not-a-number"},
		}

		_, err = New(context.Background(), cfg)

		Convey("New should fail", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to initialize telegram target")
			So(domain.ExitCodeFor(err), ShouldEqual, domain.ExitStartup)
		})
	})
}
