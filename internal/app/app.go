package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"

	"github.com/semmidev/rotabak/internal/adapter/archiver"
	"github.com/semmidev/rotabak/internal/adapter/journal"
	"github.com/semmidev/rotabak/internal/adapter/storage"
	"github.com/semmidev/rotabak/internal/config"
	"github.com/semmidev/rotabak/internal/domain"
	"github.com/semmidev/rotabak/internal/infrastructure/lock"
	"github.com/semmidev/rotabak/internal/infrastructure/logger"
	"github.com/semmidev/rotabak/internal/infrastructure/metrics"
	"github.com/semmidev/rotabak/internal/infrastructure/scheduler"
	"github.com/semmidev/rotabak/internal/usecase"
)

type App struct {
	config    *config.Config
	logger    *logger.Logger
	pipeline  *usecase.Pipeline
	scheduler *scheduler.Scheduler
	lock      *lock.FileLock
	metrics   *metrics.Recorder
	journal   *journal.SQLite
	closers   []io.Closer
}

// RunOptions selects one-shot or daemon mode. A zero Date means "today minus
// the configured offset", evaluated when each run starts.
type RunOptions struct {
	Once bool
	Date time.Time
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(logger.Options{
		Level: cfg.App.LogLevel,
		File:  cfg.App.LogFile,
		Name:  cfg.App.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &App{config: cfg, logger: log, metrics: metrics.New()}
	if err := a.wire(ctx, afero.NewOsFs()); err != nil {
		a.Shutdown()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, fs afero.Fs) error {
	cfg := a.config

	a.logger.Infof("Starting %s", cfg.App.Name)

	fileLock, err := lock.New(cfg.Lock.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize lock: %w", err)
	}
	a.lock = fileLock

	packer, err := archiver.New(cfg.Backup.ArchiveFormat, fs)
	if err != nil {
		return err
	}

	targets, notifiers, err := a.initializeUploadTargets(ctx, fs)
	if err != nil {
		return err
	}

	opts := []usecase.Option{
		usecase.WithNotifiers(notifiers...),
		usecase.WithRecorder(a.metrics),
		usecase.WithCleanup(usecase.NewCleanup(targets, cfg.Backup.UploadFolderLayout, a.logger.Named("cleanup"))),
	}

	if cfg.Backup.RetentionMode != config.RetentionNone {
		opts = append(opts, usecase.WithPruner(
			usecase.NewPruner(fs, cfg.Backup.RetentionMode, packer.Extension(), a.logger.Named("prune")),
		))
		a.logger.Infof("✓ Local retention enabled (%s mode)", cfg.Backup.RetentionMode)
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		a.journal = j
		opts = append(opts, usecase.WithJournal(j))
		a.logger.Infof("✓ Run journal at %s", cfg.Journal.Path)
	}

	retry := usecase.RetryPolicy{
		MaxRetries:    cfg.Backup.Retry.MaxRetries,
		InitialDelay:  cfg.Backup.Retry.InitialDelay,
		MaxDelay:      cfg.Backup.Retry.MaxDelay,
		BackoffFactor: cfg.Backup.Retry.BackoffFactor,
	}

	a.pipeline = usecase.NewPipeline(
		usecase.Params{
			SourcePath:      cfg.Backup.SourcePath,
			DestinationPath: cfg.Backup.DestinationPath,
			DateLayout:      cfg.DateLayout(),
			FileSuffix:      cfg.Backup.FileSuffix,
			FolderLayout:    cfg.Backup.UploadFolderLayout,
		},
		fs,
		usecase.NewSelector(fs),
		usecase.NewArchiver(fs, packer, a.logger.Named("archive"), cfg.Backup.KeepStaging, cfg.Backup.VerifyArchive),
		usecase.NewUploader(fs, targets, retry, cfg.Backup.UploadTimeout, a.logger.Named("upload")),
		a.logger,
		opts...,
	)

	a.scheduler = scheduler.New(a.logger.Named("scheduler"))
	return nil
}

// initializeUploadTargets builds every enabled target. Any failure is fatal:
// a run that silently skips a destination would report success.
func (a *App) initializeUploadTargets(ctx context.Context, fs afero.Fs) ([]usecase.UploadTarget, []domain.Notifier, error) {
	var (
		targets   []usecase.UploadTarget
		notifiers []domain.Notifier
		seen      = map[string]int{}
	)

	for i, targetCfg := range a.config.GetEnabledUploadTargets() {
		stor, err := storage.New(ctx, fs, &targetCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize %s target: %w", targetCfg.Type, err)
		}
		if c, ok := stor.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}

		if n, ok := stor.(domain.Notifier); ok {
			notifiers = append(notifiers, n)
		}
		if targetCfg.Type == storage.TypeTelegram && targetCfg.NotifyOnly {
			a.logger.Infof("✓ Telegram notifications enabled")
			continue
		}

		name := targetCfg.Type
		if seen[name] > 0 {
			name = fmt.Sprintf("%s-%d", targetCfg.Type, i)
		}
		seen[targetCfg.Type]++

		targets = append(targets, usecase.UploadTarget{
			Name:          name,
			Storage:       stor,
			RetentionDays: targetCfg.RetentionDays,
		})
		a.logger.Infof("✓ Upload target %s enabled (%s)", name, describe(targetCfg))
	}

	if len(targets) == 0 {
		return nil, nil, fmt.Errorf("no upload targets besides notifications are enabled")
	}
	return targets, notifiers, nil
}

func describe(t config.UploadTarget) string {
	switch t.Type {
	case storage.TypeS3, storage.TypeGCS:
		return "bucket: " + t.Bucket
	case storage.TypeGDrive:
		return "folder: " + t.FolderID
	case storage.TypeLocal:
		return "path: " + t.Path
	default:
		return t.Type
	}
}

// Run performs a single run, or with a schedule and without Once, blocks
// running the pipeline on each tick until ctx is cancelled.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	if opts.Once || a.config.App.Schedule == "" {
		return a.runOnce(ctx, opts.Date)
	}
	if !opts.Date.IsZero() {
		return fmt.Errorf("a reference date only applies to a single run, pass -once with -date")
	}

	if err := a.scheduler.AddJob("backup", a.config.App.Schedule, func(ctx context.Context) error {
		a.logger.Infof("=== Triggered scheduled backup ===")
		return a.runOnce(ctx, time.Time{})
	}); err != nil {
		return fmt.Errorf("failed to schedule backup: %w", err)
	}

	if addr := a.config.Metrics.Listen; addr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, addr); err != nil {
				a.logger.Errorf("Metrics endpoint stopped: %v", err)
			}
		}()
		a.logger.Infof("Serving metrics on %s/metrics", addr)
	}

	a.scheduler.Start(ctx)
	a.logger.Infof("Scheduler started, next backup at %s", a.scheduler.Next().Format(time.RFC3339))

	<-ctx.Done()
	return nil
}

func (a *App) runOnce(ctx context.Context, date time.Time) error {
	if err := a.lock.TryAcquire(); err != nil {
		a.logger.Errorf("Skipping run: %v", err)
		return err
	}
	defer func() {
		if err := a.lock.Release(); err != nil {
			a.logger.Warnf("Failed to release lock: %v", err)
		}
	}()

	if date.IsZero() {
		date = a.config.ReferenceDate(time.Now())
	}

	report := a.pipeline.Run(ctx, date)

	if err := a.metrics.Flush(a.config.Metrics.Textfile, a.config.Metrics.Pushgateway, a.config.App.Name); err != nil {
		a.logger.Warnf("Failed to export metrics: %v", err)
	}

	return report.Err()
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warnf("Failed to close journal: %v", err)
		}
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.logger.Close()
}
