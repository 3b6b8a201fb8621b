package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/semmidev/rotabak/internal/domain"
)

// Params fixes the source/destination pair and naming rules of a deployment.
type Params struct {
	SourcePath      string
	DestinationPath string
	DateLayout      string
	FileSuffix      string
	FolderLayout    string
}

// Pipeline runs select, archive, prune and upload in that order.
type Pipeline struct {
	params    Params
	fs        afero.Fs
	selector  *Selector
	archiver  *Archiver
	pruner    *Pruner
	uploader  *Uploader
	cleanup   *Cleanup
	notifiers []domain.Notifier
	recorder  Recorder
	journal   Journal
	logger    Logger
	now       func() time.Time
}

type Option func(*Pipeline)

// WithPruner enables retention pruning of the destination root.
func WithPruner(p *Pruner) Option {
	return func(pl *Pipeline) { pl.pruner = p }
}

func WithCleanup(c *Cleanup) Option {
	return func(pl *Pipeline) { pl.cleanup = c }
}

func WithNotifiers(n ...domain.Notifier) Option {
	return func(pl *Pipeline) { pl.notifiers = append(pl.notifiers, n...) }
}

func WithRecorder(r Recorder) Option {
	return func(pl *Pipeline) { pl.recorder = r }
}

func WithJournal(j Journal) Option {
	return func(pl *Pipeline) { pl.journal = j }
}

func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

func NewPipeline(
	params Params,
	fs afero.Fs,
	selector *Selector,
	archiver *Archiver,
	uploader *Uploader,
	logger Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		params:   params,
		fs:       fs,
		selector: selector,
		archiver: archiver,
		uploader: uploader,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs one backup pass for referenceDate. It never returns nil; the
// report's Err and ExitCode describe the outcome.
func (p *Pipeline) Run(ctx context.Context, referenceDate time.Time) *domain.RunReport {
	run := domain.BackupRun{
		ID:              uuid.NewString(),
		ReferenceDate:   referenceDate,
		DateToken:       referenceDate.Format(p.params.DateLayout),
		FileSuffix:      p.params.FileSuffix,
		SourcePath:      p.params.SourcePath,
		DestinationPath: p.params.DestinationPath,
	}
	report := &domain.RunReport{Run: run, StartedAt: p.now()}
	defer p.finish(ctx, report)

	p.logger.Infof("[%s] Starting backup for %s (token %q, suffix %q)",
		run.ID, run.DateName(), run.DateToken, run.FileSuffix)

	files, ok := p.selectFiles(ctx, report)
	if !ok {
		return report
	}
	if len(files) == 0 {
		p.logger.Infof("[%s] No files found for %s, nothing to back up", run.ID, run.DateName())
		p.skip(report, domain.StageArchive, domain.StagePrune, domain.StageUpload)
		return report
	}

	if !p.archive(ctx, report) {
		p.skip(report, domain.StagePrune, domain.StageUpload)
		return report
	}

	// Pruning only ever runs once this run's archive exists, and spares it.
	p.prune(ctx, report)

	if p.upload(ctx, report) {
		p.runCleanup(ctx, report)
	}

	return report
}

func (p *Pipeline) selectFiles(ctx context.Context, report *domain.RunReport) ([]string, bool) {
	start := time.Now()
	files, err := p.selector.Select(ctx, p.params.SourcePath, report.Run.DateToken, p.params.FileSuffix)
	if err != nil {
		p.logger.Errorf("[%s] Selection failed: %v", report.Run.ID, err)
		p.record(report, domain.StageSelect, domain.StatusFailed, err, start)
		p.skip(report, domain.StageArchive, domain.StagePrune, domain.StageUpload)
		return nil, false
	}

	report.Selected = files
	p.logger.Infof("[%s] Selected %d file(s)", report.Run.ID, len(files))
	p.record(report, domain.StageSelect, domain.StatusOK, nil, start)
	return files, true
}

func (p *Pipeline) archive(ctx context.Context, report *domain.RunReport) bool {
	start := time.Now()
	artifact, err := p.archiver.Archive(ctx, report.Selected, p.params.SourcePath, p.params.DestinationPath, report.Run.DateName())
	if err != nil {
		p.logger.Errorf("[%s] Error during backup creation: %v", report.Run.ID, err)
		p.record(report, domain.StageArchive, domain.StatusFailed, err, start)
		return false
	}

	report.Artifact = artifact
	if info, err := p.fs.Stat(artifact); err == nil {
		report.ArtifactSize = info.Size()
	}
	p.record(report, domain.StageArchive, domain.StatusOK, nil, start)
	return true
}

func (p *Pipeline) prune(ctx context.Context, report *domain.RunReport) {
	if p.pruner == nil {
		p.skip(report, domain.StagePrune)
		return
	}

	start := time.Now()
	result, err := p.pruner.Prune(ctx, p.params.DestinationPath, report.Run.DateName())
	report.Pruned = result
	if err != nil {
		p.logger.Errorf("[%s] Pruning stopped after %d deletion(s): %v", report.Run.ID, len(result.Deleted), err)
		p.record(report, domain.StagePrune, domain.StatusFailed, err, start)
		return
	}

	p.logger.Infof("[%s] Pruned %d entries, kept %d", report.Run.ID, len(result.Deleted), result.Kept)
	p.record(report, domain.StagePrune, domain.StatusOK, nil, start)
}

func (p *Pipeline) upload(ctx context.Context, report *domain.RunReport) bool {
	start := time.Now()
	folder := report.Run.ReferenceDate.Format(p.params.FolderLayout)

	keys, err := p.uploader.Upload(ctx, report.Artifact, folder)
	report.RemoteKeys = keys
	if err != nil {
		p.logger.Errorf("[%s] Upload failed: %v", report.Run.ID, err)
		p.record(report, domain.StageUpload, domain.StatusFailed, err, start)
		return false
	}

	p.record(report, domain.StageUpload, domain.StatusOK, nil, start)
	return true
}

func (p *Pipeline) runCleanup(ctx context.Context, report *domain.RunReport) {
	if p.cleanup == nil || !p.cleanup.Enabled() {
		return
	}

	start := time.Now()
	deleted, err := p.cleanup.Execute(ctx, report.Run.ReferenceDate)
	if err != nil {
		p.record(report, domain.StageCleanup, domain.StatusFailed, err, start)
		return
	}
	p.logger.Infof("[%s] Remote cleanup removed %d object(s)", report.Run.ID, deleted)
	p.record(report, domain.StageCleanup, domain.StatusOK, nil, start)
}

func (p *Pipeline) record(report *domain.RunReport, stage domain.Stage, status domain.StageStatus, err error, start time.Time) {
	report.Record(stage, status, err, time.Since(start))
	if p.recorder != nil {
		s, _ := report.Stage(stage)
		p.recorder.ObserveStage(s)
	}
}

func (p *Pipeline) skip(report *domain.RunReport, stages ...domain.Stage) {
	for _, stage := range stages {
		report.Record(stage, domain.StatusSkipped, nil, 0)
		if p.recorder != nil {
			p.recorder.ObserveStage(domain.StageResult{Stage: stage, Status: domain.StatusSkipped})
		}
	}
}

func (p *Pipeline) finish(ctx context.Context, report *domain.RunReport) {
	report.FinishedAt = p.now()
	ctx = context.WithoutCancel(ctx)

	if err := report.Err(); err != nil {
		p.logger.Errorf("[%s] Backup finished with errors: %v", report.Run.ID, err)
	} else {
		p.logger.Infof("[%s] Backup finished in %s", report.Run.ID,
			report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	}

	if p.recorder != nil {
		p.recorder.ObserveRun(report)
	}

	if p.journal != nil {
		if err := p.journal.Record(ctx, report); err != nil {
			p.logger.Warnf("[%s] Failed to write journal entry: %v", report.Run.ID, err)
		}
	}

	summary := report.Summary()
	for _, n := range p.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			p.logger.Warnf("[%s] Failed to send notification: %v", report.Run.ID, err)
		}
	}
}
