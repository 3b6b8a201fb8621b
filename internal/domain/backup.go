package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout names staging directories, archives and the retention boundary.
const DateLayout = "2006-01-02"

type BackupRun struct {
	ID              string
	ReferenceDate   time.Time
	DateToken       string
	FileSuffix      string
	SourcePath      string
	DestinationPath string
}

// DateName is the reference date formatted as YYYY-MM-DD.
func (r BackupRun) DateName() string {
	return r.ReferenceDate.Format(DateLayout)
}

type Stage string

const (
	StageSelect  Stage = "select"
	StageArchive Stage = "archive"
	StagePrune   Stage = "prune"
	StageUpload  Stage = "upload"
	StageCleanup Stage = "cleanup"
)

type StageStatus string

const (
	StatusOK      StageStatus = "ok"
	StatusSkipped StageStatus = "skipped"
	StatusFailed  StageStatus = "failed"
)

type StageResult struct {
	Stage    Stage
	Status   StageStatus
	Err      error
	Duration time.Duration
}

type PruneResult struct {
	Deleted []string
	Kept    int
}

// RunReport is the outcome of one pipeline pass.
type RunReport struct {
	Run          BackupRun
	StartedAt    time.Time
	FinishedAt   time.Time
	Selected     []string
	Artifact     string
	ArtifactSize int64
	RemoteKeys   []string
	Pruned       PruneResult
	Stages       []StageResult
}

func (r *RunReport) Record(stage Stage, status StageStatus, err error, d time.Duration) {
	r.Stages = append(r.Stages, StageResult{Stage: stage, Status: status, Err: err, Duration: d})
}

func (r *RunReport) Stage(stage Stage) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s, true
		}
	}
	return StageResult{}, false
}

// NothingToDo reports whether the run ended because no files matched.
func (r *RunReport) NothingToDo() bool {
	s, ok := r.Stage(StageSelect)
	return ok && s.Status == StatusOK && len(r.Selected) == 0
}

// Err returns the most critical stage failure, or nil. Upload outranks
// archive, archive outranks select, prune ranks last. Remote cleanup
// failures never fail a run.
func (r *RunReport) Err() error {
	var worst *StageError
	for _, s := range r.Stages {
		if s.Status != StatusFailed || s.Stage == StageCleanup {
			continue
		}
		se := &StageError{Stage: s.Stage, Err: s.Err}
		if worst == nil || se.severity() > worst.severity() {
			worst = se
		}
	}
	if worst == nil {
		return nil
	}
	return worst
}

// ExitCode maps the report onto the process exit status.
func (r *RunReport) ExitCode() int {
	err := r.Err()
	if err == nil {
		return ExitOK
	}
	return ExitCodeFor(err)
}

func (r *RunReport) Status() string {
	switch {
	case r.Err() == nil:
		return "success"
	case r.Artifact != "" && len(r.RemoteKeys) > 0:
		return "partial"
	default:
		return "failure"
	}
}

func (r *RunReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backup %s for %s: %s\n", r.Run.ID, r.Run.DateName(), r.Status())
	if r.NothingToDo() {
		b.WriteString("No files found for the reference date\n")
	}
	fmt.Fprintf(&b, "Files: %d\n", len(r.Selected))
	if r.Artifact != "" {
		fmt.Fprintf(&b, "Archive: %s\n", r.Artifact)
	}
	for _, key := range r.RemoteKeys {
		fmt.Fprintf(&b, "Uploaded: %s\n", key)
	}
	for _, s := range r.Stages {
		if s.Err != nil {
			fmt.Fprintf(&b, "%s %s: %v\n", s.Stage, s.Status, s.Err)
		}
	}
	fmt.Fprintf(&b, "Took: %s", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	return b.String()
}
