package usecase

import (
	"context"

	"github.com/semmidev/rotabak/internal/domain"
)

type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// UploadTarget is a named remote destination for archives.
type UploadTarget struct {
	Name          string
	Storage       domain.Storage
	RetentionDays int
}

// Journal persists the outcome of each run.
type Journal interface {
	Record(ctx context.Context, report *domain.RunReport) error
}

// Recorder observes stage outcomes, typically for metrics.
type Recorder interface {
	ObserveStage(result domain.StageResult)
	ObserveRun(report *domain.RunReport)
}
