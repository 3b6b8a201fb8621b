package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSourceUnreadable   = errors.New("source directory unreadable")
	ErrArchive            = errors.New("archive creation failed")
	ErrPrune              = errors.New("retention pruning failed")
	ErrArtifactNotFound   = errors.New("archive file not found")
	ErrCredentialsMissing = errors.New("credentials not available")
	ErrTransmission       = errors.New("upload transmission failed")
	ErrLocked             = errors.New("another run holds the lock")
)

const (
	ExitOK      = 0
	ExitStartup = 1
	ExitLocked  = 2
	ExitSelect  = 3
	ExitArchive = 4
	ExitPrune   = 5
	ExitUpload  = 6
)

// StageError ties a failure to the pipeline stage it came from.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) severity() int {
	switch e.Stage {
	case StageUpload:
		return 4
	case StageArchive:
		return 3
	case StageSelect:
		return 2
	case StagePrune:
		return 1
	default:
		return 0
	}
}

func ExitCodeFor(err error) int {
	var se *StageError
	if errors.As(err, &se) {
		switch se.Stage {
		case StageSelect:
			return ExitSelect
		case StageArchive:
			return ExitArchive
		case StagePrune:
			return ExitPrune
		case StageUpload:
			return ExitUpload
		}
	}
	if errors.Is(err, ErrLocked) {
		return ExitLocked
	}
	return ExitStartup
}
