package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/semmidev/rotabak/internal/domain"
)

// Cleanup deletes remote archives whose date folder is older than the
// target's retention.
type Cleanup struct {
	uploadTargets []UploadTarget
	folderLayout  string
	logger        Logger
}

func NewCleanup(
	uploadTargets []UploadTarget,
	folderLayout string,
	logger Logger,
) *Cleanup {
	return &Cleanup{
		uploadTargets: uploadTargets,
		folderLayout:  folderLayout,
		logger:        logger,
	}
}

// Enabled reports whether any target has remote retention configured.
func (uc *Cleanup) Enabled() bool {
	for _, t := range uc.uploadTargets {
		if uc.applies(t) {
			return true
		}
	}
	return false
}

func (uc *Cleanup) applies(t UploadTarget) bool {
	if t.RetentionDays <= 0 {
		return false
	}
	_, ok := t.Storage.(domain.RemoteLister)
	return ok
}

// Execute returns the number of deleted objects; per-target failures are
// logged and the first one is returned.
func (uc *Cleanup) Execute(ctx context.Context, now time.Time) (int, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		deleted  int
		firstErr error
	)

	for _, target := range uc.uploadTargets {
		if !uc.applies(target) {
			continue
		}

		wg.Add(1)
		go func(t UploadTarget) {
			defer wg.Done()

			cutoff := startOfDay(now).AddDate(0, 0, -t.RetentionDays)
			n, err := uc.cleanupTarget(ctx, t, cutoff)

			mu.Lock()
			defer mu.Unlock()
			deleted += n
			if err != nil {
				uc.logger.Errorf("Cleanup failed for %s: %v", t.Name, err)
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", t.Name, err)
				}
			}
		}(target)
	}

	wg.Wait()
	return deleted, firstErr
}

func (uc *Cleanup) cleanupTarget(ctx context.Context, target UploadTarget, cutoff time.Time) (int, error) {
	lister := target.Storage.(domain.RemoteLister)

	objects, err := lister.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list objects: %w", err)
	}

	deleted := 0
	for _, obj := range objects {
		date, err := folderDate(obj.Key, uc.folderLayout)
		if err != nil {
			uc.logger.Debugf("Skipping %s on %s: %v", obj.Key, target.Name, err)
			continue
		}
		if !date.Before(cutoff) {
			continue
		}

		uc.logger.Infof("Deleting old backup from %s: %s", target.Name, obj.Key)
		if err := lister.Delete(ctx, obj.Key); err != nil {
			uc.logger.Errorf("Failed to delete %s from %s: %v", obj.Key, target.Name, err)
			continue
		}
		deleted++
	}

	uc.logger.Infof("Deleted %d old backup(s) from %s", deleted, target.Name)
	return deleted, nil
}
