package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/semmidev/rotabak/internal/domain"
)

type Uploader struct {
	fs      afero.Fs
	targets []UploadTarget
	retry   RetryPolicy
	timeout time.Duration
	logger  Logger
}

func NewUploader(fs afero.Fs, targets []UploadTarget, retry RetryPolicy, timeout time.Duration, logger Logger) *Uploader {
	return &Uploader{
		fs:      fs,
		targets: targets,
		retry:   retry,
		timeout: timeout,
		logger:  logger,
	}
}

// ObjectKey is the remote key for an artifact: folder/basename.
func ObjectKey(folder, artifact string) string {
	return path.Join(folder, filepath.Base(artifact))
}

// Upload sends artifact to every target under folder/basename(artifact) and
// returns the "target:key" of each successful upload. Any target failing
// fails the whole upload.
func (u *Uploader) Upload(ctx context.Context, artifact, folder string) ([]string, error) {
	if _, err := u.fs.Stat(artifact); err != nil {
		u.logger.Errorf("The file was not found: %s", artifact)
		return nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, artifact)
	}

	key := ObjectKey(folder, artifact)
	results := make([]error, len(u.targets))

	var g errgroup.Group
	for i, target := range u.targets {
		g.Go(func() error {
			results[i] = u.uploadTarget(ctx, target, artifact, key)
			return nil
		})
	}
	_ = g.Wait()

	var keys []string
	var errs []error
	for i, target := range u.targets {
		if results[i] != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target.Name, results[i]))
			continue
		}
		keys = append(keys, target.Name+":"+key)
	}

	return keys, errors.Join(errs...)
}

func (u *Uploader) uploadTarget(ctx context.Context, target UploadTarget, artifact, key string) error {
	u.logger.Infof("Uploading %s to %s as %s...", filepath.Base(artifact), target.Name, key)

	err := u.retry.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := u.attemptContext(ctx)
		defer cancel()
		return target.Storage.Upload(attemptCtx, artifact, key)
	}, func(err error, next time.Duration) {
		u.logger.Warnf("Upload to %s failed, retrying in %s: %v", target.Name, next.Round(time.Millisecond), err)
	})

	switch {
	case err == nil:
		u.logger.Infof("File uploaded successfully to %s: %s", target.Name, key)
	case errors.Is(err, domain.ErrArtifactNotFound):
		u.logger.Errorf("The file was not found for %s: %v", target.Name, err)
	case errors.Is(err, domain.ErrCredentialsMissing):
		u.logger.Errorf("Credentials not available for %s: %v", target.Name, err)
	default:
		u.logger.Errorf("Error during upload to %s: %v", target.Name, err)
	}

	return err
}

func (u *Uploader) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if u.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, u.timeout)
}
