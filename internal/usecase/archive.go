package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/semmidev/rotabak/internal/domain"
)

type Archiver struct {
	fs          afero.Fs
	packer      domain.Packer
	logger      Logger
	keepStaging bool
	verify      bool
}

func NewArchiver(fs afero.Fs, packer domain.Packer, logger Logger, keepStaging, verify bool) *Archiver {
	return &Archiver{
		fs:          fs,
		packer:      packer,
		logger:      logger,
		keepStaging: keepStaging,
		verify:      verify,
	}
}

// Archive copies files from sourceDir into destRoot/dateName and packs that
// directory into destRoot/dateName<ext>. It returns the archive path, or ""
// and an error wrapping domain.ErrArchive.
func (a *Archiver) Archive(ctx context.Context, files []string, sourceDir, destRoot, dateName string) (string, error) {
	staging := filepath.Join(destRoot, dateName)
	// Leftovers from an earlier run for the same date must not reach the archive.
	if err := a.fs.RemoveAll(staging); err != nil {
		return "", fmt.Errorf("%w: clear staging directory: %w", domain.ErrArchive, err)
	}
	if err := a.fs.MkdirAll(staging, 0755); err != nil {
		return "", fmt.Errorf("%w: create staging directory: %w", domain.ErrArchive, err)
	}

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			a.discardStaging(staging)
			return "", fmt.Errorf("%w: %w", domain.ErrArchive, err)
		}

		src := filepath.Join(sourceDir, name)
		dst := filepath.Join(staging, name)
		if err := copyFile(a.fs, src, dst); err != nil {
			a.discardStaging(staging)
			return "", fmt.Errorf("%w: copy %s: %w", domain.ErrArchive, name, err)
		}
		a.logger.Infof("Copied: %s to %s", name, dst)
	}

	artifact := staging + a.packer.Extension()
	if err := a.packer.Pack(ctx, staging, artifact); err != nil {
		a.discardStaging(staging)
		return "", fmt.Errorf("%w: pack: %w", domain.ErrArchive, err)
	}

	if a.verify {
		if err := a.verifyArchive(files, sourceDir, artifact); err != nil {
			_ = a.fs.Remove(artifact)
			a.discardStaging(staging)
			return "", fmt.Errorf("%w: verify: %w", domain.ErrArchive, err)
		}
	}

	a.discardStaging(staging)

	a.logger.Infof("Backup complete, created archive %s", artifact)
	return artifact, nil
}

func (a *Archiver) discardStaging(staging string) {
	if a.keepStaging {
		return
	}
	if err := a.fs.RemoveAll(staging); err != nil {
		a.logger.Warnf("Failed to remove staging directory %s: %v", staging, err)
	}
}

func (a *Archiver) verifyArchive(files []string, sourceDir, artifact string) error {
	entries, err := a.packer.List(artifact)
	if err != nil {
		return err
	}

	sizes := make(map[string]int64, len(entries))
	for _, e := range entries {
		sizes[e.Name] = e.Size
	}

	if len(sizes) != len(files) {
		return fmt.Errorf("archive holds %d entries, expected %d", len(sizes), len(files))
	}

	for _, name := range files {
		info, err := a.fs.Stat(filepath.Join(sourceDir, name))
		if err != nil {
			return err
		}
		size, ok := sizes[name]
		if !ok {
			return fmt.Errorf("%s missing from archive", name)
		}
		if size != info.Size() {
			return fmt.Errorf("%s has size %d in archive, expected %d", name, size, info.Size())
		}
	}

	return nil
}

// copyFile copies src to dst byte for byte, replacing dst, and carries over
// the permission bits and modification time.
func copyFile(fs afero.Fs, src, dst string) error {
	source, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	dest, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}

	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := dest.Close(); err != nil {
		return fmt.Errorf("failed to close dest: %w", err)
	}

	if err := fs.Chmod(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to set mode: %w", err)
	}
	if err := fs.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("failed to set times: %w", err)
	}

	return nil
}
