package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/semmidev/rotabak/internal/domain"
)

// LocalStorage mirrors archives into a directory tree, e.g. a mounted NAS.
type LocalStorage struct {
	fs       afero.Fs
	basePath string
}

func NewLocal(fsys afero.Fs, basePath string) (*LocalStorage, error) {
	if err := fsys.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &LocalStorage{fs: fsys, basePath: basePath}, nil
}

func (l *LocalStorage) Upload(ctx context.Context, localPath string, key string) error {
	source, err := l.fs.Open(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, localPath)
		}
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	destPath := l.GetPath(key)
	if err := l.fs.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create dest directory: %w", err)
	}

	tmp := destPath + ".partial"
	dest, err := l.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}

	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		l.fs.Remove(tmp)
		return fmt.Errorf("%w: failed to copy: %w", domain.ErrTransmission, err)
	}
	if err := dest.Close(); err != nil {
		l.fs.Remove(tmp)
		return fmt.Errorf("failed to close dest: %w", err)
	}

	if err := l.fs.Rename(tmp, destPath); err != nil {
		l.fs.Remove(tmp)
		return fmt.Errorf("failed to move dest into place: %w", err)
	}

	return nil
}

// List walks the mirror and returns slash-separated keys starting with prefix.
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]domain.ObjectInfo, error) {
	var objects []domain.ObjectInfo

	err := afero.Walk(l.fs, l.basePath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(l.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		objects = append(objects, domain.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	return objects, nil
}

// Delete removes the file at key and its parent directory once empty.
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	filePath := l.GetPath(key)
	if err := l.fs.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	if dir := filepath.Dir(filePath); dir != filepath.Clean(l.basePath) {
		if entries, err := afero.ReadDir(l.fs, dir); err == nil && len(entries) == 0 {
			_ = l.fs.Remove(dir)
		}
	}
	return nil
}

func (l *LocalStorage) GetPath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}
