package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/semmidev/rotabak/internal/domain"
)

type Selector struct {
	fs afero.Fs
}

func NewSelector(fs afero.Fs) *Selector {
	return &Selector{fs: fs}
}

// Select returns the names of files in dir that contain token and end with
// suffix, sorted lexicographically. Directories are never selected.
func (s *Selector) Select(ctx context.Context, dir, token, suffix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnreadable, err)
	}

	files := make([]string, 0)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if strings.Contains(name, token) && strings.HasSuffix(name, suffix) {
			files = append(files, name)
		}
	}

	return files, nil
}
