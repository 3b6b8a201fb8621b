package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/semmidev/rotabak/internal/domain"
)

const (
	PruneFiles       = "file"
	PruneDirectories = "directory"
)

// Pruner removes stale archives or staging directories from the top level
// of the destination root.
type Pruner struct {
	fs        afero.Fs
	mode      string
	extension string
	logger    Logger
}

func NewPruner(fs afero.Fs, mode, extension string, logger Logger) *Pruner {
	return &Pruner{fs: fs, mode: mode, extension: extension, logger: logger}
}

// Prune deletes every eligible entry under root except the one belonging to
// allowedDate. The first failure stops the pass; entries already removed stay
// removed.
func (p *Pruner) Prune(ctx context.Context, root, allowedDate string) (domain.PruneResult, error) {
	var result domain.PruneResult

	entries, err := afero.ReadDir(p.fs, root)
	if err != nil {
		return result, fmt.Errorf("%w: list %s: %w", domain.ErrPrune, root, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%w: %w", domain.ErrPrune, err)
		}

		name := entry.Name()
		if !p.eligible(name, entry.IsDir(), allowedDate) {
			result.Kept++
			continue
		}

		if err := p.fs.RemoveAll(filepath.Join(root, name)); err != nil {
			return result, fmt.Errorf("%w: remove %s: %w", domain.ErrPrune, name, err)
		}
		p.logger.Infof("Pruned %s", name)
		result.Deleted = append(result.Deleted, name)
	}

	return result, nil
}

func (p *Pruner) eligible(name string, isDir bool, allowedDate string) bool {
	switch p.mode {
	case PruneFiles:
		return strings.HasSuffix(name, p.extension) && !strings.Contains(name, allowedDate)
	case PruneDirectories:
		return isDir && name != allowedDate
	default:
		return false
	}
}
