package archiver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/semmidev/rotabak/internal/domain"
)

const (
	FormatZip    = "zip"
	FormatTarGz  = "tar.gz"
	FormatTarZst = "tar.zst"
)

// New returns the packer for the given archive format.
func New(format string, fs afero.Fs) (domain.Packer, error) {
	switch format {
	case FormatZip:
		return NewZip(fs), nil
	case FormatTarGz:
		return NewTar(fs, gzipCodec{}), nil
	case FormatTarZst:
		return NewTar(fs, zstdCodec{}), nil
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", format)
	}
}

type walkEntry struct {
	path string
	name string
	info os.FileInfo
}

// collect walks srcDir and returns its entries with slash-separated names
// relative to srcDir, in lexical order.
func collect(fs afero.Fs, srcDir string) ([]walkEntry, error) {
	var entries []walkEntry
	err := afero.Walk(fs, srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)
		if info.IsDir() {
			name += "/"
		}
		entries = append(entries, walkEntry{path: path, name: name, info: info})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk source directory: %w", err)
	}
	return entries, nil
}

// safeJoin resolves an archive entry name under destDir, rejecting names
// that would escape it.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	root := filepath.Clean(destDir)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal entry path: %s", name)
	}
	return target, nil
}

// commit moves a fully written temporary archive into its final place.
func commit(fs afero.Fs, tmpPath, destPath string) error {
	if err := fs.Rename(tmpPath, destPath); err != nil {
		_ = fs.Remove(tmpPath)
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}
