package archiver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"

	"github.com/semmidev/rotabak/internal/domain"
)

type ZipPacker struct {
	fs afero.Fs
}

func NewZip(fs afero.Fs) *ZipPacker {
	return &ZipPacker{fs: fs}
}

func (z *ZipPacker) Extension() string {
	return ".zip"
}

func (z *ZipPacker) Pack(ctx context.Context, srcDir, destPath string) error {
	entries, err := collect(z.fs, srcDir)
	if err != nil {
		return err
	}

	tmpPath := destPath + ".partial"
	destFile, err := z.fs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create dest file: %w", err)
	}

	if err := z.write(ctx, destFile, entries); err != nil {
		destFile.Close()
		_ = z.fs.Remove(tmpPath)
		return err
	}
	if err := destFile.Close(); err != nil {
		_ = z.fs.Remove(tmpPath)
		return fmt.Errorf("failed to close dest file: %w", err)
	}

	return commit(z.fs, tmpPath, destPath)
}

func (z *ZipPacker) write(ctx context.Context, w io.Writer, entries []walkEntry) error {
	zipWriter := zip.NewWriter(w)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := zip.FileInfoHeader(entry.info)
		if err != nil {
			return fmt.Errorf("failed to build header for %s: %w", entry.name, err)
		}
		header.Name = entry.name
		if entry.info.IsDir() {
			header.Method = zip.Store
		} else {
			header.Method = zip.Deflate
		}

		hw, err := zipWriter.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", entry.name, err)
		}
		if entry.info.IsDir() {
			continue
		}

		if err := copyFrom(z.fs, entry.path, hw); err != nil {
			return fmt.Errorf("failed to compress %s: %w", entry.name, err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}
	return nil
}

func (z *ZipPacker) open(archivePath string) (*zip.Reader, afero.File, error) {
	file, err := z.fs.Open(archivePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open source file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat source file: %w", err)
	}
	reader, err := zip.NewReader(file, info.Size())
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to create zip reader: %w", err)
	}
	return reader, file, nil
}

func (z *ZipPacker) Unpack(ctx context.Context, archivePath, destDir string) error {
	reader, file, err := z.open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	for _, f := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}

		if strings.HasSuffix(f.Name, "/") {
			if err := z.fs.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create dest dir: %w", err)
			}
			continue
		}

		if err := z.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create dest dir: %w", err)
		}
		if err := z.extract(f, target); err != nil {
			return err
		}
	}

	return nil
}

func (z *ZipPacker) extract(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	if err := writeTo(z.fs, target, f.Mode(), rc); err != nil {
		return err
	}
	return z.fs.Chtimes(target, f.Modified, f.Modified)
}

func (z *ZipPacker) List(archivePath string) ([]domain.ArchiveEntry, error) {
	reader, file, err := z.open(archivePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []domain.ArchiveEntry
	for _, f := range reader.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		entries = append(entries, domain.ArchiveEntry{
			Name: f.Name,
			Size: int64(f.UncompressedSize64),
		})
	}
	return entries, nil
}

func copyFrom(fs afero.Fs, path string, w io.Writer) error {
	src, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(w, src)
	return err
}

func writeTo(fs afero.Fs, target string, mode os.FileMode, r io.Reader) error {
	destFile, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("failed to create dest file: %w", err)
	}

	if _, err := io.Copy(destFile, r); err != nil {
		destFile.Close()
		return fmt.Errorf("failed to decompress: %w", err)
	}
	return destFile.Close()
}
