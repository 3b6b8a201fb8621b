package archiver

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"

	"github.com/semmidev/rotabak/internal/domain"
)

// codec wraps the byte stream of a tar archive in a compression format.
type codec interface {
	extension() string
	writer(w io.Writer) (io.WriteCloser, error)
	reader(r io.Reader) (io.ReadCloser, error)
}

type gzipCodec struct{}

func (gzipCodec) extension() string { return ".tar.gz" }

func (gzipCodec) writer(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, gzip.BestCompression)
}

func (gzipCodec) reader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

type zstdCodec struct{}

func (zstdCodec) extension() string { return ".tar.zst" }

func (zstdCodec) writer(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
}

func (zstdCodec) reader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

type TarPacker struct {
	fs    afero.Fs
	codec codec
}

func NewTar(fs afero.Fs, c codec) *TarPacker {
	return &TarPacker{fs: fs, codec: c}
}

func (t *TarPacker) Extension() string {
	return t.codec.extension()
}

func (t *TarPacker) Pack(ctx context.Context, srcDir, destPath string) error {
	entries, err := collect(t.fs, srcDir)
	if err != nil {
		return err
	}

	tmpPath := destPath + ".partial"
	destFile, err := t.fs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create dest file: %w", err)
	}

	if err := t.write(ctx, destFile, entries); err != nil {
		destFile.Close()
		_ = t.fs.Remove(tmpPath)
		return err
	}
	if err := destFile.Close(); err != nil {
		_ = t.fs.Remove(tmpPath)
		return fmt.Errorf("failed to close dest file: %w", err)
	}

	return commit(t.fs, tmpPath, destPath)
}

func (t *TarPacker) write(ctx context.Context, w io.Writer, entries []walkEntry) error {
	compressed, err := t.codec.writer(w)
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}
	tarWriter := tar.NewWriter(compressed)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			compressed.Close()
			return err
		}

		header, err := tar.FileInfoHeader(entry.info, "")
		if err != nil {
			compressed.Close()
			return fmt.Errorf("failed to build header for %s: %w", entry.name, err)
		}
		header.Name = entry.name

		if err := tarWriter.WriteHeader(header); err != nil {
			compressed.Close()
			return fmt.Errorf("failed to add %s: %w", entry.name, err)
		}
		if entry.info.IsDir() {
			continue
		}
		if err := copyFrom(t.fs, entry.path, tarWriter); err != nil {
			compressed.Close()
			return fmt.Errorf("failed to compress %s: %w", entry.name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		compressed.Close()
		return fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := compressed.Close(); err != nil {
		return fmt.Errorf("failed to close compressor: %w", err)
	}
	return nil
}

// each opens the archive and calls fn for every header in stream order.
func (t *TarPacker) each(archivePath string, fn func(*tar.Header, io.Reader) error) error {
	file, err := t.fs.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer file.Close()

	decompressed, err := t.codec.reader(file)
	if err != nil {
		return fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer decompressed.Close()

	tarReader := tar.NewReader(decompressed)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		if err := fn(header, tarReader); err != nil {
			return err
		}
	}
}

func (t *TarPacker) Unpack(ctx context.Context, archivePath, destDir string) error {
	return t.each(archivePath, func(header *tar.Header, r io.Reader) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := t.fs.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create dest dir: %w", err)
			}
			return nil
		case tar.TypeReg:
			if err := t.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create dest dir: %w", err)
			}
			if err := writeTo(t.fs, target, header.FileInfo().Mode(), r); err != nil {
				return err
			}
			return t.fs.Chtimes(target, header.ModTime, header.ModTime)
		default:
			return nil
		}
	})
}

func (t *TarPacker) List(archivePath string) ([]domain.ArchiveEntry, error) {
	var entries []domain.ArchiveEntry
	err := t.each(archivePath, func(header *tar.Header, _ io.Reader) error {
		if header.Typeflag == tar.TypeReg {
			entries = append(entries, domain.ArchiveEntry{Name: header.Name, Size: header.Size})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
