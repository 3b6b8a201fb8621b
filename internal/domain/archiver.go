package domain

import "context"

// Packer turns a directory into a single compressed archive file and back.
type Packer interface {
	Pack(ctx context.Context, srcDir, destPath string) error
	Unpack(ctx context.Context, archivePath, destDir string) error
	List(archivePath string) ([]ArchiveEntry, error)
	Extension() string
}

type ArchiveEntry struct {
	Name string
	Size int64
}
