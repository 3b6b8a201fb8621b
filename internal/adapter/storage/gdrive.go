package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/semmidev/rotabak/internal/config"
	"github.com/semmidev/rotabak/internal/domain"
)

// GDriveStorage uploads into a single Drive folder. Drive has no key
// hierarchy, so the remote key is flattened into the file name.
type GDriveStorage struct {
	service  *drive.Service
	folderID string
	prefix   string
}

func NewGDrive(ctx context.Context, cfg *config.UploadTarget) (*GDriveStorage, error) {
	service, err := drive.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create drive service: %w", domain.ErrCredentialsMissing, err)
	}

	return &GDriveStorage{
		service:  service,
		folderID: cfg.FolderID,
		prefix:   cfg.Prefix,
	}, nil
}

// Upload replaces a file of the same name if one exists.
func (g *GDriveStorage) Upload(ctx context.Context, localPath string, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, localPath)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	name := g.fileName(key)
	existing, err := g.find(ctx, name)
	if err != nil {
		return err
	}

	if existing != "" {
		_, err = g.service.Files.Update(existing, &drive.File{}).
			Media(file).
			Context(ctx).
			Do()
	} else {
		_, err = g.service.Files.Create(&drive.File{
			Name:    name,
			Parents: []string{g.folderID},
		}).
			Media(file).
			Context(ctx).
			Do()
	}
	if err != nil {
		return fmt.Errorf("%w: failed to upload to gdrive: %w", domain.ErrTransmission, err)
	}

	return nil
}

func (g *GDriveStorage) find(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf("'%s' in parents and name='%s' and trashed=false",
		g.folderID, strings.ReplaceAll(name, "'", `\'`))

	fileList, err := g.service.Files.List().
		Q(query).
		Fields("files(id)").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("%w: failed to look up %s: %w", domain.ErrTransmission, name, err)
	}

	if len(fileList.Files) == 0 {
		return "", nil
	}
	return fileList.Files[0].Id, nil
}

func (g *GDriveStorage) fileName(key string) string {
	if g.prefix != "" {
		key = g.prefix + "/" + key
	}
	return strings.ReplaceAll(key, "/", "_")
}
