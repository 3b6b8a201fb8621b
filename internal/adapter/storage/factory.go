package storage

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/semmidev/rotabak/internal/config"
	"github.com/semmidev/rotabak/internal/domain"
)

const (
	TypeS3       = "s3"
	TypeGCS      = "gcs"
	TypeGDrive   = "gdrive"
	TypeTelegram = "telegram"
	TypeLocal    = "local"
)

// New builds the adapter for one configured upload target.
func New(ctx context.Context, fs afero.Fs, target *config.UploadTarget) (domain.Storage, error) {
	switch target.Type {
	case TypeS3:
		return NewS3(ctx, target)
	case TypeGCS:
		return NewGCS(ctx, target)
	case TypeGDrive:
		return NewGDrive(ctx, target)
	case TypeTelegram:
		return NewTelegram(target)
	case TypeLocal:
		return NewLocal(fs, target.Path)
	default:
		return nil, fmt.Errorf("unsupported upload target type: %s", target.Type)
	}
}
