package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	appconfig "github.com/semmidev/rotabak/internal/config"
	"github.com/semmidev/rotabak/internal/domain"
)

type GCSStorage struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS uses the service account in credentials_file when set, otherwise
// application default credentials.
func NewGCS(ctx context.Context, cfg *appconfig.UploadTarget) (*GCSStorage, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCS client: %w", domain.ErrCredentialsMissing, err)
	}

	return &GCSStorage{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (g *GCSStorage) Upload(ctx context.Context, localPath string, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, localPath)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	size, sum, err := digest(file)
	if err != nil {
		return err
	}

	w := g.client.Bucket(g.bucket).Object(g.fullKey(key)).NewWriter(ctx)
	w.Metadata = map[string]string{checksumMetadataKey: sum}

	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: failed to upload to GCS: %w", domain.ErrTransmission, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: failed to finalize GCS upload: %w", domain.ErrTransmission, err)
	}

	if attrs := w.Attrs(); attrs != nil && attrs.Size != size {
		return fmt.Errorf("%w: remote size %d, local size %d", domain.ErrTransmission, attrs.Size, size)
	}

	return nil
}

func (g *GCSStorage) List(ctx context.Context, prefix string) ([]domain.ObjectInfo, error) {
	fullPrefix := g.fullKey(prefix)
	if prefix == "" && g.prefix != "" {
		fullPrefix += "/"
	}

	var objects []domain.ObjectInfo
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: fullPrefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects: %w", err)
		}

		key := attrs.Name
		if g.prefix != "" {
			key = strings.TrimPrefix(strings.TrimPrefix(key, g.prefix), "/")
		}
		objects = append(objects, domain.ObjectInfo{
			Key:          key,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}

	return objects, nil
}

func (g *GCSStorage) Delete(ctx context.Context, key string) error {
	if err := g.client.Bucket(g.bucket).Object(g.fullKey(key)).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

func (g *GCSStorage) Close() error {
	return g.client.Close()
}

func (g *GCSStorage) fullKey(key string) string {
	if g.prefix == "" {
		return key
	}
	return path.Join(g.prefix, key)
}
