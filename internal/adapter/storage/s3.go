package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	appconfig "github.com/semmidev/rotabak/internal/config"
	"github.com/semmidev/rotabak/internal/domain"
)

const checksumMetadataKey = "sha256"

type S3Storage struct {
	client      *s3.Client
	uploader    *s3manager.Uploader
	credentials aws.CredentialsProvider
	bucket      string
	prefix      string
}

// NewS3 builds an S3 client. Static keys are used when configured, otherwise
// the default AWS credential chain (environment, shared profile, instance
// role) is consulted at upload time.
func NewS3(ctx context.Context, cfg *appconfig.UploadTarget) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Storage{
		client:      client,
		uploader:    s3manager.NewUploader(client),
		credentials: awsCfg.Credentials,
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
	}, nil
}

// Upload puts localPath at key, overwriting any existing object, and checks
// the stored object against the local size and SHA-256.
func (s *S3Storage) Upload(ctx context.Context, localPath string, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, localPath)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if err := s.checkCredentials(ctx); err != nil {
		return err
	}

	size, sum, err := digest(file)
	if err != nil {
		return err
	}

	fullKey := s.fullKey(key)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(fullKey),
		Body:              file,
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		Metadata:          map[string]string{checksumMetadataKey: sum},
	})
	if err != nil {
		return fmt.Errorf("%w: failed to upload to S3: %w", domain.ErrTransmission, err)
	}

	return s.verify(ctx, fullKey, size, sum)
}

func (s *S3Storage) checkCredentials(ctx context.Context) error {
	if s.credentials == nil {
		return fmt.Errorf("%w: no AWS credential provider configured", domain.ErrCredentialsMissing)
	}
	if _, err := s.credentials.Retrieve(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCredentialsMissing, err)
	}
	return nil
}

func (s *S3Storage) verify(ctx context.Context, fullKey string, size int64, sum string) error {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to verify upload: %w", domain.ErrTransmission, err)
	}

	if head.ContentLength != nil && *head.ContentLength != size {
		return fmt.Errorf("%w: remote size %d, local size %d", domain.ErrTransmission, *head.ContentLength, size)
	}
	if remote, ok := head.Metadata[checksumMetadataKey]; ok && remote != sum {
		return fmt.Errorf("%w: remote checksum %s, local checksum %s", domain.ErrTransmission, remote, sum)
	}

	return nil
}

// List returns every object under prefix, keys relative to the target prefix.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]domain.ObjectInfo, error) {
	fullPrefix := s.fullKey(prefix)
	if prefix == "" && s.prefix != "" {
		fullPrefix += "/"
	}

	var objects []domain.ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}

		for _, obj := range page.Contents {
			info := domain.ObjectInfo{Key: s.stripPrefix(aws.ToString(obj.Key))}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			if info.Key != "" {
				objects = append(objects, info)
			}
		}
	}

	return objects, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	return nil
}

func (s *S3Storage) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *S3Storage) stripPrefix(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
}

// digest hashes f from the start and rewinds it.
func digest(f io.ReadSeeker) (int64, string, error) {
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("failed to hash file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, "", fmt.Errorf("failed to rewind file: %w", err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
