package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

// Store uploads finalized images to S3-compatible blob storage and hands
// back the public URLs the catalog will serve.
type Store struct {
	client    *minio.Client
	bucket    string
	publicURL string
	logger    *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		logger:    logger,
	}, nil
}

// Upload stores one local file under the given key and returns its public
// URL. Keys may contain slashes for task-scoped prefixes.
func (s *Store) Upload(ctx context.Context, localPath, key, contentType string) (string, error) {
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	url := s.publicURL + "/" + key
	s.logger.Debug("Uploaded object",
		zap.String("key", key),
		zap.String("url", url),
	)

	return url, nil
}
