package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Blob transfers are long but never unbounded; a hung connection must fail
// into the retry policy rather than stall the worker.
const transferTimeout = 5 * time.Minute

type Storage struct {
	client     *miniogo.Client
	publicBase string
}

type StorageConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	PublicBase string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &Storage{
		client:     client,
		publicBase: strings.TrimRight(cfg.PublicBase, "/"),
	}, nil
}

func (s *Storage) EnsureBuckets(ctx context.Context, buckets ...string) error {
	for _, bucket := range buckets {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

func (s *Storage) Download(ctx context.Context, bucket, path, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()

	if err := s.client.FGetObject(ctx, bucket, path, destPath, miniogo.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download %s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *Storage) Upload(ctx context.Context, bucket, path, srcPath, contentType, cacheControl string) error {
	ctx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()

	_, err := s.client.FPutObject(ctx, bucket, path, srcPath, miniogo.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: cacheControl,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	return nil
}

// PublicURL follows the storage service's public object addressing scheme.
func (s *Storage) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		s.publicBase, bucket, strings.TrimLeft(path, "/"))
}
