package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ImageStoreConfig configures the object store holding original and
// AI-generated images.
type ImageStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	CacheSize int
}

// ImageStore reads and writes image blobs by object key. Reads go through a
// small in-process LRU cache since the same original image is fetched for
// every action of a round.
type ImageStore struct {
	client *minio.Client
	bucket string

	cache    *lru.Cache[string, []byte]
	initOnce sync.Once
	initErr  error
}

func NewImageStore(cfg ImageStoreConfig) (*ImageStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("image store endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("image store bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init image store client: %w", err)
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = 64
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("init image cache: %w", err)
	}

	return &ImageStore{
		client: client,
		bucket: cfg.Bucket,
		cache:  cache,
	}, nil
}

func (s *ImageStore) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			s.initErr = err
		}
	})
	return s.initErr
}

// Put stores image bytes and returns the generated object key.
func (s *ImageStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}

	key := "images/" + uuid.New().String()
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		slog.Error("Failed to store image", "error", err, "key", key)
		return "", fmt.Errorf("put image: %w", err)
	}

	s.cache.Add(key, data)
	slog.Info("Image stored", "key", key, "size", len(data))
	return key, nil
}

// Get fetches image bytes by object key.
func (s *ImageStore) Get(ctx context.Context, key string) ([]byte, error) {
	if data, ok := s.cache.Get(key); ok {
		return data, nil
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		slog.Error("Failed to fetch image", "error", err, "key", key)
		return nil, fmt.Errorf("get image: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		slog.Error("Failed to read image", "error", err, "key", key)
		return nil, fmt.Errorf("read image: %w", err)
	}

	s.cache.Add(key, data)
	return data, nil
}
