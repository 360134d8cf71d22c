package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/viralens/viralens/internal/config"
	"github.com/viralens/viralens/internal/domain"
)

// ObjectStore holds media bytes durably and hands back stable URLs.
type ObjectStore interface {
	// Upload stores media bytes under the given post and returns the
	// durable public URL.
	Upload(ctx context.Context, postID domain.PostID, mediaID, contentType string, data []byte) (string, error)

	// Download fetches the bytes of a previously uploaded object by its
	// storage URL.
	Download(ctx context.Context, storageURL string) ([]byte, string, error)
}

// MinIOStore implements ObjectStore on a MinIO/S3-compatible bucket.
type MinIOStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

// NewMinIOStore connects to the configured object storage endpoint and
// ensures the media bucket exists.
func NewMinIOStore(ctx context.Context, cfg config.StorageConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	publicBaseURL := cfg.PublicBaseURL
	if publicBaseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBaseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &MinIOStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

// Upload stores media bytes and returns the durable public URL.
func (s *MinIOStore) Upload(ctx context.Context, postID domain.PostID, mediaID, contentType string, data []byte) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	objectName := fmt.Sprintf("posts/%s/%s%s", postID, mediaID, extensionFor(contentType))

	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType: contentType,
			UserMetadata: map[string]string{
				"post-id":  postID.String(),
				"media-id": mediaID,
			},
		})
	if err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}

	return s.publicBaseURL + "/" + objectName, nil
}

// Download fetches the bytes of a previously uploaded object.
func (s *MinIOStore) Download(ctx context.Context, storageURL string) ([]byte, string, error) {
	objectName := strings.TrimPrefix(strings.TrimPrefix(storageURL, s.publicBaseURL), "/")
	if objectName == "" || objectName == storageURL {
		return nil, "", fmt.Errorf("storage URL %q is not under this store", storageURL)
	}

	object, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get object: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, "", fmt.Errorf("read object: %w", err)
	}

	stat, err := object.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("stat object: %w", err)
	}

	return data, stat.ContentType, nil
}

func extensionFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(contentType, "video/mp4"):
		return ".mp4"
	case strings.HasPrefix(contentType, "video/webm"):
		return ".webm"
	default:
		return ""
	}
}
