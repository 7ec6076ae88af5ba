package store

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mediaprofile/userauth/internal/auth"
)

// MediaConfig describes the object storage that hosts user images.
type MediaConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Region skips the bucket location lookup when set.
	Region string
	// PublicURL is the base under which objects are served. When empty the
	// endpoint itself is used.
	PublicURL string
}

// MinioMediaHost uploads images to a MinIO (or any S3 compatible) bucket.
type MinioMediaHost struct {
	client  *minio.Client
	bucket  string
	baseURL string
	newKey  func(folder, name string) string
}

func NewMinioMediaHost(ctx context.Context, cfg MediaConfig) (*MinioMediaHost, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}

	return &MinioMediaHost{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: publicBaseURL(cfg),
		newKey:  objectKey,
	}, nil
}

// Upload stores f under folder and returns its public URL.
func (h *MinioMediaHost) Upload(ctx context.Context, folder string, f *auth.MediaFile) (string, error) {
	if f == nil || f.Body == nil {
		return "", fmt.Errorf("minio upload: empty file")
	}
	size := f.Size
	if size <= 0 {
		size = -1
	}
	key := h.newKey(folder, f.Name)
	_, err := h.client.PutObject(ctx, h.bucket, key, f.Body, size, minio.PutObjectOptions{
		ContentType: f.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("minio put %s: %w", key, err)
	}
	return h.baseURL + "/" + h.bucket + "/" + key, nil
}

func objectKey(folder, name string) string {
	return folder + "/" + uuid.NewString() + strings.ToLower(path.Ext(name))
}

func publicBaseURL(cfg MediaConfig) string {
	if cfg.PublicURL != "" {
		return strings.TrimRight(cfg.PublicURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + cfg.Endpoint
}
