// Package distribute ships run artifacts after a batch: object storage upload
// and the email notification carrying the HTML report.
package distribute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrStorageNotConfigured indicates object storage credentials are missing.
var ErrStorageNotConfigured = errors.New("object storage not configured")

// StorageConfig addresses the MinIO/S3 bucket receiving run artifacts.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether credentials are present.
func (c StorageConfig) Enabled() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// objectStore is the subset of *minio.Client used here.
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader copies local files into a bucket under a date prefix.
type Uploader struct {
	store  objectStore
	bucket string
	logger *slog.Logger
	now    func() time.Time
}

// NewUploader connects to the configured endpoint and creates the bucket if
// it does not exist.
func NewUploader(ctx context.Context, cfg StorageConfig, logger *slog.Logger) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, ErrStorageNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newUploader(ctx, client, cfg.Bucket, logger)
}

func newUploader(ctx context.Context, store objectStore, bucket string, logger *slog.Logger) (*Uploader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u := &Uploader{
		store:  store,
		bucket: bucket,
		logger: logger.With("component", "uploader", "bucket", bucket),
		now:    time.Now,
	}

	exists, err := store.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := store.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		u.logger.Info("bucket created")
	}
	return u, nil
}

// Upload stores localPath as <prefix>/<basename>.
func (u *Uploader) Upload(ctx context.Context, localPath, prefix string) error {
	fi, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	object := ObjectName(prefix, localPath)
	info, err := u.store.FPutObject(ctx, u.bucket, object, localPath, minio.PutObjectOptions{
		ContentType: ContentType(localPath),
		UserMetadata: map[string]string{
			"upload_date":   u.now().Format(time.RFC3339),
			"original_path": localPath,
			"file_size":     strconv.FormatInt(fi.Size(), 10),
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", object, err)
	}

	u.logger.Info("file uploaded", "object", object, "size", info.Size)
	return nil
}

// ObjectName joins prefix and the base name of path with exactly one slash.
func ObjectName(prefix, path string) string {
	name := filepath.Base(path)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

var contentTypes = map[string]string{
	".html":  "text/html",
	".json":  "application/json",
	".jsonl": "application/jsonl",
	".log":   "text/plain",
	".txt":   "text/plain",
	".pdf":   "application/pdf",
	".csv":   "text/csv",
}

// ContentType maps a file extension to its MIME type.
func ContentType(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}
