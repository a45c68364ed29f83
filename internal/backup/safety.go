package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/akarpov87/mealkeep/internal/models"
)

// SafetyWriter persists a snapshot of the current store before a
// destructive import overwrites it.
type SafetyWriter interface {
	// WriteSnapshot saves the records somewhere recoverable and returns a
	// human-readable location.
	WriteSnapshot(ctx context.Context, recs []models.Record) (string, error)
}

// Uploader copies a safety backup file to off-machine storage. When
// object storage is not configured the NoopUploader is used and the
// backup stays local only.
type Uploader interface {
	Upload(ctx context.Context, objectName, filePath string) error
}

// LocalSafety writes timestamped snapshot files into a directory and
// optionally mirrors them to object storage.
type LocalSafety struct {
	dir      string
	uploader Uploader
	now      func() time.Time
}

// NewLocalSafety builds a SafetyWriter rooted at dir. uploader may be
// nil.
func NewLocalSafety(dir string, uploader Uploader) *LocalSafety {
	if uploader == nil {
		uploader = &NoopUploader{}
	}
	return &LocalSafety{dir: dir, uploader: uploader, now: time.Now}
}

func (s *LocalSafety) WriteSnapshot(ctx context.Context, recs []models.Record) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup dir: %w", err)
	}

	name := fmt.Sprintf("safety-%s.json", s.now().UTC().Format("20060102-150405"))
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	if err := WriteVerbose(f, recs, nil); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close backup file: %w", err)
	}

	if err := s.uploader.Upload(ctx, name, path); err != nil {
		return "", fmt.Errorf("failed to upload backup: %w", err)
	}
	return path, nil
}

// ObjectStorageConfig configures the optional S3-compatible mirror for
// safety backups. An empty Bucket disables uploading.
type ObjectStorageConfig struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	UseSSL    bool   `json:"use_ssl"`
}

// s3Client is the minimal minio surface used, so tests can stub it.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string,
		opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Uploader mirrors safety backups to an S3-compatible bucket.
type S3Uploader struct {
	client s3Client
	bucket string
}

func (u *S3Uploader) Upload(ctx context.Context, objectName, filePath string) error {
	opts := minio.PutObjectOptions{ContentType: "application/json"}
	if _, err := u.client.FPutObject(ctx, u.bucket, objectName, filePath, opts); err != nil {
		return fmt.Errorf("failed to upload to object storage: %w", err)
	}
	return nil
}

// NoopUploader keeps safety backups local-only.
type NoopUploader struct{}

func (u *NoopUploader) Upload(ctx context.Context, objectName, filePath string) error {
	return nil
}

// NewUploader returns a NoopUploader when cfg.Bucket is empty, an
// S3Uploader otherwise.
func NewUploader(cfg ObjectStorageConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return &NoopUploader{}, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return &S3Uploader{client: client, bucket: cfg.Bucket}, nil
}
