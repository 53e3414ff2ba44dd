// Package objstore publishes finished videos to S3-compatible object storage
// and hands back presigned download URLs. When storage is disabled the noop
// uploader keeps tasks on local library paths only.
package objstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/services"
)

// Uploader publishes a local file and returns a URL the task owner can fetch.
type Uploader interface {
	Upload(ctx context.Context, localPath string, taskID int64) (string, error)
	Enabled() bool
}

// Client uploads to a MinIO-compatible endpoint.
type Client struct {
	minio  *minio.Client
	bucket string
	expiry time.Duration
	logger *slog.Logger
}

// New builds an uploader from configuration. Disabled storage yields a noop.
func New(cfg *config.Config, logger *slog.Logger) (Uploader, error) {
	if cfg == nil || !cfg.Storage.Enabled {
		return Noop{}, nil
	}
	st := cfg.Storage
	if strings.TrimSpace(st.Endpoint) == "" || strings.TrimSpace(st.Bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "object storage", "endpoint and bucket required", nil)
	}

	mc, err := minio.New(st.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(st.AccessKey, st.SecretKey, ""),
		Secure: st.UseSSL,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "object storage", "create client", err)
	}

	expiry := time.Duration(st.URLExpiryHours) * time.Hour
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Client{
		minio:  mc,
		bucket: st.Bucket,
		expiry: expiry,
		logger: logging.NewComponentLogger(logger, "objstore"),
	}, nil
}

// Enabled reports that uploads go to remote storage.
func (c *Client) Enabled() bool { return true }

// Upload ensures the bucket exists, uploads localPath under tasks/<id>/, and
// returns a presigned GET URL.
func (c *Client) Upload(ctx context.Context, localPath string, taskID int64) (string, error) {
	if strings.TrimSpace(localPath) == "" {
		return "", services.Wrap(services.ErrValidation, "compositing", "upload video", "local path required", nil)
	}
	if taskID <= 0 {
		return "", services.Wrap(services.ErrValidation, "compositing", "upload video", "task id required", nil)
	}

	if err := c.ensureBucket(ctx); err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("tasks/%d/%s", taskID, filepath.Base(localPath))
	opts := minio.PutObjectOptions{ContentType: contentTypeFor(objectName)}
	if _, err := c.minio.FPutObject(ctx, c.bucket, objectName, localPath, opts); err != nil {
		return "", services.Wrap(services.ErrTransient, "compositing", "upload video", "put object", err)
	}

	presigned, err := c.minio.PresignedGetObject(ctx, c.bucket, objectName, c.expiry, url.Values{})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "compositing", "upload video", "presign url", err)
	}

	c.logger.Info("uploaded final video",
		logging.Int64(logging.FieldTaskID, taskID),
		logging.String("object", objectName),
		logging.Duration("url_expiry", c.expiry),
		logging.String(logging.FieldEventType, "video_uploaded"),
	)
	return presigned.String(), nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	exists, err := c.minio.BucketExists(ctx, c.bucket)
	if err != nil {
		return services.Wrap(services.ErrTransient, "compositing", "upload video", "check bucket", err)
	}
	if exists {
		return nil
	}
	if err := c.minio.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return services.Wrap(services.ErrTransient, "compositing", "upload video", "create bucket", err)
	}
	return nil
}

func contentTypeFor(objectName string) string {
	switch filepath.Ext(objectName) {
	case ".mp4":
		return "video/mp4"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// Noop satisfies Uploader when object storage is disabled.
type Noop struct{}

// Enabled reports that uploads are skipped.
func (Noop) Enabled() bool { return false }

// Upload returns an empty URL so callers fall back to the library path.
func (Noop) Upload(ctx context.Context, localPath string, taskID int64) (string, error) {
	return "", nil
}

var (
	_ Uploader = (*Client)(nil)
	_ Uploader = Noop{}
)
