package sink

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vdavid/mailvault/internal/mail"
)

// ObjectStoreConfig holds the connection settings for an S3-compatible
// object store.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseTLS    bool
}

// ObjectStore writes artifacts to an S3-compatible bucket. Objects are
// keyed user/YYYYMMDD/fogname; the storage point it reports is
// "bucket:user/YYYYMMDD/".
type ObjectStore struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewObjectStore connects to the object store and verifies the bucket
// exists, creating it when missing.
func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to object store %s: %w", cfg.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &ObjectStore{client: client, bucket: cfg.Bucket, now: time.Now}, nil
}

func (o *ObjectStore) Name() string {
	return "s3"
}

func (o *ObjectStore) Write(ctx context.Context, id mail.Identity, artifact mail.Artifact, sentAt time.Time) (string, error) {
	day := sentAt
	if day.IsZero() {
		day = o.now()
	}
	prefix := fmt.Sprintf("%s/%s/", id.User, day.Format(dateLayout))
	key := prefix + artifact.Fogname

	reader := bytes.NewReader(artifact.Data)
	_, err := o.client.PutObject(ctx, o.bucket, key, reader, int64(len(artifact.Data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", fmt.Errorf("failed to store object %s: %w", key, err)
	}
	return fmt.Sprintf("%s:%s", o.bucket, prefix), nil
}
