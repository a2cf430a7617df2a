package snapshot

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/skypeer/pkg/log"
	"github.com/autopeer-io/skypeer/pkg/options"
)

// presignExpiry is the lifetime of the URL returned for an uploaded snapshot.
const presignExpiry = 24 * time.Hour

// Uploader copies a snapshot to remote storage and returns a URL to it.
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (string, error)
}

type minioUploader struct {
	client     *minio.Client
	bucketName string
	prefix     string
}

// NewMinIOUploader returns an Uploader for an S3 compatible endpoint.
func NewMinIOUploader(opts *options.S3Options) (Uploader, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure:    opts.UseSSL,
		Region:    opts.Region,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &minioUploader{
		client:     client,
		bucketName: opts.BucketName,
		prefix:     opts.Prefix,
	}, nil
}

// CheckBucket creates the bucket when missing.
func (u *minioUploader) CheckBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", u.bucketName)
		if err := u.client.MakeBucket(ctx, u.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (u *minioUploader) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := path.Join(u.prefix, name)
	if _, err := u.client.PutObject(ctx, u.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	url, err := u.client.PresignedGetObject(ctx, u.bucketName, key, presignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned url: %w", err)
	}
	return url.String(), nil
}
