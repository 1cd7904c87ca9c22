package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"rentguru/internal/app/policies"
)

const DefaultMaxSize = 10 << 20

var (
	ErrEmptyAttachment = errors.New("s3: attachment is empty")
	ErrTooLarge        = errors.New("s3: attachment is too large")
)

// Attachments stores chat attachments in an S3-compatible bucket and
// returns their public URL.
type Attachments struct {
	bucket         string
	publicBaseURL  string
	client         *minio.Client
	logger         *slog.Logger
	MaxSize        int
	bucketInitOnce sync.Once
	bucketInitErr  error
}

func NewAttachments(endpoint string, useSSL bool, accessKey, secretKey, bucket, publicBaseURL string, logger *slog.Logger) (*Attachments, error) {
	cleanEndpoint := strings.TrimSpace(endpoint)
	if cleanEndpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	client, err := minio.New(parseEndpoint(cleanEndpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey), ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	base := strings.TrimSpace(publicBaseURL)
	if base == "" {
		base = cleanEndpoint
	}
	return &Attachments{
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(base, "/"),
		client:        client,
		logger:        logger,
		MaxSize:       DefaultMaxSize,
	}, nil
}

func (a *Attachments) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyAttachment
	}
	if a.MaxSize > 0 && len(data) > a.MaxSize {
		return "", ErrTooLarge
	}
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("s3: object key is required")
	}
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("s3: put object: %w", err)
	}
	publicURL := a.objectURL(key)
	if a.logger != nil {
		a.logger.InfoContext(ctx, "attachment stored", "bucket", a.bucket, "key", key, "size", len(data))
	}
	return publicURL, nil
}

// Ready checks that the bucket is reachable.
func (a *Attachments) Ready(ctx context.Context) error {
	_, err := a.client.BucketExists(ctx, a.bucket)
	return err
}

func (a *Attachments) ensureBucket(ctx context.Context) error {
	a.bucketInitOnce.Do(func() {
		exists, err := a.client.BucketExists(ctx, a.bucket)
		if err != nil {
			a.bucketInitErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			a.bucketInitErr = fmt.Errorf("s3: create bucket: %w", err)
			return
		}
		policy := fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, a.bucket)
		if err := a.client.SetBucketPolicy(ctx, a.bucket, policy); err != nil {
			a.bucketInitErr = fmt.Errorf("s3: set bucket policy: %w", err)
		}
	})
	return a.bucketInitErr
}

func (a *Attachments) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", a.publicBaseURL, a.bucket, strings.TrimLeft(key, "/"))
}

func parseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var _ policies.AttachmentStore = (*Attachments)(nil)
