// Package storage wraps the S3 bucket that holds vendor feeds and run
// artifacts.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound is returned by DownloadBytes when the key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
}

// BlobStore reads vendor feeds and writes run artifacts in a single
// bucket.
type BlobStore struct {
	client    S3Client
	presigner S3Presigner
	bucket    string
}

// NewBlobStore wraps an existing client. presigner may be nil when
// presigned URLs are not needed.
func NewBlobStore(client S3Client, presigner S3Presigner, bucket string) *BlobStore {
	return &BlobStore{client: client, presigner: presigner, bucket: bucket}
}

// NewS3Client builds an SDK client. endpoint is optional and switches the
// client to path-style addressing for MinIO style stores; accessKey and
// secretKey are optional and fall back to the default credential chain.
func NewS3Client(ctx context.Context, region, endpoint, accessKey, secretKey string) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws configuration: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{}
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true // required for MinIO
		}
	})
	return client, nil
}

// ListLatest returns the newest object under prefix, breaking
// last-modified ties by the lexicographically greatest key, or nil when
// the prefix is empty.
func (b *BlobStore) ListLatest(ctx context.Context, prefix string) (*ObjectInfo, error) {
	var latest *ObjectInfo
	var continuation *string
	for {
		output, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		for _, item := range output.Contents {
			candidate := &ObjectInfo{
				Key: aws.ToString(item.Key),
			}
			if item.ETag != nil {
				candidate.ETag = *item.ETag
			}
			if item.Size != nil {
				candidate.Size = *item.Size
			}
			if item.LastModified != nil {
				candidate.LastModified = *item.LastModified
			}
			if latest == nil ||
				candidate.LastModified.After(latest.LastModified) ||
				(candidate.LastModified.Equal(latest.LastModified) && candidate.Key > latest.Key) {
				latest = candidate
			}
		}
		if output.IsTruncated == nil || !*output.IsTruncated {
			break
		}
		continuation = output.NextContinuationToken
	}
	return latest, nil
}

// DownloadBytes fetches an object body.
func (b *BlobStore) DownloadBytes(ctx context.Context, key string) ([]byte, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer result.Body.Close()
	body, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body %s: %w", key, err)
	}
	return body, nil
}

// UploadBytes writes an object.
func (b *BlobStore) UploadBytes(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// Presign returns a short-lived download URL for an artifact key.
func (b *BlobStore) Presign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if b.presigner == nil {
		return "", fmt.Errorf("presigner is not configured")
	}
	request, err := b.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", key, err)
	}
	return request.URL, nil
}
