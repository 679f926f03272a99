package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MockS3Client is an in-memory S3Client for testing
type MockS3Client struct {
	// Objects stores mock S3 objects with their content and metadata
	Objects map[string]*MockS3Object
	// Error to return from operations
	Err error
	// Track function calls
	PutObjectCalled     bool
	ListObjectsV2Called bool
	GetObjectCalled     bool
	// Store last call parameters
	LastBucket    string
	LastObjectKey string
}

// MockS3Object represents a mock S3 object
type MockS3Object struct {
	Key          string
	Content      []byte
	ContentType  string
	LastModified time.Time
}

// NewMockS3Client creates a new mock S3 client
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		Objects: make(map[string]*MockS3Object),
	}
}

// Put seeds an object directly.
func (m *MockS3Client) Put(key string, content []byte, lastModified time.Time) {
	m.Objects[key] = &MockS3Object{
		Key:          key,
		Content:      content,
		LastModified: lastModified,
	}
}

// PutObject mocks uploading an object
func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.PutObjectCalled = true
	if params.Bucket != nil {
		m.LastBucket = *params.Bucket
	}
	if params.Key != nil {
		m.LastObjectKey = *params.Key
	}

	if m.Err != nil {
		return nil, m.Err
	}

	var content []byte
	if params.Body != nil {
		data, err := io.ReadAll(params.Body)
		if err == nil {
			content = data
		}
	}

	if params.Key != nil {
		obj := &MockS3Object{
			Key:          *params.Key,
			Content:      content,
			LastModified: time.Now(),
		}
		if params.ContentType != nil {
			obj.ContentType = *params.ContentType
		}
		m.Objects[*params.Key] = obj
	}

	return &s3.PutObjectOutput{}, nil
}

// ListObjectsV2 mocks listing objects
func (m *MockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.ListObjectsV2Called = true
	if params.Bucket != nil {
		m.LastBucket = *params.Bucket
	}

	if m.Err != nil {
		return nil, m.Err
	}

	prefix := ""
	if params.Prefix != nil {
		prefix = *params.Prefix
	}

	var contents []types.Object
	for key, obj := range m.Objects {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			contents = append(contents, types.Object{
				Key:          aws.String(obj.Key),
				Size:         aws.Int64(int64(len(obj.Content))),
				LastModified: aws.Time(obj.LastModified),
			})
		}
	}

	return &s3.ListObjectsV2Output{
		Contents:    contents,
		IsTruncated: aws.Bool(false),
	}, nil
}

// GetObject mocks retrieving an object
func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.GetObjectCalled = true
	if params.Bucket != nil {
		m.LastBucket = *params.Bucket
	}
	if params.Key != nil {
		m.LastObjectKey = *params.Key
	}

	if m.Err != nil {
		return nil, m.Err
	}

	if params.Key != nil {
		if obj, exists := m.Objects[*params.Key]; exists {
			output := &s3.GetObjectOutput{
				Body: io.NopCloser(bytes.NewReader(obj.Content)),
			}
			if obj.ContentType != "" {
				output.ContentType = aws.String(obj.ContentType)
			}
			return output, nil
		}
	}

	return nil, &types.NoSuchKey{}
}
