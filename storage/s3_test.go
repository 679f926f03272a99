package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListLatest(t *testing.T) {
	ctx := context.Background()
	client := NewMockS3Client()
	base := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	client.Put("tenants/acme/inbound/vendor-a/feed-monday.csv", []byte("old"), base)
	client.Put("tenants/acme/inbound/vendor-a/feed-tuesday.csv", []byte("new"), base.Add(time.Hour))
	client.Put("tenants/acme/inbound/vendor-b/feed.csv", []byte("other"), base.Add(2*time.Hour))

	store := NewBlobStore(client, nil, "relay-inventory")

	latest, err := store.ListLatest(ctx, "tenants/acme/inbound/vendor-a/")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "tenants/acme/inbound/vendor-a/feed-tuesday.csv", latest.Key)
	assert.Equal(t, int64(3), latest.Size)
}

func TestListLatestTieBreaksOnKey(t *testing.T) {
	ctx := context.Background()
	client := NewMockS3Client()
	stamp := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	client.Put("inbound/vendor-a/feed-001.csv", []byte("a"), stamp)
	client.Put("inbound/vendor-a/feed-002.csv", []byte("b"), stamp)

	store := NewBlobStore(client, nil, "relay-inventory")
	latest, err := store.ListLatest(ctx, "inbound/vendor-a/")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "inbound/vendor-a/feed-002.csv", latest.Key)
}

func TestListLatestEmptyPrefix(t *testing.T) {
	store := NewBlobStore(NewMockS3Client(), nil, "relay-inventory")
	latest, err := store.ListLatest(context.Background(), "inbound/nobody/")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestDownloadUploadRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := NewMockS3Client()
	store := NewBlobStore(client, nil, "relay-inventory")

	require.NoError(t, store.UploadBytes(ctx, "run-1/reports/run_summary.json", []byte(`{"ok":true}`), "application/json"))
	assert.Equal(t, "relay-inventory", client.LastBucket)

	data, err := store.DownloadBytes(ctx, "run-1/reports/run_summary.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"ok":true}`), data)
	assert.Equal(t, "application/json", client.Objects["run-1/reports/run_summary.json"].ContentType)
}

func TestDownloadBytesNotFound(t *testing.T) {
	store := NewBlobStore(NewMockS3Client(), nil, "relay-inventory")
	_, err := store.DownloadBytes(context.Background(), "absent-key")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPresignRequiresPresigner(t *testing.T) {
	store := NewBlobStore(NewMockS3Client(), nil, "relay-inventory")
	_, err := store.Presign(context.Background(), "some-key", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "presigner is not configured")
}
