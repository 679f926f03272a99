package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relay-commerce/relay-inventory/models"
)

func TestMemoryRunStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRunStore()

	_, err := store.GetRun(ctx, "run-1")
	assert.ErrorIs(t, err, ErrNotFound)

	requested := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateRun(ctx, &models.RunRecord{
		RunID:       "run-1",
		TenantID:    "acme",
		Status:      models.StatusQueued,
		Stage:       models.StageQueue,
		RequestedAt: &requested,
	}))

	started := requested.Add(time.Second)
	require.NoError(t, store.UpdateRun(ctx, "run-1", models.StatusRunning, models.RunUpdate{
		Stage:     models.StageFetchInputs,
		StartedAt: &started,
	}))

	record, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, record.Status)
	assert.Equal(t, models.StageFetchInputs, record.Stage)
	require.NotNil(t, record.StartedAt)
	assert.Equal(t, started, *record.StartedAt)

	finished := started.Add(time.Minute)
	require.NoError(t, store.UpdateRun(ctx, "run-1", models.StatusFailed, models.RunUpdate{
		FailedStage:  models.StageNormalize,
		ErrorCode:    models.ErrDecodeError,
		ErrorMessage: "boom",
		FinishedAt:   &finished,
	}))

	record, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, record.Status)
	assert.Equal(t, models.StageNormalize, record.FailedStage)
	assert.Equal(t, models.ErrDecodeError, record.ErrorCode)

	// a later success clears the failure fields
	require.NoError(t, store.UpdateRun(ctx, "run-1", models.StatusSucceeded, models.RunUpdate{
		Stage: models.StageComplete,
		ClearFields: []string{
			models.FieldFailedStage,
			models.FieldErrorCode,
			models.FieldErrorMessage,
			models.FieldErrorsArtifactKey,
			models.FieldErrorReportKey,
		},
	}))
	record, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, record.Status)
	assert.Empty(t, record.FailedStage)
	assert.Empty(t, record.ErrorCode)
	assert.Empty(t, record.ErrorMessage)
}

func TestMemoryRunStoreUpdateMissing(t *testing.T) {
	store := NewMemoryRunStore()
	err := store.UpdateRun(context.Background(), "absent", models.StatusRunning, models.RunUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRunStoreFindRunningByTenant(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRunStore()
	require.NoError(t, store.CreateRun(ctx, &models.RunRecord{RunID: "run-1", TenantID: "acme", Status: models.StatusRunning}))
	require.NoError(t, store.CreateRun(ctx, &models.RunRecord{RunID: "run-2", TenantID: "acme", Status: models.StatusQueued}))
	require.NoError(t, store.CreateRun(ctx, &models.RunRecord{RunID: "run-3", TenantID: "other", Status: models.StatusRunning}))

	found, err := store.FindRunningByTenant(ctx, "acme", "")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "run-1", found.RunID)

	found, err = store.FindRunningByTenant(ctx, "acme", "run-1")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = store.FindRunningByTenant(ctx, "nobody", "")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestMemoryTenantStoreVersions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTenantStore()

	_, err := store.GetLatestTenantConfig(ctx, "acme")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.PutTenantConfig(ctx, &models.TenantRecord{
		TenantID:      "acme",
		ConfigVersion: 1,
		Config:        models.TenantConfig{TenantID: "acme", Timezone: "UTC"},
	}))
	require.NoError(t, store.PutTenantConfig(ctx, &models.TenantRecord{
		TenantID:      "acme",
		ConfigVersion: 2,
		Config:        models.TenantConfig{TenantID: "acme", Timezone: "America/New_York"},
	}))

	latest, err := store.GetLatestTenantConfig(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.ConfigVersion)
	assert.Equal(t, "America/New_York", latest.Config.Timezone)

	pinned, err := store.GetTenantConfig(ctx, "acme", 1)
	require.NoError(t, err)
	assert.Equal(t, "UTC", pinned.Config.Timezone)

	_, err = store.GetTenantConfig(ctx, "acme", 9)
	assert.ErrorIs(t, err, ErrNotFound)
}
