// Package persistence stores run records and versioned tenant
// configurations. DynamoDB backs the deployed service; a bbolt store backs
// the local runner and an in-memory store backs tests.
package persistence

import (
	"context"
	"errors"

	"github.com/relay-commerce/relay-inventory/models"
)

// ErrNotFound is returned when a run or tenant config does not exist.
var ErrNotFound = errors.New("not found")

// RunStore persists run records keyed by run_id.
type RunStore interface {
	CreateRun(ctx context.Context, record *models.RunRecord) error
	GetRun(ctx context.Context, runID string) (*models.RunRecord, error)
	// UpdateRun sets the status and applies the partial update. The
	// caller owns stage clamping; the store writes what it is given.
	UpdateRun(ctx context.Context, runID, status string, update models.RunUpdate) error
	// FindRunningByTenant returns some run for the tenant in the RUNNING
	// state, excluding excludeRunID, or nil when there is none. The check
	// is best effort and callers must tolerate false negatives.
	FindRunningByTenant(ctx context.Context, tenantID, excludeRunID string) (*models.RunRecord, error)
}

// TenantStore persists append-only tenant config versions.
type TenantStore interface {
	PutTenantConfig(ctx context.Context, record *models.TenantRecord) error
	GetTenantConfig(ctx context.Context, tenantID string, version int) (*models.TenantRecord, error)
	GetLatestTenantConfig(ctx context.Context, tenantID string) (*models.TenantRecord, error)
}
