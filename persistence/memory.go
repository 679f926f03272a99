package persistence

import (
	"context"
	"sync"

	"github.com/relay-commerce/relay-inventory/models"
)

// MemoryRunStore is an in-process RunStore for tests and the local
// runner's dry mode.
type MemoryRunStore struct {
	mu   sync.Mutex
	runs map[string]*models.RunRecord
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*models.RunRecord)}
}

func (s *MemoryRunStore) CreateRun(ctx context.Context, record *models.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.runs[record.RunID] = &clone
	return nil
}

func (s *MemoryRunStore) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryRunStore) UpdateRun(ctx context.Context, runID, status string, update models.RunUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}
	record.Status = status
	if update.Stage != "" {
		record.Stage = update.Stage
	}
	if update.StartedAt != nil {
		record.StartedAt = update.StartedAt
	}
	if update.FinishedAt != nil {
		record.FinishedAt = update.FinishedAt
	}
	if update.FailedStage != "" {
		record.FailedStage = update.FailedStage
	}
	if update.ErrorCode != "" {
		record.ErrorCode = update.ErrorCode
	}
	if update.ErrorMessage != "" {
		record.ErrorMessage = update.ErrorMessage
	}
	if update.ErrorsArtifactKey != "" {
		record.ErrorsArtifactKey = update.ErrorsArtifactKey
	}
	if update.ErrorReportKey != "" {
		record.ErrorReportKey = update.ErrorReportKey
	}
	if len(update.Artifacts) > 0 {
		record.Artifacts = update.Artifacts
	}
	for _, field := range update.ClearFields {
		switch field {
		case models.FieldFailedStage:
			record.FailedStage = ""
		case models.FieldErrorCode:
			record.ErrorCode = ""
		case models.FieldErrorMessage:
			record.ErrorMessage = ""
		case models.FieldErrorsArtifactKey:
			record.ErrorsArtifactKey = ""
		case models.FieldErrorReportKey:
			record.ErrorReportKey = ""
		}
	}
	return nil
}

func (s *MemoryRunStore) FindRunningByTenant(ctx context.Context, tenantID, excludeRunID string) (*models.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.runs {
		if record.TenantID == tenantID && record.Status == models.StatusRunning && record.RunID != excludeRunID {
			clone := *record
			return &clone, nil
		}
	}
	return nil, nil
}

// MemoryTenantStore is an in-process TenantStore.
type MemoryTenantStore struct {
	mu      sync.Mutex
	configs map[string]map[int]*models.TenantRecord
}

func NewMemoryTenantStore() *MemoryTenantStore {
	return &MemoryTenantStore{configs: make(map[string]map[int]*models.TenantRecord)}
}

func (s *MemoryTenantStore) PutTenantConfig(ctx context.Context, record *models.TenantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.configs[record.TenantID]
	if !ok {
		versions = make(map[int]*models.TenantRecord)
		s.configs[record.TenantID] = versions
	}
	clone := *record
	versions[record.ConfigVersion] = &clone
	return nil
}

func (s *MemoryTenantStore) GetTenantConfig(ctx context.Context, tenantID string, version int) (*models.TenantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.configs[tenantID][version]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryTenantStore) GetLatestTenantConfig(ctx context.Context, tenantID string) (*models.TenantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.configs[tenantID]
	if !ok || len(versions) == 0 {
		return nil, ErrNotFound
	}
	latest := -1
	for version := range versions {
		if version > latest {
			latest = version
		}
	}
	clone := *versions[latest]
	return &clone, nil
}
