package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/relay-commerce/relay-inventory/models"
)

const (
	runsBucket    = "runs"
	tenantsBucket = "tenants"
)

// BoltStore backs the local runner with a single bbolt file implementing
// both RunStore and TenantStore.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database file and its buckets.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{runsBucket, tenantsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) putJSON(bucket, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
	})
}

func (s *BoltStore) getJSON(bucket, key string, value interface{}) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, value)
	})
}

func (s *BoltStore) CreateRun(ctx context.Context, record *models.RunRecord) error {
	return s.putJSON(runsBucket, record.RunID, record)
}

func (s *BoltStore) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	var record models.RunRecord
	if err := s.getJSON(runsBucket, runID, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *BoltStore) UpdateRun(ctx context.Context, runID, status string, update models.RunUpdate) error {
	record, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
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
	return s.putJSON(runsBucket, runID, record)
}

func (s *BoltStore) FindRunningByTenant(ctx context.Context, tenantID, excludeRunID string) (*models.RunRecord, error) {
	var found *models.RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(k, v []byte) error {
			if found != nil {
				return nil
			}
			var record models.RunRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal %s: %w", k, err)
			}
			if record.TenantID == tenantID && record.Status == models.StatusRunning && record.RunID != excludeRunID {
				found = &record
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func tenantKey(tenantID string, version int) string {
	return fmt.Sprintf("%s/%08d", tenantID, version)
}

func (s *BoltStore) PutTenantConfig(ctx context.Context, record *models.TenantRecord) error {
	return s.putJSON(tenantsBucket, tenantKey(record.TenantID, record.ConfigVersion), record)
}

func (s *BoltStore) GetTenantConfig(ctx context.Context, tenantID string, version int) (*models.TenantRecord, error) {
	var record models.TenantRecord
	if err := s.getJSON(tenantsBucket, tenantKey(tenantID, version), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetLatestTenantConfig relies on the zero-padded version suffix sorting
// lexicographically, so the last key under the tenant prefix is the
// highest version.
func (s *BoltStore) GetLatestTenantConfig(ctx context.Context, tenantID string) (*models.TenantRecord, error) {
	var record *models.TenantRecord
	prefix := []byte(tenantID + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(tenantsBucket)).Cursor()
		var lastValue []byte
		for k, v := cursor.Seek(prefix); k != nil && len(k) > len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = cursor.Next() {
			lastValue = v
		}
		if lastValue == nil {
			return ErrNotFound
		}
		record = &models.TenantRecord{}
		return json.Unmarshal(lastValue, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
