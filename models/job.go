package models

import (
	"encoding/json"
	"fmt"
)

// RunJob is the queue message body dispatched by the control API and
// consumed by the worker.
type RunJob struct {
	RunID         string   `json:"run_id"`
	TenantID      string   `json:"tenant_id"`
	Vendors       []string `json:"vendors"`
	ConfigVersion int      `json:"config_version"`
}

// ParseRunJob decodes and validates a queue message body. A malformed body
// is treated as poison by the worker loop.
func ParseRunJob(body []byte) (*RunJob, error) {
	var job RunJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("malformed job body: %w", err)
	}
	if job.RunID == "" {
		return nil, fmt.Errorf("malformed job body: missing run_id")
	}
	if job.TenantID == "" {
		return nil, fmt.Errorf("malformed job body: missing tenant_id")
	}
	return &job, nil
}
