package models

import (
	"time"
)

// Run statuses. QUEUED and RUNNING are transient; SUCCEEDED and FAILED are
// terminal and always carry finished_at.
const (
	StatusQueued    = "QUEUED"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// Pipeline stages in execution order. The stage field on a run record is
// monotone: a write that would regress it is clamped to the current value.
const (
	StageQueue        = "QUEUE"
	StageFetchInputs  = "FETCH_INPUTS"
	StageNormalize    = "NORMALIZE"
	StageMergePrice   = "MERGE_PRICE"
	StageWriteOutputs = "WRITE_OUTPUTS"
	StageComplete     = "COMPLETE"
)

var stageOrder = map[string]int{
	StageQueue:        0,
	StageFetchInputs:  1,
	StageNormalize:    2,
	StageMergePrice:   3,
	StageWriteOutputs: 4,
	StageComplete:     5,
}

// StageIndex returns the ordinal of a stage, or -1 for unknown values so
// unknown stages never win a clamp.
func StageIndex(stage string) int {
	idx, ok := stageOrder[stage]
	if !ok {
		return -1
	}
	return idx
}

// MaxStage returns whichever of the two stages is further along.
func MaxStage(current, proposed string) string {
	if StageIndex(proposed) > StageIndex(current) {
		return proposed
	}
	return current
}

// Run-level error codes written to failed run records.
const (
	ErrMissingTenantConfig      = "missing_tenant_config"
	ErrUnsupportedSchemaVersion = "unsupported_schema_version"
	ErrRequiredVendorMissing    = "REQUIRED_VENDOR_MISSING"
	ErrOptionalVendorMissing    = "OPTIONAL_VENDOR_MISSING"
	ErrDecodeError              = "DECODE_ERROR"
	ErrMissingRequiredColumns   = "missing_required_columns"
	ErrInvalidInput             = "invalid_input"
	ErrNoRowsParsed             = "no_rows_parsed"
	ErrValidationErrors         = "validation_errors"
	ErrPoisonJob                = "POISON_JOB"
)

// RunRecord is the persisted state of one run, keyed by run_id. The worker
// owns every transition after QUEUED.
type RunRecord struct {
	RunID             string            `json:"run_id" dynamodbav:"run_id"`
	TenantID          string            `json:"tenant_id" dynamodbav:"tenant_id"`
	ConfigVersion     int               `json:"config_version" dynamodbav:"config_version"`
	Status            string            `json:"status" dynamodbav:"status"`
	Stage             string            `json:"stage,omitempty" dynamodbav:"stage,omitempty"`
	RequestedAt       *time.Time        `json:"requested_at,omitempty" dynamodbav:"requested_at,omitempty"`
	StartedAt         *time.Time        `json:"started_at,omitempty" dynamodbav:"started_at,omitempty"`
	FinishedAt        *time.Time        `json:"finished_at,omitempty" dynamodbav:"finished_at,omitempty"`
	FailedStage       string            `json:"failed_stage,omitempty" dynamodbav:"failed_stage,omitempty"`
	ErrorCode         string            `json:"error_code,omitempty" dynamodbav:"error_code,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty" dynamodbav:"error_message,omitempty"`
	ErrorsArtifactKey string            `json:"errors_artifact_key,omitempty" dynamodbav:"errors_artifact_key,omitempty"`
	ErrorReportKey    string            `json:"error_report_key,omitempty" dynamodbav:"error_report_key,omitempty"`
	Artifacts         map[string]string `json:"artifacts,omitempty" dynamodbav:"artifacts,omitempty"`
}

// RunUpdate is a partial update applied by RunStore.UpdateStatus. Nil/empty
// fields are left untouched; ClearFields lists attributes to remove.
type RunUpdate struct {
	Stage             string
	StartedAt         *time.Time
	FinishedAt        *time.Time
	FailedStage       string
	ErrorCode         string
	ErrorMessage      string
	ErrorsArtifactKey string
	ErrorReportKey    string
	Artifacts         map[string]string
	ClearFields       []string
}

// Clearable run record field names accepted in RunUpdate.ClearFields.
const (
	FieldFailedStage       = "failed_stage"
	FieldErrorCode         = "error_code"
	FieldErrorMessage      = "error_message"
	FieldErrorsArtifactKey = "errors_artifact_key"
	FieldErrorReportKey    = "error_report_key"
)
