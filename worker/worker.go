// Package worker consumes run jobs from the queue and drives each run
// through its staged pipeline to a terminal status.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relay-commerce/relay-inventory/common"
	"github.com/relay-commerce/relay-inventory/config"
	"github.com/relay-commerce/relay-inventory/engine"
	"github.com/relay-commerce/relay-inventory/engine/canonical"
	"github.com/relay-commerce/relay-inventory/metrics"
	"github.com/relay-commerce/relay-inventory/models"
	"github.com/relay-commerce/relay-inventory/persistence"
	"github.com/relay-commerce/relay-inventory/queue"
	"github.com/relay-commerce/relay-inventory/storage"
)

// errDefer tells the queue loop to leave the message alone without
// treating the job as failed. Used for the tenant-lock backoff and for
// redeliveries of already-poisoned runs.
var errDefer = errors.New("job deferred")

// Worker executes run jobs. One Worker serves a whole process; jobs run
// concurrently up to the configured limit.
type Worker struct {
	blobs   *storage.BlobStore
	queue   *queue.JobQueue
	runs    persistence.RunStore
	tenants persistence.TenantStore
	metrics metrics.Sink
	cfg     config.WorkerConfig
	logger  *logrus.Logger

	now func() time.Time
}

// New wires a worker. logger may be nil to use the shared logger.
func New(blobs *storage.BlobStore, jobQueue *queue.JobQueue, runs persistence.RunStore, tenants persistence.TenantStore, sink metrics.Sink, cfg config.WorkerConfig, logger *logrus.Logger) *Worker {
	if logger == nil {
		logger = common.Logger
	}
	return &Worker{
		blobs:   blobs,
		queue:   jobQueue,
		runs:    runs,
		tenants: tenants,
		metrics: sink,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

func tenantPrefix(runID, tenantID string) string {
	return fmt.Sprintf("%s/tenants/%s", runID, tenantID)
}

// manifestEntry records how one vendor's input was selected.
type manifestEntry struct {
	VendorID     string `json:"vendor_id"`
	Missing      bool   `json:"missing,omitempty"`
	Key          string `json:"key,omitempty"`
	ETag         string `json:"etag,omitempty"`
	Size         int64  `json:"size,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	RunCopyKey   string `json:"run_copy_key,omitempty"`
	Selection    string `json:"selection,omitempty"`
	SkuMapKey    string `json:"sku_map_key,omitempty"`
}

// reportEntry is one element of the errors.json artifact, either a
// rejected row or a vendor-level problem.
type reportEntry struct {
	VendorID  string            `json:"vendor_id,omitempty"`
	Code      string            `json:"code,omitempty"`
	RowNumber int               `json:"row_number,omitempty"`
	Reason    string            `json:"reason"`
	RowData   map[string]string `json:"row_data,omitempty"`
}

// updateRun applies a partial update with the stage clamped so it never
// regresses, then mirrors the result onto the in-memory record.
func (w *Worker) updateRun(ctx context.Context, record *models.RunRecord, status string, update models.RunUpdate) error {
	if update.Stage != "" {
		update.Stage = models.MaxStage(record.Stage, update.Stage)
	}
	if err := w.runs.UpdateRun(ctx, record.RunID, status, update); err != nil {
		return common.Retryable(err)
	}
	record.Status = status
	if update.Stage != "" {
		record.Stage = update.Stage
	}
	if update.FinishedAt != nil {
		record.FinishedAt = update.FinishedAt
	}
	return nil
}

func (w *Worker) uploadJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return common.NonRetryable(models.ErrInvalidInput, fmt.Sprintf("failed to marshal %s: %v", key, err))
	}
	if err := w.blobs.UploadBytes(ctx, key, data, "application/json"); err != nil {
		return common.Retryable(err)
	}
	return nil
}

// failRun writes the terminal FAILED state: it guarantees an error
// artifact exists, records the failure fields with finished_at, emits the
// failure metric and returns a NonRetryableError for the queue loop.
func (w *Worker) failRun(ctx context.Context, record *models.RunRecord, failedStage, code, message string, artifacts map[string]string, entries []reportEntry) error {
	prefix := tenantPrefix(record.RunID, record.TenantID)
	errorsKey := artifacts["errors"]
	if errorsKey == "" {
		if len(entries) == 0 {
			entries = []reportEntry{{Code: code, Reason: message}}
		}
		errorsKey = prefix + "/reports/errors.json"
		if err := w.uploadJSON(ctx, errorsKey, entries); err != nil {
			return err
		}
		artifacts["errors"] = errorsKey
	}

	finishedAt := w.now().UTC()
	err := w.updateRun(ctx, record, models.StatusFailed, models.RunUpdate{
		FailedStage:       failedStage,
		ErrorCode:         code,
		ErrorMessage:      message,
		ErrorsArtifactKey: errorsKey,
		ErrorReportKey:    errorsKey,
		FinishedAt:        &finishedAt,
		Artifacts:         artifacts,
	})
	if err != nil {
		return err
	}

	w.metrics.RecordRunOutcome(ctx, record.TenantID, true)
	common.LogEvent(w.logger, "run_failed", map[string]interface{}{
		"run_id":       record.RunID,
		"tenant_id":    record.TenantID,
		"failed_stage": failedStage,
		"error_code":   code,
		"error":        message,
	})
	return common.NonRetryable(code, message)
}

// runJob is the per-job state machine. The returned error's kind decides
// the message's fate: nil and NonRetryable delete it, Retryable and
// errDefer leave it for redelivery.
func (w *Worker) runJob(ctx context.Context, job *models.RunJob, msg *queue.Message) error {
	record, err := w.runs.GetRun(ctx, job.RunID)
	if errors.Is(err, persistence.ErrNotFound) {
		common.LogEvent(w.logger, "run_record_missing", map[string]interface{}{
			"run_id": job.RunID,
		})
		return nil
	}
	if err != nil {
		return common.Retryable(err)
	}

	switch record.Status {
	case models.StatusSucceeded:
		return nil
	case models.StatusFailed:
		if record.ErrorCode == models.ErrPoisonJob {
			return errDefer
		}
		return nil
	case models.StatusRunning:
		// A first delivery finding RUNNING is a duplicate enqueue. A
		// redelivery is this run's own resumption after a worker died or
		// hit an infrastructure fault.
		if msg.ReceiveCount <= 1 {
			return nil
		}
	}

	other, err := w.runs.FindRunningByTenant(ctx, job.TenantID, job.RunID)
	if err != nil {
		return common.Retryable(err)
	}
	if other != nil {
		common.LogEvent(w.logger, "tenant_lock_backoff", map[string]interface{}{
			"run_id":         job.RunID,
			"tenant_id":      job.TenantID,
			"blocking_run":   other.RunID,
			"backoff_second": w.cfg.TenantBackoffSeconds,
		})
		if err := w.queue.ChangeVisibility(ctx, msg.ReceiptHandle, w.cfg.TenantBackoffSeconds); err != nil {
			return common.Retryable(err)
		}
		return errDefer
	}

	startedAt := record.StartedAt
	if startedAt == nil {
		t := w.now().UTC()
		startedAt = &t
	}
	err = w.updateRun(ctx, record, models.StatusRunning, models.RunUpdate{
		Stage:     models.StageFetchInputs,
		StartedAt: startedAt,
	})
	if err != nil {
		return err
	}
	common.LogEvent(w.logger, "run_started", map[string]interface{}{
		"run_id":         job.RunID,
		"tenant_id":      job.TenantID,
		"config_version": job.ConfigVersion,
	})

	prefix := tenantPrefix(job.RunID, job.TenantID)
	artifacts := map[string]string{}
	stageTimes := map[string]float64{}
	stageStart := w.now()

	// Snapshot config.
	tenantRecord, err := w.tenants.GetTenantConfig(ctx, job.TenantID, job.ConfigVersion)
	if errors.Is(err, persistence.ErrNotFound) {
		message := fmt.Sprintf("tenant config %s v%d not found", job.TenantID, job.ConfigVersion)
		return w.failRun(ctx, record, models.StageFetchInputs, models.ErrMissingTenantConfig, message, artifacts, nil)
	}
	if err != nil {
		return common.Retryable(err)
	}
	tenantConfig := tenantRecord.Config

	snapshotKey := prefix + "/reports/config_snapshot.json"
	if err := w.uploadJSON(ctx, snapshotKey, tenantRecord); err != nil {
		return err
	}
	artifacts["config_snapshot"] = snapshotKey

	// Fetch inputs.
	inputs := map[string][]byte{}
	var manifest []manifestEntry
	var missingEntries []reportEntry
	var warnings []string
	requiredMissing := false
	for _, vendor := range tenantConfig.Vendors {
		info, err := w.blobs.ListLatest(ctx, vendor.Inbound.S3Prefix)
		if err != nil {
			return common.Retryable(err)
		}
		if info == nil {
			manifest = append(manifest, manifestEntry{VendorID: vendor.VendorID, Missing: true})
			code := models.ErrOptionalVendorMissing
			if vendor.Required {
				code = models.ErrRequiredVendorMissing
				requiredMissing = true
			}
			missingEntries = append(missingEntries, reportEntry{
				VendorID: vendor.VendorID,
				Code:     code,
				Reason:   fmt.Sprintf("no input found under %s", vendor.Inbound.S3Prefix),
			})
			warnings = append(warnings, fmt.Sprintf("vendor %s input is missing", vendor.VendorID))
			continue
		}

		data, err := w.blobs.DownloadBytes(ctx, info.Key)
		if err != nil {
			return common.Retryable(err)
		}
		runCopyKey := fmt.Sprintf("%s/inbound/%s/%s", prefix, vendor.VendorID, path.Base(info.Key))
		if err := w.blobs.UploadBytes(ctx, runCopyKey, data, "text/csv"); err != nil {
			return common.Retryable(err)
		}
		artifacts["inbound_"+vendor.VendorID] = runCopyKey
		inputs[vendor.VendorID] = data

		entry := manifestEntry{
			VendorID:     vendor.VendorID,
			Key:          info.Key,
			ETag:         info.ETag,
			Size:         info.Size,
			LastModified: info.LastModified.UTC().Format(time.RFC3339),
			RunCopyKey:   runCopyKey,
			Selection:    "latest_by_last_modified",
		}
		if vendor.SkuMap != nil && vendor.SkuMap.S3Key != "" {
			mapBytes, err := w.blobs.DownloadBytes(ctx, vendor.SkuMap.S3Key)
			if errors.Is(err, storage.ErrNotFound) {
				// Leave the sku map out of the inputs; the engine reports
				// it as a vendor-level parse error.
			} else if err != nil {
				return common.Retryable(err)
			} else {
				inputs[engine.SkuMapInputKey(vendor.VendorID)] = mapBytes
				entry.SkuMapKey = vendor.SkuMap.S3Key
			}
		}
		manifest = append(manifest, entry)
	}

	manifestKey := prefix + "/reports/input_manifest.json"
	if err := w.uploadJSON(ctx, manifestKey, manifest); err != nil {
		return err
	}
	artifacts["input_manifest"] = manifestKey
	stageTimes["fetch_inputs_seconds"] = w.now().Sub(stageStart).Seconds()
	stageStart = w.now()

	// Missing-vendor policy.
	if requiredMissing && tenantConfig.ErrorPolicy.MissingRequiredVendorPolicy != models.MissingVendorPolicyWarnOnly {
		var names []string
		for _, entry := range missingEntries {
			if entry.Code == models.ErrRequiredVendorMissing {
				names = append(names, entry.VendorID)
			}
		}
		message := fmt.Sprintf("required vendor inputs missing: %v", names)
		return w.failRun(ctx, record, models.StageFetchInputs, models.ErrRequiredVendorMissing, message, artifacts, missingEntries)
	}

	// Schema check.
	if tenantConfig.SchemaVersion != models.SupportedSchemaVersion {
		message := fmt.Sprintf("unsupported schema_version %d", tenantConfig.SchemaVersion)
		return w.failRun(ctx, record, models.StageFetchInputs, models.ErrUnsupportedSchemaVersion, message, artifacts, missingEntries)
	}

	// Normalize.
	err = w.updateRun(ctx, record, models.StatusRunning, models.RunUpdate{Stage: models.StageNormalize})
	if err != nil {
		return err
	}
	result, err := engine.Run(inputs, &tenantConfig, job.RunID, w.now().UTC())
	if err != nil {
		var decodeErr *engine.DecodeError
		if errors.As(err, &decodeErr) {
			return w.failRun(ctx, record, models.StageNormalize, models.ErrDecodeError, decodeErr.Error(), artifacts, missingEntries)
		}
		var columnsErr *engine.MissingColumnsError
		if errors.As(err, &columnsErr) {
			return w.failRun(ctx, record, models.StageNormalize, models.ErrMissingRequiredColumns, columnsErr.Error(), artifacts, missingEntries)
		}
		return w.failRun(ctx, record, models.StageNormalize, models.ErrInvalidInput, err.Error(), artifacts, missingEntries)
	}
	stageTimes["normalize_seconds"] = w.now().Sub(stageStart).Seconds()
	stageStart = w.now()

	// Write normalized CSVs.
	err = w.updateRun(ctx, record, models.StatusRunning, models.RunUpdate{Stage: models.StageMergePrice})
	if err != nil {
		return err
	}
	for vendorID, rows := range result.NormalizedByVendor {
		encoded, err := canonical.Encode(rows, canonical.Columns, canonical.ExtrasRaise)
		if err != nil {
			return w.failRun(ctx, record, models.StageMergePrice, models.ErrInvalidInput, err.Error(), artifacts, missingEntries)
		}
		key := fmt.Sprintf("%s/normalized/%s/normalized.csv", prefix, vendorID)
		if err := w.blobs.UploadBytes(ctx, key, encoded, "text/csv"); err != nil {
			return common.Retryable(err)
		}
		artifacts["normalized_"+vendorID] = key
	}

	// Error report.
	entries := append([]reportEntry{}, missingEntries...)
	for _, rowError := range result.Errors {
		entries = append(entries, reportEntry{
			VendorID:  rowError.VendorID,
			RowNumber: rowError.RowNumber,
			Reason:    rowError.Reason,
			RowData:   rowError.RowData,
		})
	}
	errorsKey := ""
	if len(entries) > 0 {
		errorsKey = prefix + "/reports/errors.json"
		if err := w.uploadJSON(ctx, errorsKey, entries); err != nil {
			return err
		}
		artifacts["errors"] = errorsKey
	}

	// Error policy gate.
	invalidRows := len(result.Errors)
	totalRows := result.Summary.TotalRows
	policy := tenantConfig.ErrorPolicy
	if totalRows == 0 && len(missingEntries) == 0 {
		return w.failRun(ctx, record, models.StageMergePrice, models.ErrNoRowsParsed, "no rows parsed from any vendor input", artifacts, entries)
	}
	if invalidRows > 0 {
		exceeded := invalidRows > policy.MaxInvalidRows
		if !exceeded && totalRows > 0 {
			exceeded = float64(invalidRows)/float64(totalRows) > policy.MaxInvalidRowPct
		}
		if exceeded {
			message := fmt.Sprintf("%d invalid rows of %d exceed the error policy", invalidRows, totalRows)
			return w.failRun(ctx, record, models.StageMergePrice, models.ErrValidationErrors, message, artifacts, entries)
		}
		warnings = append(warnings, "invalid_rows_within_threshold")
	}
	stageTimes["merge_price_seconds"] = w.now().Sub(stageStart).Seconds()
	stageStart = w.now()

	// Write outputs.
	err = w.updateRun(ctx, record, models.StatusRunning, models.RunUpdate{Stage: models.StageWriteOutputs})
	if err != nil {
		return err
	}
	columns := tenantConfig.Output.Columns
	if len(columns) == 0 {
		columns = canonical.Columns
	}
	mergedBytes, err := canonical.Encode(result.MergedRows, columns, canonical.ExtrasIgnore)
	if err != nil {
		return w.failRun(ctx, record, models.StageWriteOutputs, models.ErrInvalidInput, err.Error(), artifacts, entries)
	}
	mergedKey := prefix + "/outputs/merged_inventory.csv"
	if err := w.blobs.UploadBytes(ctx, mergedKey, mergedBytes, "text/csv"); err != nil {
		return common.Retryable(err)
	}
	artifacts["merged_inventory"] = mergedKey
	stageTimes["write_outputs_seconds"] = w.now().Sub(stageStart).Seconds()

	// Summary.
	completedAt := w.now().UTC()
	summary := map[string]interface{}{
		"run_id":               job.RunID,
		"tenant_id":            job.TenantID,
		"config_version":       job.ConfigVersion,
		"vendor_count":         result.Summary.VendorCount,
		"vendor_record_counts": result.Summary.VendorRecordCounts,
		"record_count":         result.Summary.RecordCount,
		"invalid_rows":         invalidRows,
		"total_rows":           totalRows,
		"warnings":             warnings,
		"duration_seconds":     completedAt.Sub(*startedAt).Seconds(),
		"stage_times":          stageTimes,
		"completed_at":         completedAt.Format(time.RFC3339),
	}
	summaryKey := prefix + "/reports/run_summary.json"
	if err := w.uploadJSON(ctx, summaryKey, summary); err != nil {
		return err
	}
	artifacts["run_summary"] = summaryKey

	// Complete.
	err = w.updateRun(ctx, record, models.StatusSucceeded, models.RunUpdate{
		Stage:      models.StageComplete,
		FinishedAt: &completedAt,
		Artifacts:  artifacts,
		ClearFields: []string{
			models.FieldFailedStage,
			models.FieldErrorCode,
			models.FieldErrorMessage,
			models.FieldErrorsArtifactKey,
			models.FieldErrorReportKey,
		},
	})
	if err != nil {
		return err
	}
	w.metrics.RecordRunOutcome(ctx, job.TenantID, false)
	common.LogEvent(w.logger, "run_succeeded", map[string]interface{}{
		"run_id":       job.RunID,
		"tenant_id":    job.TenantID,
		"record_count": result.Summary.RecordCount,
		"invalid_rows": invalidRows,
	})
	return nil
}
