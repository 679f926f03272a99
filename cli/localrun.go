package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/relay-commerce/relay-inventory/common"
	"github.com/relay-commerce/relay-inventory/engine"
	"github.com/relay-commerce/relay-inventory/engine/canonical"
	"github.com/relay-commerce/relay-inventory/models"
	"github.com/relay-commerce/relay-inventory/persistence"
)

var (
	localTenantConfig string
	localInputs       []string
	localSkuMaps      []string
	localOutputDir    string
	localDBPath       string
	localRunID        string
)

// localRunCmd runs the pipeline once against local files, without any AWS
// dependency. Useful for developing tenant configs.
var localRunCmd = &cobra.Command{
	Use:   "local-run",
	Short: "run the pipeline once against local vendor files",
	RunE:  runLocal,
}

func init() {
	localRunCmd.Flags().StringVar(&localTenantConfig, "tenant-config", "", "tenant config YAML file (required)")
	localRunCmd.Flags().StringArrayVar(&localInputs, "input", nil, "vendor input as vendor_id=path (repeatable)")
	localRunCmd.Flags().StringArrayVar(&localSkuMaps, "sku-map", nil, "sku map as vendor_id=path (repeatable)")
	localRunCmd.Flags().StringVar(&localOutputDir, "output", "local-run-output", "output directory")
	localRunCmd.Flags().StringVar(&localDBPath, "db", "local-run.db", "bbolt database recording run state")
	localRunCmd.Flags().StringVar(&localRunID, "run-id", "", "run id (default random)")
	localRunCmd.MarkFlagRequired("tenant-config")
}

func parseVendorPath(value string) (string, string, error) {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected vendor_id=path, got %q", value)
	}
	return parts[0], parts[1], nil
}

func writeLocalFile(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func runLocal(cmd *cobra.Command, args []string) error {
	tenantConfig, err := models.LoadTenantConfig(localTenantConfig)
	if err != nil {
		return err
	}

	inputs := map[string][]byte{}
	for _, value := range localInputs {
		vendorID, path, err := parseVendorPath(value)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read input for vendor %s: %w", vendorID, err)
		}
		inputs[vendorID] = data
	}
	for _, value := range localSkuMaps {
		vendorID, path, err := parseVendorPath(value)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read sku map for vendor %s: %w", vendorID, err)
		}
		inputs[engine.SkuMapInputKey(vendorID)] = data
	}

	runID := localRunID
	if runID == "" {
		runID = uuid.NewString()
	}

	store, err := persistence.OpenBolt(localDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	now := time.Now().UTC()
	record := &models.RunRecord{
		RunID:         runID,
		TenantID:      tenantConfig.TenantID,
		ConfigVersion: 1,
		Status:        models.StatusRunning,
		Stage:         models.StageNormalize,
		RequestedAt:   &now,
		StartedAt:     &now,
	}
	if err := store.CreateRun(ctx, record); err != nil {
		return err
	}

	result, err := engine.Run(inputs, tenantConfig, runID, now)
	if err != nil {
		finished := time.Now().UTC()
		_ = store.UpdateRun(ctx, runID, models.StatusFailed, models.RunUpdate{
			FailedStage:  models.StageNormalize,
			ErrorCode:    models.ErrInvalidInput,
			ErrorMessage: err.Error(),
			FinishedAt:   &finished,
		})
		return err
	}

	for vendorID, rows := range result.NormalizedByVendor {
		encoded, err := canonical.Encode(rows, canonical.Columns, canonical.ExtrasRaise)
		if err != nil {
			return err
		}
		if _, err := writeLocalFile(localOutputDir, filepath.Join("normalized", vendorID, "normalized.csv"), encoded); err != nil {
			return err
		}
	}

	columns := tenantConfig.Output.Columns
	if len(columns) == 0 {
		columns = canonical.Columns
	}
	merged, err := canonical.Encode(result.MergedRows, columns, canonical.ExtrasIgnore)
	if err != nil {
		return err
	}
	mergedPath, err := writeLocalFile(localOutputDir, filepath.Join("outputs", "merged_inventory.csv"), merged)
	if err != nil {
		return err
	}

	if len(result.Errors) > 0 {
		errorsJSON, err := json.MarshalIndent(result.Errors, "", "  ")
		if err != nil {
			return err
		}
		if _, err := writeLocalFile(localOutputDir, filepath.Join("reports", "errors.json"), errorsJSON); err != nil {
			return err
		}
	}

	summaryJSON, err := json.MarshalIndent(result.Summary, "", "  ")
	if err != nil {
		return err
	}
	if _, err := writeLocalFile(localOutputDir, filepath.Join("reports", "run_summary.json"), summaryJSON); err != nil {
		return err
	}

	finished := time.Now().UTC()
	err = store.UpdateRun(ctx, runID, models.StatusSucceeded, models.RunUpdate{
		Stage:      models.StageComplete,
		FinishedAt: &finished,
	})
	if err != nil {
		return err
	}

	common.LogEvent(nil, "local_run_complete", map[string]interface{}{
		"run_id":       runID,
		"record_count": result.Summary.RecordCount,
		"invalid_rows": result.Summary.InvalidRows,
		"merged":       mergedPath,
	})
	return nil
}
