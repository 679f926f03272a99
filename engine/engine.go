// Package engine runs the normalize, merge and price pipeline for one
// tenant over in-memory vendor inputs. It is deliberately free of any
// storage or queue concerns so the worker and the local runner share it.
package engine

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/relay-commerce/relay-inventory/engine/canonical"
	"github.com/relay-commerce/relay-inventory/engine/merge"
	"github.com/relay-commerce/relay-inventory/engine/parsing"
	"github.com/relay-commerce/relay-inventory/engine/pricing"
	"github.com/relay-commerce/relay-inventory/engine/skumap"
	"github.com/relay-commerce/relay-inventory/models"
)

// SkuMapInputKey returns the inputs-map key under which a vendor's sku map
// bytes are supplied alongside its feed bytes.
func SkuMapInputKey(vendorID string) string {
	return vendorID + "::sku_map"
}

// DecodeError means a vendor's input bytes could not be decoded with the
// configured encoding. It fails the whole run.
type DecodeError struct {
	VendorID string
	Encoding string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode input for vendor %s using encoding %s", e.VendorID, e.Encoding)
}

// MissingColumnsError carries the vendor whose file lacked required
// columns. Raised only when the tenant's error policy says missing
// columns fail the run.
type MissingColumnsError struct {
	VendorID string
	Columns  []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("vendor %s is missing required columns: %v", e.VendorID, e.Columns)
}

// RowError is one rejected row attributed to its vendor, the unit the
// errors.json artifact is built from. RowNumber 0 marks a file-level
// problem.
type RowError struct {
	VendorID  string            `json:"vendor_id"`
	RowNumber int               `json:"row_number"`
	Reason    string            `json:"reason"`
	RowData   map[string]string `json:"row_data"`
}

// Summary is the accounting block of the run summary artifact.
type Summary struct {
	RunID              string         `json:"run_id"`
	VendorCount        int            `json:"vendor_count"`
	VendorRecordCounts map[string]int `json:"vendor_record_counts"`
	RecordCount        int            `json:"record_count"`
	InvalidRows        int            `json:"invalid_rows"`
	TotalRows          int            `json:"total_rows"`
}

// Result is everything one pipeline pass produces.
type Result struct {
	NormalizedByVendor map[string][]canonical.Row
	MergedRows         []canonical.Row
	Errors             []RowError
	Summary            Summary
}

func decodeBytes(data []byte, encoding string, vendorID string) (string, error) {
	switch encoding {
	case "", "utf-8", "utf8", "ascii":
		if !utf8.Valid(data) {
			return "", &DecodeError{VendorID: vendorID, Encoding: encoding}
		}
		return string(data), nil
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1", "l1":
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return "", &DecodeError{VendorID: vendorID, Encoding: encoding}
		}
		return string(decoded), nil
	default:
		return "", &DecodeError{VendorID: vendorID, Encoding: encoding}
	}
}

// Run executes the pipeline for the vendors present in inputs. Vendors the
// config names but the inputs map omits are skipped here; the caller owns
// the missing-vendor policy. Feed bytes are keyed by vendor_id and sku map
// bytes by SkuMapInputKey(vendor_id).
func Run(inputs map[string][]byte, config *models.TenantConfig, runID string, now time.Time) (*Result, error) {
	result := &Result{
		NormalizedByVendor: make(map[string][]canonical.Row),
		Summary: Summary{
			RunID:              runID,
			VendorRecordCounts: make(map[string]int),
		},
	}

	var all []canonical.InventoryRecord
	for _, vendor := range config.Vendors {
		data, ok := inputs[vendor.VendorID]
		if !ok {
			continue
		}
		result.Summary.VendorCount++

		text, err := decodeBytes(data, vendor.Parser.Encoding, vendor.VendorID)
		if err != nil {
			return nil, err
		}

		records, rowErrors, err := parsing.ParseCSV(text, parsing.Options{
			VendorID:         vendor.VendorID,
			ColumnMap:        vendor.Parser.ColumnMap,
			DefaultCondition: vendor.Parser.DefaultCondition,
			Now:              now,
		})
		if err != nil {
			var mce *parsing.MissingColumnsError
			if errors.As(err, &mce) {
				if config.ErrorPolicy.FailOnMissingRequiredColumns {
					return nil, &MissingColumnsError{VendorID: vendor.VendorID, Columns: mce.Columns}
				}
				result.Errors = append(result.Errors, RowError{
					VendorID: vendor.VendorID,
					Reason:   mce.Error(),
					RowData:  map[string]string{},
				})
				continue
			}
			return nil, fmt.Errorf("vendor %s: %w", vendor.VendorID, err)
		}

		if vendor.SkuMap != nil {
			mapBytes, ok := inputs[SkuMapInputKey(vendor.VendorID)]
			if !ok {
				result.Errors = append(result.Errors, RowError{
					VendorID: vendor.VendorID,
					Reason:   "missing sku map",
					RowData:  map[string]string{},
				})
			} else {
				mapText, err := decodeBytes(mapBytes, vendor.Parser.Encoding, vendor.VendorID)
				if err != nil {
					return nil, err
				}
				m, err := skumap.ParseCSV([]byte(mapText))
				if err != nil {
					return nil, fmt.Errorf("vendor %s: %w", vendor.VendorID, err)
				}
				records = m.Apply(records)
			}
		}

		for _, rowError := range rowErrors {
			result.Errors = append(result.Errors, RowError{
				VendorID:  vendor.VendorID,
				RowNumber: rowError.RowNumber,
				Reason:    rowError.Reason,
				RowData:   rowError.RowData,
			})
		}

		result.NormalizedByVendor[vendor.VendorID] = canonical.DumpAll(records)
		result.Summary.VendorRecordCounts[vendor.VendorID] = len(records)
		result.Summary.TotalRows += len(records) + len(rowErrors)
		result.Summary.InvalidRows += len(rowErrors)
		all = append(all, records...)
	}

	// Stored configs predating validation may carry a strategy this
	// pipeline cannot run. Surface it as an error instead of panicking.
	bestOffer := config.Merge.BestOffer
	if config.Merge.Strategy != "best_offer" || bestOffer == nil {
		return nil, fmt.Errorf("unsupported merge strategy %q", config.Merge.Strategy)
	}
	merged := merge.BestOffer(all, merge.Config{
		IncludeShippingHandling: bestOffer.LandedCost.IncludeShippingHandling,
		ShippingHandlingFlat:    config.Pricing.ShippingHandlingFlat,
		FallbackLeadTimeDays:    bestOffer.FallbackLeadTimeDays,
	})

	rules := pricing.RulesFromConfig(config.Pricing)
	priced := pricing.Apply(merged, rules)

	result.MergedRows = canonical.DumpAll(priced)
	result.Summary.RecordCount = len(priced)
	return result, nil
}
