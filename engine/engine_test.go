package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relay-commerce/relay-inventory/models"
)

var runNow = time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)

func testConfig(vendorIDs ...string) *models.TenantConfig {
	config := &models.TenantConfig{
		SchemaVersion: 1,
		TenantID:      "acme",
		Pricing: models.PricingConfig{
			BaseMarginPct:        decimal.RequireFromString("0.20"),
			ShippingHandlingFlat: decimal.RequireFromString("1.00"),
			MapPolicy:            models.MapPolicyConfig{Enforce: true},
			Rounding:             models.RoundingConfig{Increment: decimal.RequireFromString("0.01")},
		},
		Merge: models.MergeConfig{
			Strategy: "best_offer",
			BestOffer: &models.BestOfferConfig{
				LandedCost: models.BestOfferLandedCost{IncludeShippingHandling: true},
			},
		},
	}
	for _, vendorID := range vendorIDs {
		config.Vendors = append(config.Vendors, models.VendorConfig{
			VendorID: vendorID,
			Inbound:  models.InboundConfig{Type: "s3", S3Prefix: "inbound/" + vendorID + "/"},
			Parser:   models.ParserConfig{Format: "csv"},
		})
	}
	config.ApplyDefaults()
	return config
}

func TestRunHappyPath(t *testing.T) {
	config := testConfig("vendor-a", "vendor-b")
	inputs := map[string][]byte{
		"vendor-a": []byte("sku,quantity_available,cost\nSKU-1,0,10.00\nSKU-2,3,4.00\n"),
		"vendor-b": []byte("sku,quantity_available,cost\nSKU-1,5,12.00\n"),
	}

	result, err := Run(inputs, config, "run-1", runNow)
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	assert.Equal(t, "run-1", result.Summary.RunID)
	assert.Equal(t, 2, result.Summary.VendorCount)
	assert.Equal(t, map[string]int{"vendor-a": 2, "vendor-b": 1}, result.Summary.VendorRecordCounts)
	assert.Equal(t, 2, result.Summary.RecordCount)
	assert.Equal(t, 0, result.Summary.InvalidRows)
	assert.Equal(t, 3, result.Summary.TotalRows)

	require.Len(t, result.MergedRows, 2)
	bySku := map[string]map[string]string{}
	for _, row := range result.MergedRows {
		bySku[row["sku"]] = row
	}
	// in-stock vendor-b beats out-of-stock vendor-a, priced (12+1)*1.2
	assert.Equal(t, "vendor-b", bySku["SKU-1"]["vendor_id"])
	assert.Equal(t, "15.6", bySku["SKU-1"]["price"])
	assert.Equal(t, "vendor-a", bySku["SKU-2"]["vendor_id"])

	assert.Len(t, result.NormalizedByVendor["vendor-a"], 2)
	assert.Len(t, result.NormalizedByVendor["vendor-b"], 1)
}

func TestRunPricesShippingFlatWithoutMergeLandedFlag(t *testing.T) {
	config := testConfig("vendor-a")
	config.Merge.BestOffer.LandedCost.IncludeShippingHandling = false
	inputs := map[string][]byte{
		"vendor-a": []byte("sku,quantity_available,cost\nSKU-1,5,10.00\n"),
	}
	result, err := Run(inputs, config, "run-1", runNow)
	require.NoError(t, err)
	require.Len(t, result.MergedRows, 1)
	// (10+1)*1.2, the flat charge prices in regardless of merge ordering
	assert.Equal(t, "13.2", result.MergedRows[0]["price"])
}

func TestRunRejectsUnsupportedMergeStrategy(t *testing.T) {
	inputs := map[string][]byte{
		"vendor-a": []byte("sku,quantity_available\nSKU-1,1\n"),
	}

	config := testConfig("vendor-a")
	config.Merge.Strategy = "cheapest"
	_, err := Run(inputs, config, "run-1", runNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported merge strategy "cheapest"`)

	config = testConfig("vendor-a")
	config.Merge.BestOffer = nil
	_, err = Run(inputs, config, "run-1", runNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported merge strategy")
}

func TestRunSkipsAbsentVendors(t *testing.T) {
	config := testConfig("vendor-a", "vendor-b")
	inputs := map[string][]byte{
		"vendor-a": []byte("sku,quantity_available\nSKU-1,1\n"),
	}
	result, err := Run(inputs, config, "run-1", runNow)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.VendorCount)
	assert.NotContains(t, result.NormalizedByVendor, "vendor-b")
}

func TestRunDecodeError(t *testing.T) {
	config := testConfig("vendor-a")
	inputs := map[string][]byte{
		"vendor-a": {0x73, 0x6b, 0x75, 0xE9},
	}
	_, err := Run(inputs, config, "run-1", runNow)
	require.Error(t, err)
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "vendor-a", decodeErr.VendorID)
	assert.Equal(t, "utf-8", decodeErr.Encoding)
}

func TestRunLatin1Decoding(t *testing.T) {
	config := testConfig("vendor-a")
	config.Vendors[0].Parser.Encoding = "latin-1"
	// 0xE9 is e-acute in latin-1
	inputs := map[string][]byte{
		"vendor-a": append([]byte("sku,quantity_available,title\nSKU-1,1,caf"), 0xE9),
	}
	result, err := Run(inputs, config, "run-1", runNow)
	require.NoError(t, err)
	require.Len(t, result.NormalizedByVendor["vendor-a"], 1)
	assert.Equal(t, "café", result.NormalizedByVendor["vendor-a"][0]["title"])
}

func TestRunMissingColumnsFail(t *testing.T) {
	config := testConfig("vendor-a")
	config.ErrorPolicy.FailOnMissingRequiredColumns = true
	inputs := map[string][]byte{
		"vendor-a": []byte("vendor_sku,cost\nV-1,1.00\n"),
	}
	_, err := Run(inputs, config, "run-1", runNow)
	require.Error(t, err)
	var mce *MissingColumnsError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, "vendor-a", mce.VendorID)
	assert.Equal(t, []string{"quantity_available", "sku"}, mce.Columns)
}

func TestRunMissingColumnsTolerated(t *testing.T) {
	config := testConfig("vendor-a", "vendor-b")
	inputs := map[string][]byte{
		"vendor-a": []byte("vendor_sku,cost\nV-1,1.00\n"),
		"vendor-b": []byte("sku,quantity_available\nSKU-1,1\n"),
	}
	result, err := Run(inputs, config, "run-1", runNow)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "vendor-a", result.Errors[0].VendorID)
	assert.Equal(t, 0, result.Errors[0].RowNumber)
	assert.Contains(t, result.Errors[0].Reason, "missing columns")
	assert.NotContains(t, result.NormalizedByVendor, "vendor-a")
	assert.Len(t, result.NormalizedByVendor["vendor-b"], 1)
}

func TestRunSkuMapApplied(t *testing.T) {
	config := testConfig("vendor-a")
	config.Vendors[0].SkuMap = &models.SkuMapConfig{Type: "s3", S3Key: "maps/vendor-a.csv"}
	inputs := map[string][]byte{
		"vendor-a":                   []byte("sku,quantity_available\nV-1,1\n"),
		SkuMapInputKey("vendor-a"): []byte("vendor_sku,sku\nV-1,SKU-1\n"),
	}
	result, err := Run(inputs, config, "run-1", runNow)
	require.NoError(t, err)
	require.Len(t, result.MergedRows, 1)
	assert.Equal(t, "SKU-1", result.MergedRows[0]["sku"])
}

func TestRunSkuMapMissing(t *testing.T) {
	config := testConfig("vendor-a")
	config.Vendors[0].SkuMap = &models.SkuMapConfig{Type: "s3", S3Key: "maps/vendor-a.csv"}
	inputs := map[string][]byte{
		"vendor-a": []byte("sku,quantity_available\nV-1,1\n"),
	}
	result, err := Run(inputs, config, "run-1", runNow)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "missing sku map", result.Errors[0].Reason)
	// feed still flows through unmapped
	require.Len(t, result.MergedRows, 1)
	assert.Equal(t, "V-1", result.MergedRows[0]["sku"])
}

func TestRunRowErrorsCounted(t *testing.T) {
	config := testConfig("vendor-a")
	inputs := map[string][]byte{
		"vendor-a": []byte("sku,quantity_available\nSKU-1,1\nSKU-2,bad\n,1\n"),
	}
	result, err := Run(inputs, config, "run-1", runNow)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Summary.InvalidRows)
	assert.Equal(t, 3, result.Summary.TotalRows)
	assert.Equal(t, 1, result.Summary.RecordCount)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 3, result.Errors[0].RowNumber)
	assert.Equal(t, 4, result.Errors[1].RowNumber)
}
