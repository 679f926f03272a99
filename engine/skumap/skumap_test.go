package skumap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relay-commerce/relay-inventory/engine/canonical"
)

func TestParseCSV(t *testing.T) {
	data := []byte("vendor_sku,sku\nV-1,SKU-1\nV-2,SKU-2\n,SKU-3\nV-4,\nV-1,SKU-9\n")
	m, err := ParseCSV(data)
	require.NoError(t, err)
	assert.Equal(t, Map{"V-1": "SKU-9", "V-2": "SKU-2"}, m)
}

func TestParseCSVColumnOrderIrrelevant(t *testing.T) {
	m, err := ParseCSV([]byte("sku,vendor_sku\nSKU-1,V-1\n"))
	require.NoError(t, err)
	assert.Equal(t, Map{"V-1": "SKU-1"}, m)
}

func TestParseCSVMissingColumns(t *testing.T) {
	_, err := ParseCSV([]byte("vendor_sku,internal\nV-1,SKU-1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vendor_sku and sku columns")
}

func TestParseCSVEmpty(t *testing.T) {
	m, err := ParseCSV(nil)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestApply(t *testing.T) {
	m := Map{"V-1": "SKU-1"}
	records := []canonical.InventoryRecord{
		{SKU: "V-1", VendorID: "vendor-a"},
		{SKU: "V-2", VendorID: "vendor-a"},
	}
	out := m.Apply(records)
	require.Len(t, out, 2)
	assert.Equal(t, "SKU-1", out[0].SKU)
	assert.Equal(t, "V-2", out[1].SKU)

	// input slice is untouched
	assert.Equal(t, "V-1", records[0].SKU)
}

func TestApplyEmptyMap(t *testing.T) {
	records := []canonical.InventoryRecord{{SKU: "V-1"}}
	out := Map{}.Apply(records)
	assert.Equal(t, records, out)
}
