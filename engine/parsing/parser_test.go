package parsing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)

func TestParseCSVBasic(t *testing.T) {
	text := "sku,quantity_available,cost,condition\n" +
		"SKU-1,5,10.50,new\n" +
		"SKU-2,0,,used\n"
	records, rowErrors, err := ParseCSV(text, Options{VendorID: "vendor-a", Now: testNow})
	require.NoError(t, err)
	require.Empty(t, rowErrors)
	require.Len(t, records, 2)

	assert.Equal(t, "SKU-1", records[0].SKU)
	assert.Equal(t, "vendor-a", records[0].VendorID)
	assert.Equal(t, 5, records[0].QuantityAvailable)
	require.NotNil(t, records[0].Cost)
	assert.Equal(t, "10.5", records[0].Cost.String())
	assert.Equal(t, testNow, records[0].UpdatedAt)

	assert.Nil(t, records[1].Cost)
	assert.Equal(t, 0, records[1].QuantityAvailable)
}

func TestParseCSVColumnMap(t *testing.T) {
	text := "item,qty,unit_cost\nSKU-1,3,7.25\n"
	records, rowErrors, err := ParseCSV(text, Options{
		VendorID: "vendor-a",
		ColumnMap: map[string]string{
			"sku":                "item",
			"quantity_available": "qty",
			"cost":               "unit_cost",
		},
		Now: testNow,
	})
	require.NoError(t, err)
	require.Empty(t, rowErrors)
	require.Len(t, records, 1)
	assert.Equal(t, "SKU-1", records[0].SKU)
	assert.Equal(t, 3, records[0].QuantityAvailable)
	assert.Equal(t, "7.25", records[0].Cost.String())
}

func TestParseCSVMissingColumns(t *testing.T) {
	_, _, err := ParseCSV("vendor_sku,cost\nX,1\n", Options{VendorID: "vendor-a", Now: testNow})
	require.Error(t, err)
	assert.True(t, IsMissingColumns(err))
	assert.Equal(t, "missing columns: quantity_available, sku", err.Error())
}

func TestParseCSVRowErrors(t *testing.T) {
	text := "sku,quantity_available,cost,lead_time_days,updated_at\n" +
		"SKU-1,notanumber,1.00,,\n" +
		"SKU-2,1,badcost,,\n" +
		"SKU-3,1,1.00,2,2023-13-99\n" +
		",1,1.00,,\n" +
		"SKU-5,1,1.00,1,2023-01-02\n"
	records, rowErrors, err := ParseCSV(text, Options{VendorID: "vendor-a", Now: testNow})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "SKU-5", records[0].SKU)

	require.Len(t, rowErrors, 4)
	assert.Equal(t, 2, rowErrors[0].RowNumber)
	assert.Contains(t, rowErrors[0].Reason, "invalid int")
	assert.Equal(t, "notanumber", rowErrors[0].RowData["quantity_available"])
	assert.Equal(t, 3, rowErrors[1].RowNumber)
	assert.Contains(t, rowErrors[1].Reason, "invalid decimal")
	assert.Equal(t, 4, rowErrors[2].RowNumber)
	assert.Contains(t, rowErrors[2].Reason, "invalid datetime")
	assert.Equal(t, 5, rowErrors[3].RowNumber)
	assert.Contains(t, rowErrors[3].Reason, "sku is required")
}

func TestParseCSVDefaultCondition(t *testing.T) {
	text := "sku,quantity_available,condition\nSKU-1,1,\nSKU-2,1,used\n"
	records, rowErrors, err := ParseCSV(text, Options{
		VendorID:         "vendor-a",
		DefaultCondition: "new",
		Now:              testNow,
	})
	require.NoError(t, err)
	require.Empty(t, rowErrors)
	require.Len(t, records, 2)
	assert.Equal(t, "new", records[0].Condition)
	assert.Equal(t, "used", records[1].Condition)
}

func TestParseCSVUpdatedAtFormats(t *testing.T) {
	text := "sku,quantity_available,updated_at\n" +
		"SKU-1,1,2023-01-02\n" +
		"SKU-2,1,2023-01-02 03:04:05\n" +
		"SKU-3,1,2023-01-02T03:04:05\n"
	records, rowErrors, err := ParseCSV(text, Options{VendorID: "vendor-a", Now: testNow})
	require.NoError(t, err)
	require.Empty(t, rowErrors)
	require.Len(t, records, 3)
	assert.Equal(t, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), records[0].UpdatedAt)
	assert.Equal(t, time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC), records[1].UpdatedAt)
	assert.Equal(t, time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC), records[2].UpdatedAt)
}

func TestParseCSVEmptyFile(t *testing.T) {
	_, _, err := ParseCSV("", Options{VendorID: "vendor-a", Now: testNow})
	require.Error(t, err)
	assert.True(t, IsMissingColumns(err))
}
