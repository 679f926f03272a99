package merge

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relay-commerce/relay-inventory/engine/canonical"
)

func decimalPtr(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func TestBestOfferInStockBeatsCheaper(t *testing.T) {
	records := []canonical.InventoryRecord{
		{SKU: "SKU-1", VendorID: "vendor-a", QuantityAvailable: 0, Cost: decimalPtr("10")},
		{SKU: "SKU-1", VendorID: "vendor-b", QuantityAvailable: 5, Cost: decimalPtr("12")},
	}
	merged := BestOffer(records, Config{})
	require.Len(t, merged, 1)
	assert.Equal(t, "vendor-b", merged[0].VendorID)
}

func TestBestOfferLowestLandedCostWins(t *testing.T) {
	records := []canonical.InventoryRecord{
		{SKU: "SKU-1", VendorID: "vendor-a", QuantityAvailable: 3, Cost: decimalPtr("12")},
		{SKU: "SKU-1", VendorID: "vendor-b", QuantityAvailable: 3, Cost: decimalPtr("10")},
	}
	merged := BestOffer(records, Config{})
	require.Len(t, merged, 1)
	assert.Equal(t, "vendor-b", merged[0].VendorID)
}

func TestBestOfferTieKeepsEarliest(t *testing.T) {
	records := []canonical.InventoryRecord{
		{SKU: "SKU-1", VendorID: "vendor-a", QuantityAvailable: 3, Cost: decimalPtr("10")},
		{SKU: "SKU-1", VendorID: "vendor-b", QuantityAvailable: 3, Cost: decimalPtr("10.00")},
	}
	merged := BestOffer(records, Config{})
	require.Len(t, merged, 1)
	assert.Equal(t, "vendor-a", merged[0].VendorID)
}

func TestBestOfferShippingChangesWinner(t *testing.T) {
	records := []canonical.InventoryRecord{
		{SKU: "SKU-1", VendorID: "vendor-a", QuantityAvailable: 3, Cost: decimalPtr("10")},
		{SKU: "SKU-1", VendorID: "vendor-b", QuantityAvailable: 3, Cost: decimalPtr("10")},
	}
	merged := BestOffer(records, Config{
		IncludeShippingHandling: true,
		ShippingHandlingFlat:    decimal.RequireFromString("1"),
	})
	require.Len(t, merged, 1)
	// a flat charge applies to every offer, so the tie still stands
	assert.Equal(t, "vendor-a", merged[0].VendorID)
}

func TestBestOfferOnePerSkuFirstSeenOrder(t *testing.T) {
	records := []canonical.InventoryRecord{
		{SKU: "SKU-2", VendorID: "vendor-a", QuantityAvailable: 1, Cost: decimalPtr("5")},
		{SKU: "SKU-1", VendorID: "vendor-a", QuantityAvailable: 1, Cost: decimalPtr("5")},
		{SKU: "SKU-2", VendorID: "vendor-b", QuantityAvailable: 1, Cost: decimalPtr("4")},
		{SKU: "SKU-3", VendorID: "vendor-b", QuantityAvailable: 1, Cost: decimalPtr("5")},
	}
	merged := BestOffer(records, Config{})
	require.Len(t, merged, 3)
	assert.Equal(t, "SKU-2", merged[0].SKU)
	assert.Equal(t, "vendor-b", merged[0].VendorID)
	assert.Equal(t, "SKU-1", merged[1].SKU)
	assert.Equal(t, "SKU-3", merged[2].SKU)
}

func TestBestOfferFallbackLeadTime(t *testing.T) {
	lead := 2
	records := []canonical.InventoryRecord{
		{SKU: "SKU-1", VendorID: "vendor-a", QuantityAvailable: 1, Cost: decimalPtr("5")},
		{SKU: "SKU-2", VendorID: "vendor-a", QuantityAvailable: 1, Cost: decimalPtr("5"), LeadTimeDays: &lead},
	}
	merged := BestOffer(records, Config{FallbackLeadTimeDays: 7})
	require.Len(t, merged, 2)
	require.NotNil(t, merged[0].LeadTimeDays)
	assert.Equal(t, 7, *merged[0].LeadTimeDays)
	assert.Equal(t, 2, *merged[1].LeadTimeDays)
}

func TestBestOfferMissingCostTreatedAsZero(t *testing.T) {
	records := []canonical.InventoryRecord{
		{SKU: "SKU-1", VendorID: "vendor-a", QuantityAvailable: 1, Cost: decimalPtr("5")},
		{SKU: "SKU-1", VendorID: "vendor-b", QuantityAvailable: 1},
	}
	merged := BestOffer(records, Config{})
	require.Len(t, merged, 1)
	assert.Equal(t, "vendor-b", merged[0].VendorID)
}
