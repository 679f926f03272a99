package pricing

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

func TestComputePriceMarginWithShipping(t *testing.T) {
	rules := Rules{
		BaseMarginPct:        decimal.RequireFromString("0.20"),
		ShippingHandlingFlat: decimal.RequireFromString("1.00"),
		RoundingMode:         "nearest",
		RoundingIncrement:    decimal.RequireFromString("0.01"),
	}
	records := []canonical.InventoryRecord{
		{SKU: "SKU-1", VendorID: "vendor-a", QuantityAvailable: 1, Cost: decimalPtr("12.00")},
	}
	out := Apply(records, rules)
	require.Len(t, out, 1)
	assert.True(t, out[0].Price.Equal(decimal.RequireFromString("15.60")), "got %s", out[0].Price)
}

// The flat charge is part of the landed cost the margin applies to even
// when the merge did not use it to order offers.
func TestApplyAlwaysAddsShippingFlat(t *testing.T) {
	rules := Rules{
		BaseMarginPct:        decimal.RequireFromString("0.20"),
		ShippingHandlingFlat: decimal.RequireFromString("1.00"),
		RoundingIncrement:    decimal.RequireFromString("0.01"),
	}
	records := []canonical.InventoryRecord{
		{SKU: "SKU-1", VendorID: "vendor-a", QuantityAvailable: 1, Cost: decimalPtr("10.00")},
	}
	out := Apply(records, rules)
	require.Len(t, out, 1)
	// (10 + 1) * 1.2, not 10 * 1.2
	assert.True(t, out[0].Price.Equal(decimal.RequireFromString("13.20")), "got %s", out[0].Price)
}

func TestComputePriceMapFloor(t *testing.T) {
	rules := Rules{
		BaseMarginPct:     decimal.RequireFromString("0.10"),
		EnforceMAP:        true,
		MapFloorBehavior:  "max(price, map_price)",
		RoundingIncrement: decimal.RequireFromString("0.01"),
	}
	price := rules.ComputePrice(decimal.RequireFromString("20.00"), decimalPtr("40.00"))
	assert.True(t, price.Equal(decimal.RequireFromString("40.00")), "got %s", price)

	// MAP below the computed price leaves it alone
	price = rules.ComputePrice(decimal.RequireFromString("20.00"), decimalPtr("10.00"))
	assert.True(t, price.Equal(decimal.RequireFromString("22.00")), "got %s", price)
}

func TestComputePriceMinFloor(t *testing.T) {
	rules := Rules{
		BaseMarginPct: decimal.RequireFromString("0.10"),
		MinPrice:      decimal.RequireFromString("5.00"),
	}
	price := rules.ComputePrice(decimal.RequireFromString("1.00"), nil)
	assert.True(t, price.Equal(decimal.RequireFromString("5.00")), "got %s", price)
}

func TestRoundToIncrement(t *testing.T) {
	tests := []struct {
		name      string
		increment string
		price     string
		expected  string
	}{
		{name: "NickelUp", increment: "0.05", price: "10.13", expected: "10.15"},
		{name: "NickelDown", increment: "0.05", price: "10.12", expected: "10.10"},
		{name: "WholeDollar", increment: "1", price: "10.49", expected: "10"},
		{name: "ZeroIncrementDisabled", increment: "0", price: "10.123", expected: "10.123"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rules := Rules{RoundingIncrement: decimal.RequireFromString(tc.increment)}
			got := rules.roundToIncrement(decimal.RequireFromString(tc.price))
			assert.True(t, got.Equal(decimal.RequireFromString(tc.expected)), "got %s", got)
		})
	}
}

func TestMapFloorAppliedAfterRounding(t *testing.T) {
	rules := Rules{
		BaseMarginPct:     decimal.RequireFromString("0.10"),
		EnforceMAP:        true,
		MapFloorBehavior:  "max(price, map_price)",
		RoundingIncrement: decimal.RequireFromString("1"),
	}
	// 21 * 1.1 = 23.10 rounds to 23, MAP at 23.50 still wins
	price := rules.ComputePrice(decimal.RequireFromString("21.00"), decimalPtr("23.50"))
	assert.True(t, price.Equal(decimal.RequireFromString("23.50")), "got %s", price)
}

func TestApplyIdempotent(t *testing.T) {
	rules := Rules{
		BaseMarginPct:     decimal.RequireFromString("0.20"),
		RoundingIncrement: decimal.RequireFromString("0.01"),
	}
	records := []canonical.InventoryRecord{
		{SKU: "SKU-1", VendorID: "vendor-a", QuantityAvailable: 1, Cost: decimalPtr("9.99")},
	}
	once := Apply(records, rules)
	twice := Apply(once, rules)
	assert.True(t, once[0].Price.Equal(twice[0].Price))
}

func TestApplyNilCostPassthrough(t *testing.T) {
	rules := Rules{BaseMarginPct: decimal.RequireFromString("0.20")}
	records := []canonical.InventoryRecord{
		{SKU: "SKU-1", VendorID: "vendor-a", Price: decimal.RequireFromString("3.33")},
	}
	out := Apply(records, rules)
	assert.True(t, out[0].Price.Equal(decimal.RequireFromString("3.33")))
}
