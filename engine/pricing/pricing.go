// Package pricing computes sell prices for merged inventory records.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/relay-commerce/relay-inventory/engine/canonical"
	"github.com/relay-commerce/relay-inventory/models"
)

// Rules is the resolved pricing policy for one tenant.
type Rules struct {
	// BaseMarginPct is a fraction, 0.20 means a 20 percent margin.
	BaseMarginPct decimal.Decimal
	MinPrice      decimal.Decimal
	// ShippingHandlingFlat is always folded into the landed cost the
	// margin applies to, independent of how the merge ordered offers.
	ShippingHandlingFlat decimal.Decimal
	EnforceMAP           bool
	MapFloorBehavior     string
	RoundingMode         string
	RoundingIncrement    decimal.Decimal
}

// RulesFromConfig builds pricing rules from tenant configuration.
func RulesFromConfig(cfg models.PricingConfig) Rules {
	return Rules{
		BaseMarginPct:        cfg.BaseMarginPct,
		MinPrice:             cfg.MinPrice,
		ShippingHandlingFlat: cfg.ShippingHandlingFlat,
		EnforceMAP:           cfg.MapPolicy.Enforce,
		MapFloorBehavior:     cfg.MapPolicy.MapFloorBehavior,
		RoundingMode:         cfg.Rounding.Mode,
		RoundingIncrement:    cfg.Rounding.Increment,
	}
}

var one = decimal.NewFromInt(1)

func (r Rules) roundToIncrement(price decimal.Decimal) decimal.Decimal {
	if r.RoundingIncrement.LessThanOrEqual(decimal.Zero) {
		return price
	}
	increments := price.Div(r.RoundingIncrement).Round(0)
	return increments.Mul(r.RoundingIncrement)
}

// ComputePrice derives the sell price from a landed cost: margin, minimum
// price floor, rounding to the configured increment, then the MAP floor.
// The MAP floor is applied last so rounding never undercuts it.
func (r Rules) ComputePrice(landedCost decimal.Decimal, mapPrice *decimal.Decimal) decimal.Decimal {
	price := landedCost.Mul(one.Add(r.BaseMarginPct))
	if price.LessThan(r.MinPrice) {
		price = r.MinPrice
	}
	price = r.roundToIncrement(price)
	if r.EnforceMAP && mapPrice != nil && r.MapFloorBehavior == "max(price, map_price)" {
		if mapPrice.GreaterThan(price) {
			price = *mapPrice
		}
	}
	return price
}

// Apply prices every record in place. Records without a cost keep their
// incoming price. Applying the rules twice yields the same result because
// the price is recomputed from the cost each time.
func Apply(records []canonical.InventoryRecord, rules Rules) []canonical.InventoryRecord {
	out := make([]canonical.InventoryRecord, len(records))
	copy(out, records)
	for i := range out {
		if out[i].Cost == nil {
			continue
		}
		landed := out[i].Cost.Add(rules.ShippingHandlingFlat)
		out[i].Price = rules.ComputePrice(landed, out[i].MapPrice)
	}
	return out
}
