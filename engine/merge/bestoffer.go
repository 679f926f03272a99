// Package merge collapses multi-vendor inventory into one offer per SKU.
package merge

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/relay-commerce/relay-inventory/engine/canonical"
)

// Config tunes best-offer selection.
type Config struct {
	// IncludeShippingHandling adds the flat shipping charge to each
	// offer's landed cost before comparison.
	IncludeShippingHandling bool
	ShippingHandlingFlat    decimal.Decimal
	// FallbackLeadTimeDays fills records that arrive without a lead time.
	FallbackLeadTimeDays int
}

func landedCost(record *canonical.InventoryRecord, cfg Config) decimal.Decimal {
	if record.Cost == nil {
		return decimal.Zero
	}
	if cfg.IncludeShippingHandling {
		return record.Cost.Add(cfg.ShippingHandlingFlat)
	}
	return *record.Cost
}

// BestOffer picks one record per SKU: in-stock offers beat out-of-stock
// ones, then the lowest landed cost wins. Ties keep the earliest input
// record, so the result is deterministic for a given input order. SKUs
// appear in first-seen order, and winners missing a lead time receive the
// configured fallback.
func BestOffer(records []canonical.InventoryRecord, cfg Config) []canonical.InventoryRecord {
	groups := make(map[string][]canonical.InventoryRecord)
	var order []string
	for _, record := range records {
		if _, seen := groups[record.SKU]; !seen {
			order = append(order, record.SKU)
		}
		groups[record.SKU] = append(groups[record.SKU], record)
	}

	merged := make([]canonical.InventoryRecord, 0, len(order))
	for _, sku := range order {
		offers := groups[sku]
		sort.SliceStable(offers, func(i, j int) bool {
			if offers[i].InStock() != offers[j].InStock() {
				return offers[i].InStock()
			}
			return landedCost(&offers[i], cfg).LessThan(landedCost(&offers[j], cfg))
		})
		winner := offers[0]
		if winner.LeadTimeDays == nil {
			fallback := cfg.FallbackLeadTimeDays
			winner.LeadTimeDays = &fallback
		}
		merged = append(merged, winner)
	}
	return merged
}
