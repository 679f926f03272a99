// Package canonical defines the canonical inventory record schema and the
// deterministic CSV codec used for every artifact this service writes.
package canonical

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Columns is the canonical column order for normalized and merged CSV
// artifacts. It is fixed for schema version 1.
var Columns = []string{
	"sku",
	"vendor_sku",
	"vendor_id",
	"quantity_available",
	"lead_time_days",
	"cost",
	"map_price",
	"price",
	"msrp",
	"condition",
	"brand",
	"title",
	"updated_at",
}

// Conditions accepted on a record, stored lowercased.
var validConditions = map[string]bool{
	"new":    true,
	"used":   true,
	"refurb": true,
}

// InventoryRecord is the canonical per-offer tuple. Optional decimal and
// integer fields are pointers; nil means absent. A record that has passed
// Normalize is always valid.
type InventoryRecord struct {
	SKU               string
	VendorSKU         string
	VendorID          string
	QuantityAvailable int
	LeadTimeDays      *int
	Cost              *decimal.Decimal
	MapPrice          *decimal.Decimal
	Price             decimal.Decimal
	MSRP              *decimal.Decimal
	Condition         string
	Brand             string
	Title             string
	UpdatedAt         time.Time
}

// Normalize trims identifier fields, lowercases the condition and checks
// every schema invariant. It mutates the receiver in place.
func (r *InventoryRecord) Normalize() error {
	r.SKU = strings.TrimSpace(r.SKU)
	if r.SKU == "" {
		return fmt.Errorf("sku is required")
	}
	r.VendorID = strings.TrimSpace(r.VendorID)
	if r.VendorID == "" {
		return fmt.Errorf("vendor_id is required")
	}
	if r.QuantityAvailable < 0 {
		return fmt.Errorf("quantity_available must be >= 0")
	}
	if r.LeadTimeDays != nil && *r.LeadTimeDays < 0 {
		return fmt.Errorf("lead_time_days must be >= 0")
	}
	for name, value := range map[string]*decimal.Decimal{
		"cost":      r.Cost,
		"map_price": r.MapPrice,
		"msrp":      r.MSRP,
	} {
		if value != nil && value.IsNegative() {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}
	if r.Price.IsNegative() {
		return fmt.Errorf("price must be >= 0")
	}
	if r.Condition != "" {
		normalized := strings.ToLower(strings.TrimSpace(r.Condition))
		if !validConditions[normalized] {
			return fmt.Errorf("condition must be new, used, or refurb")
		}
		r.Condition = normalized
	}
	return nil
}

// InStock reports whether the record has any available quantity.
func (r *InventoryRecord) InStock() bool {
	return r.QuantityAvailable > 0
}

// Row is a string-valued mapping keyed by canonical field names, the unit
// the CSV codec operates on.
type Row map[string]string

// Dump serializes the record into a Row. Absent optional fields become
// empty strings; the codec applies decimal and instant normalization.
func (r *InventoryRecord) Dump() Row {
	row := Row{
		"sku":                r.SKU,
		"vendor_sku":         r.VendorSKU,
		"vendor_id":          r.VendorID,
		"quantity_available": strconv.Itoa(r.QuantityAvailable),
		"lead_time_days":     "",
		"cost":               "",
		"map_price":          "",
		"price":              r.Price.String(),
		"msrp":               "",
		"condition":          r.Condition,
		"brand":              r.Brand,
		"title":              r.Title,
		"updated_at":         r.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if r.LeadTimeDays != nil {
		row["lead_time_days"] = strconv.Itoa(*r.LeadTimeDays)
	}
	if r.Cost != nil {
		row["cost"] = r.Cost.String()
	}
	if r.MapPrice != nil {
		row["map_price"] = r.MapPrice.String()
	}
	if r.MSRP != nil {
		row["msrp"] = r.MSRP.String()
	}
	return row
}

// DumpAll serializes a slice of records preserving order.
func DumpAll(records []InventoryRecord) []Row {
	rows := make([]Row, 0, len(records))
	for i := range records {
		rows = append(rows, records[i].Dump())
	}
	return rows
}
