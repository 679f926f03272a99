// Package skumap rewrites vendor-native SKUs into the tenant's internal
// catalog identifiers.
package skumap

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/relay-commerce/relay-inventory/engine/canonical"
)

// Map translates vendor SKUs to internal SKUs.
type Map map[string]string

// ParseCSV loads a two-column mapping file (vendor_sku,sku). Rows where
// either side is blank are skipped. Later rows win on duplicate vendor
// SKUs.
func ParseCSV(data []byte) (Map, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Map{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sku map header: %w", err)
	}
	vendorIdx, skuIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "vendor_sku":
			vendorIdx = i
		case "sku":
			skuIdx = i
		}
	}
	if vendorIdx < 0 || skuIdx < 0 {
		return nil, fmt.Errorf("sku map requires vendor_sku and sku columns")
	}

	m := Map{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read sku map row: %w", err)
		}
		if vendorIdx >= len(record) || skuIdx >= len(record) {
			continue
		}
		vendorSKU := strings.TrimSpace(record[vendorIdx])
		sku := strings.TrimSpace(record[skuIdx])
		if vendorSKU == "" || sku == "" {
			continue
		}
		m[vendorSKU] = sku
	}
	return m, nil
}

// Apply rewrites each record's SKU through the map, matching on the
// record's current SKU value. Records without a mapping pass through
// unchanged. Input order is preserved.
func (m Map) Apply(records []canonical.InventoryRecord) []canonical.InventoryRecord {
	if len(m) == 0 {
		return records
	}
	out := make([]canonical.InventoryRecord, len(records))
	copy(out, records)
	for i := range out {
		if mapped, ok := m[out[i].SKU]; ok {
			out[i].SKU = mapped
		}
	}
	return out
}
