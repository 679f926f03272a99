// Package parsing maps vendor CSV files into canonical inventory records,
// collecting per-row errors instead of aborting on bad data.
package parsing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/relay-commerce/relay-inventory/engine/canonical"
)

// ParseError reports one rejected input row. RowNumber is 1-based with the
// header as row 1, so the first data row is 2. Whole-file errors use row 0.
type ParseError struct {
	RowNumber int               `json:"row_number"`
	Reason    string            `json:"reason"`
	RowData   map[string]string `json:"row_data"`
}

// MissingColumnsError fails an entire vendor file whose header lacks a
// required source column.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing columns: %s", strings.Join(e.Columns, ", "))
}

// IsMissingColumns reports whether err is a MissingColumnsError.
func IsMissingColumns(err error) bool {
	var mce *MissingColumnsError
	return errors.As(err, &mce)
}

// Options configures one vendor parse.
type Options struct {
	VendorID string
	// ColumnMap maps canonical field names to the vendor's source headers.
	// Unmapped fields fall back to the canonical name.
	ColumnMap map[string]string
	// DefaultCondition fills a missing condition column.
	DefaultCondition string
	// Now is the run timestamp used when updated_at is absent.
	Now time.Time
}

func (o Options) sourceHeader(field string) string {
	if mapped, ok := o.ColumnMap[field]; ok && mapped != "" {
		return mapped
	}
	return field
}

func parseDecimal(value string) (*decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal: %s", value)
	}
	return &d, nil
}

func parseInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return &n, nil
}

var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01-02T15:04:05",
}

func parseDatetime(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid datetime: %s", value)
}

// ParseCSV reads a decoded vendor CSV and returns the valid records plus a
// ParseError per rejected row. Rows failing any field coercion or schema
// invariant are skipped; a header missing the required sku or
// quantity_available columns fails the whole file with
// MissingColumnsError.
func ParseCSV(text string, opts Options) ([]canonical.InventoryRecord, []ParseError, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		header = nil
	} else if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	headerSet := make(map[string]int, len(header))
	for i, name := range header {
		headerSet[name] = i
	}

	var missing []string
	for _, field := range []string{"sku", "quantity_available"} {
		mapped := opts.sourceHeader(field)
		if _, ok := headerSet[mapped]; !ok {
			missing = append(missing, mapped)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, nil, &MissingColumnsError{Columns: missing}
	}

	var records []canonical.InventoryRecord
	var rowErrors []ParseError

	rowNumber := 1
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNumber++
		if err != nil {
			rowErrors = append(rowErrors, ParseError{
				RowNumber: rowNumber,
				Reason:    err.Error(),
				RowData:   map[string]string{},
			})
			continue
		}

		rowData := make(map[string]string, len(header))
		for name, idx := range headerSet {
			if idx < len(fields) {
				rowData[name] = fields[idx]
			} else {
				rowData[name] = ""
			}
		}

		record, err := buildRecord(rowData, opts)
		if err != nil {
			rowErrors = append(rowErrors, ParseError{
				RowNumber: rowNumber,
				Reason:    err.Error(),
				RowData:   rowData,
			})
			continue
		}
		records = append(records, *record)
	}

	return records, rowErrors, nil
}

func buildRecord(rowData map[string]string, opts Options) (*canonical.InventoryRecord, error) {
	get := func(field string) string {
		return rowData[opts.sourceHeader(field)]
	}

	quantity, err := parseInt(get("quantity_available"))
	if err != nil {
		return nil, err
	}
	leadTime, err := parseInt(get("lead_time_days"))
	if err != nil {
		return nil, err
	}
	cost, err := parseDecimal(get("cost"))
	if err != nil {
		return nil, err
	}
	mapPrice, err := parseDecimal(get("map_price"))
	if err != nil {
		return nil, err
	}
	msrp, err := parseDecimal(get("msrp"))
	if err != nil {
		return nil, err
	}
	price, err := parseDecimal(get("price"))
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseDatetime(get("updated_at"))
	if err != nil {
		return nil, err
	}

	record := canonical.InventoryRecord{
		SKU:       get("sku"),
		VendorSKU: get("vendor_sku"),
		VendorID:  opts.VendorID,
		Condition: get("condition"),
		Brand:     get("brand"),
		Title:     get("title"),
	}
	if record.Condition == "" {
		record.Condition = opts.DefaultCondition
	}
	if quantity != nil {
		record.QuantityAvailable = *quantity
	}
	record.LeadTimeDays = leadTime
	record.Cost = cost
	record.MapPrice = mapPrice
	record.MSRP = msrp
	if price != nil {
		record.Price = *price
	}
	if updatedAt != nil {
		record.UpdatedAt = *updatedAt
	} else {
		record.UpdatedAt = opts.Now
	}

	if err := record.Normalize(); err != nil {
		return nil, err
	}
	return &record, nil
}
