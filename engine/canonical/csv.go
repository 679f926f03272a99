package canonical

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExtrasAction controls how the encoder treats row keys outside the field
// set, mirroring the two policies callers need: strict canonical output
// (raise) and column-projected output (ignore).
type ExtrasAction int

const (
	// ExtrasRaise fails the encode if a row carries unknown keys.
	ExtrasRaise ExtrasAction = iota
	// ExtrasIgnore silently drops unknown keys.
	ExtrasIgnore
)

// Fields normalized as scale-2 decimals / RFC-3339 instants on encode.
var decimalFields = map[string]bool{
	"cost":      true,
	"map_price": true,
	"price":     true,
	"msrp":      true,
}

var datetimeFields = map[string]bool{
	"updated_at": true,
}

// instantLayouts are the accepted input forms for instant fields, tried in
// order. Naive instants are interpreted as UTC.
var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func formatDecimal(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return value
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		// Unparseable values pass through unchanged.
		return value
	}
	return d.StringFixed(2)
}

func formatInstant(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return value
	}
	for _, layout := range instantLayouts {
		t, err := time.Parse(layout, trimmed)
		if err != nil {
			continue
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	}
	return value
}

func normalizeRow(row Row) Row {
	normalized := make(Row, len(row))
	for key, value := range row {
		switch {
		case decimalFields[key]:
			normalized[key] = formatDecimal(value)
		case datetimeFields[key]:
			normalized[key] = formatInstant(value)
		default:
			normalized[key] = value
		}
	}
	return normalized
}

// Encode writes rows as deterministic CSV: decimals at scale 2 (half-up),
// instants as UTC RFC-3339 with Z suffix, rows sorted by (sku, vendor_id)
// when vendor_id is in the field set and by sku alone otherwise, minimal
// RFC 4180 quoting, \n line endings, header included. Encoding the same
// logical rows twice yields identical bytes.
func Encode(rows []Row, fieldnames []string, extras ExtrasAction) ([]byte, error) {
	fieldSet := make(map[string]bool, len(fieldnames))
	for _, name := range fieldnames {
		fieldSet[name] = true
	}

	normalized := make([]Row, 0, len(rows))
	for _, row := range rows {
		if extras == ExtrasRaise {
			var unknown []string
			for key := range row {
				if !fieldSet[key] {
					unknown = append(unknown, key)
				}
			}
			if len(unknown) > 0 {
				sort.Strings(unknown)
				return nil, fmt.Errorf("row contains fields not in field list: %s", strings.Join(unknown, ", "))
			}
		}
		normalized = append(normalized, normalizeRow(row))
	}

	includeVendorID := fieldSet["vendor_id"]
	sort.SliceStable(normalized, func(i, j int) bool {
		if normalized[i]["sku"] != normalized[j]["sku"] {
			return normalized[i]["sku"] < normalized[j]["sku"]
		}
		if !includeVendorID {
			return false
		}
		return normalized[i]["vendor_id"] < normalized[j]["vendor_id"]
	})

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(fieldnames); err != nil {
		return nil, err
	}
	record := make([]string, len(fieldnames))
	for _, row := range normalized {
		for i, name := range fieldnames {
			record[i] = row[name]
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses encoder output (or any headered CSV) into string-valued
// rows keyed by the header.
func Decode(data []byte) ([]Row, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(Row, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
