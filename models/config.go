// Package models defines the tenant configuration, run record and job
// message schemas shared by the control API, the worker and the stores.
package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SupportedSchemaVersion is the only tenant config schema this build
// understands. Runs pinned to any other version fail with
// unsupported_schema_version.
const SupportedSchemaVersion = 1

// Missing-required-vendor policies.
const (
	MissingVendorPolicyFail     = "fail"
	MissingVendorPolicyWarnOnly = "warn_only"
)

// InboundConfig describes where a vendor's inventory files arrive.
type InboundConfig struct {
	Type     string `json:"type" yaml:"type"`
	S3Prefix string `json:"s3_prefix,omitempty" yaml:"s3_prefix,omitempty"`
}

// ParserConfig holds per-vendor parsing options. ColumnMap maps canonical
// field names to the vendor's source headers.
type ParserConfig struct {
	Format           string            `json:"format" yaml:"format"`
	Delimiter        string            `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	Encoding         string            `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	ColumnMap        map[string]string `json:"column_map,omitempty" yaml:"column_map,omitempty"`
	DefaultCondition string            `json:"default_condition,omitempty" yaml:"default_condition,omitempty"`
}

// SkuMapConfig points at the vendor_sku -> canonical sku mapping file.
type SkuMapConfig struct {
	Type      string `json:"type" yaml:"type"`
	S3Key     string `json:"s3_key,omitempty" yaml:"s3_key,omitempty"`
	LocalPath string `json:"local_path,omitempty" yaml:"local_path,omitempty"`
}

// VendorConfig describes one vendor feed for a tenant.
type VendorConfig struct {
	VendorID string        `json:"vendor_id" yaml:"vendor_id"`
	Inbound  InboundConfig `json:"inbound" yaml:"inbound"`
	Parser   ParserConfig  `json:"parser" yaml:"parser"`
	SkuMap   *SkuMapConfig `json:"sku_map,omitempty" yaml:"sku_map,omitempty"`
	Required bool          `json:"required,omitempty" yaml:"required,omitempty"`
}

// MapPolicyConfig controls Minimum Advertised Price enforcement.
type MapPolicyConfig struct {
	Enforce          bool   `json:"enforce" yaml:"enforce"`
	MapFloorBehavior string `json:"map_floor_behavior,omitempty" yaml:"map_floor_behavior,omitempty"`
}

// RoundingConfig controls price rounding. An increment of 0 disables
// rounding.
type RoundingConfig struct {
	Mode      string          `json:"mode,omitempty" yaml:"mode,omitempty"`
	Increment decimal.Decimal `json:"increment" yaml:"increment"`
}

// PricingConfig holds the tenant's pricing rules.
type PricingConfig struct {
	BaseMarginPct        decimal.Decimal `json:"base_margin_pct" yaml:"base_margin_pct"`
	MinPrice             decimal.Decimal `json:"min_price" yaml:"min_price"`
	ShippingHandlingFlat decimal.Decimal `json:"shipping_handling_flat" yaml:"shipping_handling_flat"`
	MapPolicy            MapPolicyConfig `json:"map_policy" yaml:"map_policy"`
	Rounding             RoundingConfig  `json:"rounding" yaml:"rounding"`
}

// BestOfferLandedCost selects the landed-cost basis for merge ordering.
type BestOfferLandedCost struct {
	IncludeShippingHandling bool `json:"include_shipping_handling" yaml:"include_shipping_handling"`
}

// BestOfferConfig configures the best_offer merge strategy.
type BestOfferConfig struct {
	SortBy               []string            `json:"sort_by,omitempty" yaml:"sort_by,omitempty"`
	LandedCost           BestOfferLandedCost `json:"landed_cost" yaml:"landed_cost"`
	FallbackLeadTimeDays int                 `json:"fallback_lead_time_days,omitempty" yaml:"fallback_lead_time_days,omitempty"`
}

// MergeConfig selects the merge strategy. Schema v1 supports best_offer
// only.
type MergeConfig struct {
	Strategy  string           `json:"strategy" yaml:"strategy"`
	BestOffer *BestOfferConfig `json:"best_offer,omitempty" yaml:"best_offer,omitempty"`
}

// OutputConfig controls the merged artifact's format and column set. Empty
// Columns means the canonical column order.
type OutputConfig struct {
	Format  string   `json:"format,omitempty" yaml:"format,omitempty"`
	Columns []string `json:"columns" yaml:"columns"`
}

// ErrorPolicyConfig decides when tolerated row errors become a run failure.
type ErrorPolicyConfig struct {
	MaxInvalidRows               int     `json:"max_invalid_rows" yaml:"max_invalid_rows"`
	MaxInvalidRowPct             float64 `json:"max_invalid_row_pct" yaml:"max_invalid_row_pct"`
	FailOnMissingRequiredColumns bool    `json:"fail_on_missing_required_columns,omitempty" yaml:"fail_on_missing_required_columns,omitempty"`
	MissingRequiredVendorPolicy  string  `json:"missing_required_vendor_policy,omitempty" yaml:"missing_required_vendor_policy,omitempty"`
}

// TenantConfig is the versioned per-tenant configuration. It is append-only:
// updates create a new config_version, and runs pin the version they were
// created with.
type TenantConfig struct {
	SchemaVersion   int               `json:"schema_version" yaml:"schema_version"`
	TenantID        string            `json:"tenant_id" yaml:"tenant_id"`
	Timezone        string            `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	DefaultCurrency string            `json:"default_currency,omitempty" yaml:"default_currency,omitempty"`
	Vendors         []VendorConfig    `json:"vendors" yaml:"vendors"`
	Pricing         PricingConfig     `json:"pricing" yaml:"pricing"`
	Merge           MergeConfig       `json:"merge" yaml:"merge"`
	Output          OutputConfig      `json:"output" yaml:"output"`
	ErrorPolicy     ErrorPolicyConfig `json:"error_policy" yaml:"error_policy"`
}

// ApplyDefaults fills the optional fields the schema leaves out.
func (c *TenantConfig) ApplyDefaults() {
	if c.SchemaVersion == 0 {
		c.SchemaVersion = SupportedSchemaVersion
	}
	for i := range c.Vendors {
		parser := &c.Vendors[i].Parser
		if parser.Encoding == "" {
			parser.Encoding = "utf-8"
		}
		if parser.Delimiter == "" {
			parser.Delimiter = ","
		}
	}
	if c.Pricing.MapPolicy.MapFloorBehavior == "" {
		c.Pricing.MapPolicy.MapFloorBehavior = "max(price, map_price)"
	}
	if c.Pricing.Rounding.Mode == "" {
		c.Pricing.Rounding.Mode = "nearest"
	}
	if c.Merge.BestOffer != nil && c.Merge.BestOffer.FallbackLeadTimeDays == 0 {
		c.Merge.BestOffer.FallbackLeadTimeDays = 7
	}
	if c.ErrorPolicy.MissingRequiredVendorPolicy == "" {
		c.ErrorPolicy.MissingRequiredVendorPolicy = MissingVendorPolicyFail
	}
}

// Validate checks structural invariants. It does not gate schema_version;
// the worker enforces that separately so the mismatch surfaces as a run
// failure rather than a parse failure.
func (c *TenantConfig) Validate() error {
	if c.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if len(c.Vendors) == 0 {
		return fmt.Errorf("at least one vendor is required")
	}
	seen := make(map[string]bool, len(c.Vendors))
	for _, vendor := range c.Vendors {
		if vendor.VendorID == "" {
			return fmt.Errorf("vendor_id is required")
		}
		if seen[vendor.VendorID] {
			return fmt.Errorf("duplicate vendor_id %q", vendor.VendorID)
		}
		seen[vendor.VendorID] = true
	}
	if c.Merge.Strategy != "best_offer" || c.Merge.BestOffer == nil {
		return fmt.Errorf("unsupported merge strategy %q", c.Merge.Strategy)
	}
	switch c.ErrorPolicy.MissingRequiredVendorPolicy {
	case "", MissingVendorPolicyFail, MissingVendorPolicyWarnOnly:
	default:
		return fmt.Errorf("invalid missing_required_vendor_policy %q", c.ErrorPolicy.MissingRequiredVendorPolicy)
	}
	return nil
}

// TenantRecord is the stored (tenant_id, config_version) item.
type TenantRecord struct {
	TenantID      string       `json:"tenant_id" dynamodbav:"tenant_id"`
	ConfigVersion int          `json:"config_version" dynamodbav:"config_version"`
	Config        TenantConfig `json:"config" dynamodbav:"config"`
}
