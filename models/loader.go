package models

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadTenantConfig reads a tenant configuration from a YAML file, applies
// defaults and validates it. Used by the local runner and by operators
// seeding tenants.
func LoadTenantConfig(path string) (*TenantConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant config: %w", err)
	}
	return ParseTenantConfigYAML(data)
}

// ParseTenantConfigYAML parses YAML tenant config bytes. The document is
// decoded to a generic map first and re-marshaled through JSON so decimal
// fields accept both quoted and bare numeric forms.
func ParseTenantConfigYAML(data []byte) (*TenantConfig, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid tenant config yaml: %w", err)
	}
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant config: %w", err)
	}
	var config TenantConfig
	if err := json.Unmarshal(jsonBytes, &config); err != nil {
		return nil, fmt.Errorf("invalid tenant config: %w", err)
	}
	config.ApplyDefaults()
	if config.SchemaVersion != SupportedSchemaVersion {
		return nil, fmt.Errorf("unsupported schema_version %d", config.SchemaVersion)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
