package types

import "strings"

// DataSource identifies which external system feeds a mapping.
type DataSource string

const (
	// SourceDirectory reads from the on-prem directory service.
	SourceDirectory DataSource = "directory"
	// SourceEndpoint reads from the endpoint-management service.
	SourceEndpoint DataSource = "endpoint"
)

// Valid reports whether the data source is a known value.
func (d DataSource) Valid() bool {
	return d == SourceDirectory || d == SourceEndpoint
}

// AttributeMapping declares how one extension attribute is kept in sync
// with a source attribute. Mappings are loaded once at startup and are
// immutable for the process lifetime.
type AttributeMapping struct {
	TargetAttribute string     `yaml:"target_attribute" json:"target_attribute"`
	SourceAttribute string     `yaml:"source_attribute" json:"source_attribute"`
	DataSource      DataSource `yaml:"data_source" json:"data_source"`
	Regex           string     `yaml:"regex,omitempty" json:"regex,omitempty"`
	DefaultValue    string     `yaml:"default_value,omitempty" json:"default_value,omitempty"`
	UseHardwareInfo bool       `yaml:"use_hardware_info,omitempty" json:"use_hardware_info,omitempty"`
}

// TargetKey returns the canonical form of the target attribute name.
// Attribute names compare case-insensitively everywhere; writes use the
// configured casing verbatim.
func (m AttributeMapping) TargetKey() string {
	return strings.ToLower(m.TargetAttribute)
}
