package config

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/attrsync/attrsync/types"
)

// Config represents the main configuration
type Config struct {
	Version    string                   `yaml:"version"`
	Mappings   []types.AttributeMapping `yaml:"mappings"`
	Sources    SourcesConfig            `yaml:"sources"`
	Endpoints  EndpointsConfig          `yaml:"endpoints,omitempty"`
	Reconcile  ReconcileConfig          `yaml:"reconcile,omitempty"`
	Resilience ResilienceConfig         `yaml:"resilience,omitempty"`
	Audit      AuditConfig              `yaml:"audit,omitempty"`
	Export     ExportConfig             `yaml:"export,omitempty"`
	Notify     NotifyConfig             `yaml:"notify,omitempty"`
	API        APIConfig                `yaml:"api,omitempty"`
	Metrics    MetricsConfig            `yaml:"metrics,omitempty"`
}

// SourcesConfig enables or disables each data source globally.
// A mapping is evaluated only when its data source is enabled.
type SourcesConfig struct {
	DirectoryEnabled bool `yaml:"directory_enabled"`
	EndpointEnabled  bool `yaml:"endpoint_enabled"`
}

// EndpointsConfig points at the three external systems.
type EndpointsConfig struct {
	DirectoryURL string `yaml:"directory_url,omitempty"`
	EndpointURL  string `yaml:"endpoint_url,omitempty"`
	CloudURL     string `yaml:"cloud_url,omitempty"`
	Token        string `yaml:"token,omitempty"`
}

// ReconcileConfig controls the orchestrator.
type ReconcileConfig struct {
	MaxConcurrency   int           `yaml:"max_concurrency,omitempty"`
	PageSize         int           `yaml:"page_size,omitempty"`
	FailureThreshold int           `yaml:"failure_threshold,omitempty"`
	Interval         time.Duration `yaml:"interval,omitempty"`
}

// ResilienceConfig controls outbound-call policies for the cloud
// identity directory.
type ResilienceConfig struct {
	Timeout          time.Duration `yaml:"timeout,omitempty"`
	MaxAttempts      int           `yaml:"max_attempts,omitempty"`
	BreakerThreshold int           `yaml:"breaker_threshold,omitempty"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown,omitempty"`
}

// AuditConfig controls the audit store.
type AuditConfig struct {
	Dir           string        `yaml:"dir,omitempty"`
	BufferSize    int           `yaml:"buffer_size,omitempty"`
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
}

// ExportConfig controls the per-run flat file export.
type ExportConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
	Prefix  string `yaml:"prefix,omitempty"`
}

// NotifyConfig controls failure notifications. When WebhookURL is
// empty, threshold breaches are only logged.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url,omitempty"`
}

// APIConfig controls the operational HTTP API.
type APIConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// MetricsConfig controls the metrics/health server.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Reconcile.MaxConcurrency <= 0 {
		c.Reconcile.MaxConcurrency = 2 * runtime.NumCPU()
	}
	if c.Reconcile.PageSize <= 0 {
		c.Reconcile.PageSize = 100
	}
	if c.Reconcile.FailureThreshold <= 0 {
		c.Reconcile.FailureThreshold = 10
	}
	if c.Reconcile.Interval <= 0 {
		c.Reconcile.Interval = time.Hour
	}
	if c.Resilience.Timeout <= 0 {
		c.Resilience.Timeout = 30 * time.Second
	}
	if c.Resilience.MaxAttempts <= 0 {
		c.Resilience.MaxAttempts = 4
	}
	if c.Resilience.BreakerThreshold <= 0 {
		c.Resilience.BreakerThreshold = 5
	}
	if c.Resilience.BreakerCooldown <= 0 {
		c.Resilience.BreakerCooldown = 30 * time.Second
	}
	if c.Audit.Dir == "" {
		c.Audit.Dir = "./audit"
	}
	if c.Audit.BufferSize <= 0 {
		c.Audit.BufferSize = 1000
	}
	if c.Audit.FlushInterval <= 0 {
		c.Audit.FlushInterval = 5 * time.Minute
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "./exports"
	}
	if c.Export.Prefix == "" {
		c.Export.Prefix = "reconcile"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":2112"
	}
}

// Validate ensures config has required fields
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(c.Mappings) == 0 {
		return fmt.Errorf("at least one mapping is required")
	}
	if !c.Sources.DirectoryEnabled && !c.Sources.EndpointEnabled {
		return fmt.Errorf("at least one data source must be enabled")
	}

	seen := make(map[string]bool, len(c.Mappings))
	for i, m := range c.Mappings {
		if m.TargetAttribute == "" {
			return fmt.Errorf("mapping %d: target_attribute is required", i)
		}
		if m.SourceAttribute == "" {
			return fmt.Errorf("mapping %d: source_attribute is required", i)
		}
		if !m.DataSource.Valid() {
			return fmt.Errorf("mapping %d: unknown data_source %q", i, m.DataSource)
		}
		if seen[m.TargetKey()] {
			return fmt.Errorf("duplicate target attribute %q", m.TargetAttribute)
		}
		seen[m.TargetKey()] = true
		if m.Regex != "" {
			if _, err := regexp.Compile(m.Regex); err != nil {
				return fmt.Errorf("mapping %q: invalid regex: %w", m.TargetAttribute, err)
			}
		}
	}

	return nil
}

// EnabledMappings returns the mappings whose data source is enabled,
// in configuration order.
func (c *Config) EnabledMappings() []types.AttributeMapping {
	var enabled []types.AttributeMapping
	for _, m := range c.Mappings {
		switch m.DataSource {
		case types.SourceDirectory:
			if c.Sources.DirectoryEnabled {
				enabled = append(enabled, m)
			}
		case types.SourceEndpoint:
			if c.Sources.EndpointEnabled {
				enabled = append(enabled, m)
			}
		}
	}
	return enabled
}
