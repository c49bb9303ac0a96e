package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/adapter"
)

var outputFormats = []string{"auto", "text", "markdown", "json"}

// Validate checks if the configuration is valid.
// It uses the adapter registry to determine which adapter types are available.
func (c *Config) Validate() error {
	if err := c.Results.validate("results"); err != nil {
		return err
	}
	for name, src := range c.Sources {
		if src.Path == "" && len(src.Params) == 0 {
			return fmt.Errorf("sources.%s: path or params is required", name)
		}
		if src.Path == "" && src.Type == "" {
			return fmt.Errorf("sources.%s: type is required when no path is given", name)
		}
		if src.Type == "" {
			continue
		}
		if err := src.validate("sources." + name); err != nil {
			return err
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative, got %d", c.BatchSize)
	}
	if c.SpoolRows < 0 {
		return fmt.Errorf("spool_rows must not be negative, got %d", c.SpoolRows)
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query_timeout must not be negative, got %s", c.QueryTimeout)
	}
	if c.OutputFormat != "" && !slices.Contains(outputFormats, c.OutputFormat) {
		return fmt.Errorf("output must be one of %s, got %q", strings.Join(outputFormats, ", "), c.OutputFormat)
	}
	return nil
}

func (s StoreConfig) validate(key string) error {
	if s.Type == "" {
		return fmt.Errorf("%s.type is required", key)
	}
	if !adapter.IsRegistered(strings.ToLower(s.Type)) {
		return fmt.Errorf("%s: %w", key, &adapter.UnknownAdapterError{
			Type:      s.Type,
			Available: adapter.ListAdapters(),
		})
	}
	return nil
}
