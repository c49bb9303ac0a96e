package duckdb

import (
	"github.com/leapstack-labs/leapquery/pkg/adapter"
)

// Params holds DuckDB-specific configuration.
// Parsed from core.AdapterConfig.Params using mapstructure.
type Params struct {
	// Extensions to install and load (e.g., "json", "spatial")
	Extensions []string `mapstructure:"extensions"`

	// Settings to apply at session level (e.g., memory_limit, threads)
	Settings map[string]string `mapstructure:"settings"`
}

// ParseParams decodes adapter params.
func ParseParams(params map[string]any) (*Params, error) {
	p := &Params{}
	if err := adapter.DecodeParams(params, p); err != nil {
		return nil, err
	}
	return p, nil
}
