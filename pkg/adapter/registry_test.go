package adapter

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// readOnly is a Source that cannot store results.
type readOnly struct{ path string }

func (r *readOnly) Connect(_ context.Context, cfg core.AdapterConfig) error {
	r.path = cfg.Path
	return nil
}
func (r *readOnly) Close() error     { return nil }
func (r *readOnly) Filepath() string { return r.path }
func (r *readOnly) Tables(context.Context) ([]string, error) {
	return nil, nil
}
func (r *readOnly) Describe(context.Context, string) (*core.TableInfo, error) {
	return nil, core.NewError(core.ErrTableNotFound, "describe", "", nil)
}
func (r *readOnly) ReadRows(context.Context, string, core.RowRange) (core.Rows, error) {
	return nil, core.NewError(core.ErrTableNotFound, "read", "", nil)
}

func TestUnknownAdapterError_Error(t *testing.T) {
	err := &UnknownAdapterError{
		Type:      "fake_db",
		Available: []string{"duckdb", "sqlite"},
	}

	msg := err.Error()

	assert.Contains(t, msg, "fake_db", "error should mention the unknown type")
	assert.Contains(t, msg, "sqlite", "error should list available adapters")
	assert.Contains(t, msg, "leapquery.yaml", "error should mention config file")
}

func TestRegister(t *testing.T) {
	Register("test_adapter_internal", func(_ *slog.Logger) Source { return &readOnly{} })

	assert.True(t, IsRegistered("test_adapter_internal"))
	assert.Contains(t, ListAdapters(), "test_adapter_internal")

	factory, ok := Get("test_adapter_internal")
	assert.True(t, ok)
	assert.NotNil(t, factory)
}

func TestNewSource(t *testing.T) {
	Register("test_readonly", func(_ *slog.Logger) Source { return &readOnly{} })

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "empty type", cfg: Config{}, wantErr: "adapter type not specified"},
		{name: "unknown type", cfg: Config{Type: "nope"}, wantErr: `unknown adapter type "nope"`},
		{name: "registered", cfg: Config{Type: "test_readonly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewSource(tt.cfg, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, src)
		})
	}
}

func TestNewStore_ReadOnly(t *testing.T) {
	Register("test_readonly", func(_ *slog.Logger) Source { return &readOnly{} })

	_, err := NewStore(Config{Type: "test_readonly"}, nil)
	require.Error(t, err)
	var roErr *ReadOnlyAdapterError
	require.ErrorAs(t, err, &roErr)
	assert.Equal(t, "test_readonly", roErr.Type)
}
