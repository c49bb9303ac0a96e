package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/leapstack-labs/leapquery/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapquery/pkg/adapters/memory"
	_ "github.com/leapstack-labs/leapquery/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leapquery/pkg/adapters/sqlite"
)

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("results", "", "")
	fs.String("results-type", "", "")
	fs.String("state", "", "")
	fs.Int("workers", 0, "")
	fs.String("timeout", "", "")
	fs.BoolP("verbose", "v", false, "")
	fs.StringP("output", "o", "", "")
	return fs
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "leapquery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultResultsType, cfg.Results.Type)
	assert.Equal(t, filepath.Join(dir, DefaultResultsFile), cfg.Results.Path)
	assert.Equal(t, filepath.Join(dir, DefaultStateFile), cfg.StatePath)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultSpoolRows, cfg.SpoolRows)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.Empty(t, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_File(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	writeConfig(t, dir, `
results:
  type: memory
  path: out/results.yaml
sources:
  sensors:
    path: data/sensors.duckdb
    type: duckdb
    params:
      extensions: [json]
workers: 3
query_timeout: 45s
output: json
`)
	sub := filepath.Join(dir, "nested", "deeper")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	t.Chdir(sub)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(dir, "leapquery.yaml"), GetConfigFileUsed())
	assert.Equal(t, "memory", cfg.Results.Type)
	assert.Equal(t, filepath.Join(dir, "out", "results.yaml"), cfg.Results.Path)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 45*time.Second, cfg.QueryTimeout)
	assert.Equal(t, "json", cfg.OutputFormat)

	require.Contains(t, cfg.Sources, "sensors")
	src := cfg.Sources["sensors"]
	assert.Equal(t, filepath.Join(dir, "data", "sensors.duckdb"), src.Path)
	assert.Equal(t, "duckdb", src.AdapterConfig().Type)
	assert.Equal(t, []any{"json"}, src.Params["extensions"])
}

func TestLoadConfig_Precedence(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	cfgFile := writeConfig(t, dir, "workers: 2\nstate_path: from-file.db\n")
	t.Chdir(dir)
	t.Setenv("LEAPQUERY_WORKERS", "4")
	t.Setenv("LEAPQUERY_RESULTS__TYPE", "memory")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--workers", "8", "--state", "flag.db", "--timeout", "2m"}))

	cfg, err := LoadConfig(cfgFile, flags)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "memory", cfg.Results.Type)
	assert.Equal(t, 2*time.Minute, cfg.QueryTimeout)
	abs, _ := filepath.Abs("flag.db")
	assert.Equal(t, abs, cfg.StatePath)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	cfgFile := writeConfig(t, dir, "batch_size: 10\n")
	t.Setenv("LEAPQUERY_BATCH_SIZE", "99")

	cfg, err := LoadConfig(cfgFile, nil)
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.BatchSize)
}

func TestLoadConfig_MemoryPathKept(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--state", ":memory:", "--results", ":memory:", "--results-type", "memory"}))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.StatePath)
	assert.Equal(t, ":memory:", cfg.Results.Path)
}

func TestLoadConfig_ExpandsEnvVars(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	t.Setenv("LQ_DATA", dir)
	cfgFile := writeConfig(t, dir, "results:\n  path: ${LQ_DATA}/r.db\n")

	cfg, err := LoadConfig(cfgFile, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "r.db"), cfg.Results.Path)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{"unknown results type", "results:\n  type: oracle\n", "unknown adapter type"},
		{"params without type", "sources:\n  x:\n    params:\n      host: h\n", "sources.x: type is required when no path is given"},
		{"source without path", "sources:\n  x:\n    type: sqlite\n", "sources.x: path or params is required"},
		{"negative workers", "workers: -1\n", "workers must not be negative"},
		{"negative spool rows", "spool_rows: -5\n", "spool_rows must not be negative"},
		{"bad output", "output: yaml\n", "output must be one of"},
		{"bad yaml", "workers: [\n", "error reading config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			cfgFile := writeConfig(t, t.TempDir(), tt.content)
			_, err := LoadConfig(cfgFile, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LQ_TEST_VAR", "value")

	assert.Equal(t, "a/value/b", expandEnvVars("a/${LQ_TEST_VAR}/b"))
	assert.Equal(t, "${LQ_UNSET_VAR}", expandEnvVars("${LQ_UNSET_VAR}"))
	assert.Equal(t, "plain", expandEnvVars("plain"))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "state_path", envKey("LEAPQUERY_STATE_PATH"))
	assert.Equal(t, "results.path", envKey("LEAPQUERY_RESULTS__PATH"))
}

func TestResolvePathRelativeTo(t *testing.T) {
	assert.Equal(t, "", resolvePathRelativeTo("", "/root"))
	assert.Equal(t, ":memory:", resolvePathRelativeTo(":memory:", "/root"))
	assert.Equal(t, "/abs/x.db", resolvePathRelativeTo("/abs/x.db", "/root"))
	assert.Equal(t, "postgres://localhost/db", resolvePathRelativeTo("postgres://localhost/db", "/root"))
	assert.Equal(t, filepath.Join("/root", "x.db"), resolvePathRelativeTo("x.db", "/root"))
}
