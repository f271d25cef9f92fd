package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.API.Key = "secret"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "https://api.fidoo.com/v2", cfg.API.URL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 3, cfg.API.MaxRetries)
	assert.Equal(t, 100, cfg.API.PageSize)
	assert.Equal(t, []string{"user", "card", "transaction", "expense"}, cfg.Extraction.Objects)
	assert.False(t, cfg.Extraction.Incremental)
	assert.Equal(t, BackendFile, cfg.State.Backend)
	assert.Equal(t, BackendCSV, cfg.Sink.Backend)
	assert.Equal(t, "out.c-fidoo", cfg.Sink.KeboolaBucket)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
debug: true
api:
  api_key: from-file
  timeout: 45s
  page_size: 25
extraction:
  objects: [expense, travel_report]
  incremental: true
  dependents: true
sink:
  backend: duckdb
`), 0o644))

	t.Setenv("FIDOO_API_KEY", "")
	os.Unsetenv("FIDOO_API_KEY")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "from-file", cfg.API.Key)
	assert.Equal(t, 45*time.Second, cfg.API.Timeout)
	assert.Equal(t, 25, cfg.API.PageSize)
	assert.Equal(t, []string{"expense", "travel_report"}, cfg.Extraction.Objects)
	assert.True(t, cfg.Extraction.Dependents)
	assert.Equal(t, BackendDuckDB, cfg.Sink.Backend)
	assert.Equal(t, "data/state.json", cfg.State.Path, "unset keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"FIDOO_API_KEY":     "env-key",
		"FIDOO_API_URL":     "https://api-demo.fidoo.com/v2",
		"FIDOO_TIMEOUT":     "10",
		"FIDOO_MAX_RETRIES": "5",
		"FIDOO_DEBUG":       "true",
		"FIDOO_OBJECTS":     "user, card ,,expense",
		"FIDOO_INCREMENTAL": "1",
	}))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.API.Key)
	assert.Equal(t, "https://api-demo.fidoo.com/v2", cfg.API.URL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5, cfg.API.MaxRetries)
	assert.True(t, cfg.Debug)
	assert.Equal(t, []string{"user", "card", "expense"}, cfg.Extraction.Objects)
	assert.True(t, cfg.Extraction.Incremental)
}

func TestApplyEnv_DurationSyntax(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{"FIDOO_TIMEOUT": "1m30s"})))
	assert.Equal(t, 90*time.Second, cfg.API.Timeout)
}

func TestApplyEnv_Invalid(t *testing.T) {
	for _, key := range []string{"FIDOO_TIMEOUT", "FIDOO_MAX_RETRIES", "FIDOO_DEBUG", "FIDOO_INCREMENTAL"} {
		cfg := Default()
		err := cfg.ApplyEnv(envMap(map[string]string{key: "not-a-value"}))
		assert.Error(t, err, key)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing key", func(c *Config) { c.API.Key = "" }, "api key"},
		{"page size too large", func(c *Config) { c.API.PageSize = 101 }, "page_size"},
		{"page size zero", func(c *Config) { c.API.PageSize = 0 }, "page_size"},
		{"unknown object", func(c *Config) { c.Extraction.Objects = []string{"user", "invoice"} }, "invoice"},
		{"unknown state backend", func(c *Config) { c.State.Backend = "redis" }, "state backend"},
		{"unknown sink", func(c *Config) { c.Sink.Backend = "s3" }, "sink backend"},
		{"gcs state without bucket", func(c *Config) { c.State.Backend = BackendGCS }, "state.bucket"},
		{"gcs sink without bucket", func(c *Config) { c.Sink.Backend = BackendGCS }, "gcs_bucket"},
		{"bigquery without project", func(c *Config) { c.Sink.Backend = BackendBigQuery }, "project_id"},
		{"audit without project", func(c *Config) { c.BigQuery.AuditRuns = true }, "project_id"},
		{"bigquery configured", func(c *Config) {
			c.State.Backend = BackendBigQuery
			c.BigQuery.ProjectID = "acme"
		}, ""},
		{"bad concurrency", func(c *Config) { c.Extraction.DependentConcurrency = 0 }, "dependent_concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDerivedSettings(t *testing.T) {
	cfg := validConfig()
	cfg.API.PageSize = 40
	cfg.Extraction.Dependents = true

	fc := cfg.ClientConfig()
	assert.Equal(t, "secret", fc.APIKey)
	assert.Equal(t, 5.0, fc.RequestsPerSecond)

	opts := cfg.PipelineOptions()
	assert.Equal(t, 40, opts.PageSize)
	assert.True(t, opts.Dependents)
}
