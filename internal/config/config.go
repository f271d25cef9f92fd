// Package config loads extractor settings from a YAML file, a .env file
// and FIDOO_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/catalog"
	"github.com/dvloznov/fidoo-extractor/internal/fidoo"
	"github.com/dvloznov/fidoo-extractor/internal/pipeline"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendCSV      = "csv"
	BackendGCS      = "gcs"
	BackendBigQuery = "bigquery"
	BackendDuckDB   = "duckdb"
)

// Config represents the extractor configuration.
type Config struct {
	Debug      bool             `yaml:"debug"`
	API        APIConfig        `yaml:"api"`
	Extraction ExtractionConfig `yaml:"extraction"`
	State      StateConfig      `yaml:"state"`
	Sink       SinkConfig       `yaml:"sink"`
	BigQuery   BigQueryConfig   `yaml:"bigquery"`
	Server     ServerConfig     `yaml:"server"`
}

// APIConfig holds Fidoo API settings.
type APIConfig struct {
	URL               string        `yaml:"url"`
	Key               string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	PageSize          int           `yaml:"page_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// ExtractionConfig selects what a run extracts.
type ExtractionConfig struct {
	Objects              []string `yaml:"objects"`
	Incremental          bool     `yaml:"incremental"`
	Dependents           bool     `yaml:"dependents"`
	DependentConcurrency int      `yaml:"dependent_concurrency"`
}

// StateConfig selects where watermarks are kept.
type StateConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Bucket  string `yaml:"bucket"`
	Object  string `yaml:"object"`
}

// SinkConfig selects where tables are written.
type SinkConfig struct {
	Backend       string `yaml:"backend"`
	Dir           string `yaml:"dir"`
	KeboolaBucket string `yaml:"keboola_bucket"`
	Header        bool   `yaml:"header"`
	GCSBucket     string `yaml:"gcs_bucket"`
	GCSPrefix     string `yaml:"gcs_prefix"`
	DuckDBPath    string `yaml:"duckdb_path"`
}

// BigQueryConfig holds the dataset used by the bigquery backends and the
// extraction_runs audit table.
type BigQueryConfig struct {
	ProjectID string `yaml:"project_id"`
	DatasetID string `yaml:"dataset_id"`
	AuditRuns bool   `yaml:"audit_runs"`
}

// ServerConfig holds cmd/api settings.
type ServerConfig struct {
	Port     string `yaml:"port"`
	APIToken string `yaml:"api_token"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			URL:               fidoo.DefaultBaseURL,
			Timeout:           30 * time.Second,
			MaxRetries:        3,
			PageSize:          fidoo.MaxPageSize,
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Extraction: ExtractionConfig{
			Objects:              append([]string(nil), catalog.DefaultObjects...),
			DependentConcurrency: 1,
		},
		State: StateConfig{
			Backend: BackendFile,
			Path:    "data/state.json",
		},
		Sink: SinkConfig{
			Backend:       BackendCSV,
			Dir:           "data/out/tables",
			KeboolaBucket: "out.c-fidoo",
			DuckDBPath:    "data/fidoo.duckdb",
		},
		BigQuery: BigQueryConfig{
			DatasetID: "fidoo",
		},
		Server: ServerConfig{
			Port: "8080",
		},
	}
}

// Load reads path (if non-empty) over the defaults, then .env, then the
// environment. A missing .env file is ignored.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from FIDOO_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("FIDOO_API_KEY"); ok {
		c.API.Key = v
	}
	if v, ok := lookup("FIDOO_API_URL"); ok && v != "" {
		c.API.URL = v
	}
	if v, ok := lookup("FIDOO_TIMEOUT"); ok && v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("FIDOO_TIMEOUT: %w", err)
		}
		c.API.Timeout = d
	}
	if v, ok := lookup("FIDOO_MAX_RETRIES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FIDOO_MAX_RETRIES: %w", err)
		}
		c.API.MaxRetries = n
	}
	if v, ok := lookup("FIDOO_DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FIDOO_DEBUG: %w", err)
		}
		c.Debug = b
	}
	if v, ok := lookup("FIDOO_OBJECTS"); ok && v != "" {
		c.Extraction.Objects = splitList(v)
	}
	if v, ok := lookup("FIDOO_INCREMENTAL"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FIDOO_INCREMENTAL: %w", err)
		}
		c.Extraction.Incremental = b
	}
	if v, ok := lookup("FIDOO_API_TOKEN"); ok {
		c.Server.APIToken = v
	}
	return nil
}

// parseTimeout accepts a Go duration ("45s") or whole seconds ("45").
func parseTimeout(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.Key == "" {
		return fmt.Errorf("api key is required (set FIDOO_API_KEY)")
	}
	if c.API.PageSize < 1 || c.API.PageSize > fidoo.MaxPageSize {
		return fmt.Errorf("page_size must be between 1 and %d", fidoo.MaxPageSize)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.Extraction.DependentConcurrency < 1 {
		return fmt.Errorf("dependent_concurrency must be at least 1")
	}
	if _, err := catalog.New().Resolve(c.Extraction.Objects); err != nil {
		return err
	}

	switch c.State.Backend {
	case BackendMemory, BackendFile:
	case BackendGCS:
		if c.State.Bucket == "" {
			return fmt.Errorf("state.bucket is required for the gcs state backend")
		}
	case BackendBigQuery:
		if err := c.BigQuery.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}

	switch c.Sink.Backend {
	case BackendCSV, BackendDuckDB:
	case BackendGCS:
		if c.Sink.GCSBucket == "" {
			return fmt.Errorf("sink.gcs_bucket is required for the gcs sink")
		}
	case BackendBigQuery:
		if err := c.BigQuery.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown sink backend %q", c.Sink.Backend)
	}

	if c.BigQuery.AuditRuns {
		if err := c.BigQuery.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (b BigQueryConfig) validate() error {
	if b.ProjectID == "" || b.DatasetID == "" {
		return fmt.Errorf("bigquery.project_id and bigquery.dataset_id are required")
	}
	return nil
}

// ClientConfig returns the Fidoo client settings.
func (c *Config) ClientConfig() fidoo.Config {
	fc := fidoo.DefaultConfig()
	fc.BaseURL = c.API.URL
	fc.APIKey = c.API.Key
	fc.Timeout = c.API.Timeout
	fc.MaxRetries = c.API.MaxRetries
	fc.RequestsPerSecond = c.API.RequestsPerSecond
	fc.Burst = c.API.Burst
	return fc
}

// PipelineOptions returns the per-run engine switches.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Incremental:          c.Extraction.Incremental,
		Dependents:           c.Extraction.Dependents,
		PageSize:             c.API.PageSize,
		DependentConcurrency: c.Extraction.DependentConcurrency,
	}
}
