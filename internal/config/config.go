package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	databaseDSNEnv  = "BANK_INGEST_DSN"
	backupBucketEnv = "BANK_INGEST_BACKUP_BUCKET"
	sourcePathEnv   = "BANK_INGEST_SOURCE"
)

// Config holds every setting the ingestion run needs. It is loaded once and
// passed explicitly into constructors; there is no process-wide mutable
// configuration.
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Database DatabaseConfig `yaml:"database"`
	Sink     SinkConfig     `yaml:"sink"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Columns  ColumnsConfig  `yaml:"columns"`
	Dates    DatesConfig    `yaml:"dates"`
	Backup   BackupConfig   `yaml:"backup"`
}

// SourceConfig locates the delimited input file.
type SourceConfig struct {
	Path string `yaml:"path"`
}

// DatabaseConfig describes the Postgres connection.
type DatabaseConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// SinkConfig selects and parameterizes the storage sink.
type SinkConfig struct {
	// Kind is "postgres" (default) or "bigquery".
	Kind string `yaml:"kind"`

	// BigQuery coordinates, used only when Kind is "bigquery".
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
	Table   string `yaml:"table"`

	// Timeout bounds each sink call; exceeding it counts as a transient
	// failure subject to the retry policy.
	Timeout time.Duration `yaml:"timeout"`
}

// IngestConfig tunes the chunked run itself.
type IngestConfig struct {
	// ChunkSize is the number of rows pulled and committed at a time.
	ChunkSize int `yaml:"chunkSize"`

	// RecordLimit caps rows attempted across the run; 0 means unbounded.
	// The limit is checked before pulling the next chunk.
	RecordLimit int64 `yaml:"recordLimit"`

	// Workers processes this many chunks concurrently; 1 is the
	// sequential baseline.
	Workers int `yaml:"workers"`

	// RetryAttempts and RetryBaseDelay parameterize the transient-failure
	// retry policy (delay doubles each attempt).
	RetryAttempts  int           `yaml:"retryAttempts"`
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay"`
}

// ColumnsConfig maps the logical fields onto the source file's header names.
// Names are case-sensitive and come from configuration, never hardcoded in
// the ingestion core.
type ColumnsConfig struct {
	TransactionID   string `yaml:"transactionId"`
	CustomerID      string `yaml:"customerId"`
	CustomerDOB     string `yaml:"customerDob"`
	Gender          string `yaml:"gender"`
	Location        string `yaml:"location"`
	AccountBalance  string `yaml:"accountBalance"`
	TransactionDate string `yaml:"transactionDate"`
	TransactionTime string `yaml:"transactionTime"`
	Amount          string `yaml:"amount"`
}

// DatesConfig carries the per-role year plausibility windows used to resolve
// two-digit-year ambiguity.
type DatesConfig struct {
	TransactionDate WindowConfig `yaml:"transactionDate"`
	DateOfBirth     WindowConfig `yaml:"dateOfBirth"`
}

// WindowConfig is an inclusive year range.
type WindowConfig struct {
	MinYear int `yaml:"minYear"`
	MaxYear int `yaml:"maxYear"`
}

// BackupConfig wires the optional raw-chunk backup side-channel. An empty
// bucket disables it.
type BackupConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// Load reads the YAML file at path, applies environment overrides, and fills
// in defaults for anything unset.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(backupBucketEnv); v != "" {
		c.Backup.Bucket = v
	}
	if v := os.Getenv(sourcePathEnv); v != "" {
		c.Source.Path = v
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Table == "" {
		c.Database.Table = "transactions"
	}
	if c.Sink.Kind == "" {
		c.Sink.Kind = "postgres"
	}
	if c.Sink.Timeout <= 0 {
		c.Sink.Timeout = 30 * time.Second
	}
	if c.Ingest.ChunkSize <= 0 {
		c.Ingest.ChunkSize = 100_000
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 1
	}
	if c.Ingest.RetryAttempts <= 0 {
		c.Ingest.RetryAttempts = 3
	}
	if c.Ingest.RetryBaseDelay <= 0 {
		c.Ingest.RetryBaseDelay = time.Second
	}

	cols := &c.Columns
	defaultStr(&cols.TransactionID, "TransactionID")
	defaultStr(&cols.CustomerID, "CustomerID")
	defaultStr(&cols.CustomerDOB, "CustomerDOB")
	defaultStr(&cols.Gender, "CustGender")
	defaultStr(&cols.Location, "CustLocation")
	defaultStr(&cols.AccountBalance, "CustAccountBalance")
	defaultStr(&cols.TransactionDate, "TransactionDate")
	defaultStr(&cols.TransactionTime, "TransactionTime")
	defaultStr(&cols.Amount, "TransactionAmount (INR)")

	if c.Dates.TransactionDate == (WindowConfig{}) {
		c.Dates.TransactionDate = WindowConfig{MinYear: 2000, MaxYear: 2020}
	}
	if c.Dates.DateOfBirth == (WindowConfig{}) {
		c.Dates.DateOfBirth = WindowConfig{MinYear: 1900, MaxYear: 2010}
	}
}

func (c *Config) validate() error {
	switch c.Sink.Kind {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("config: database.dsn is required for the postgres sink (or set %s)", databaseDSNEnv)
		}
	case "bigquery":
		if c.Sink.Project == "" || c.Sink.Dataset == "" || c.Sink.Table == "" {
			return fmt.Errorf("config: sink.project, sink.dataset and sink.table are required for the bigquery sink")
		}
	default:
		return fmt.Errorf("config: unknown sink kind %q", c.Sink.Kind)
	}
	if c.Source.Path == "" {
		return fmt.Errorf("config: source.path is required (or set %s)", sourcePathEnv)
	}
	return nil
}

func defaultStr(s *string, def string) {
	if *s == "" {
		*s = def
	}
}
