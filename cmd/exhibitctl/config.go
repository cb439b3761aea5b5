package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/exhibitid"
	"github.com/hupe1980/exhibitid/internal/connection"
	"github.com/hupe1980/exhibitid/internal/identify"
)

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	// Backend is one of memory, sqlite, postgres, mysql, badger, dynamo.
	Backend string `yaml:"backend"`
	// DSN is the database connection string for sql backends.
	DSN string `yaml:"dsn,omitempty"`
	// Table is the sql or DynamoDB table.
	Table string `yaml:"table,omitempty"`
	// Dir is the badger data directory.
	Dir string `yaml:"dir,omitempty"`
	// Region is the AWS region for dynamo.
	Region string `yaml:"region,omitempty"`
	// Compression of descriptor blobs: none, lz4 or zstd. Empty keeps the
	// backend default.
	Compression    string `yaml:"compression,omitempty"`
	Codec          string `yaml:"codec,omitempty"`
	ConsistentRead bool   `yaml:"consistent_read,omitempty"`
}

// ImagesConfig optionally moves exhibit images out of the record store.
type ImagesConfig struct {
	// Backend is one of none, s3, minio.
	Backend          string `yaml:"backend"`
	Bucket           string `yaml:"bucket,omitempty"`
	Prefix           string `yaml:"prefix,omitempty"`
	Endpoint         string `yaml:"endpoint,omitempty"`
	Region           string `yaml:"region,omitempty"`
	AccessKey        string `yaml:"access_key,omitempty"`
	SecretKey        string `yaml:"secret_key,omitempty"`
	UseSSL           bool   `yaml:"use_ssl,omitempty"`
	FetchConcurrency int    `yaml:"fetch_concurrency,omitempty"`
	CacheBytes       int64  `yaml:"cache_bytes,omitempty"`
}

// EngineConfig tunes identification.
type EngineConfig struct {
	PoolSize       int           `yaml:"pool_size"`
	K              int           `yaml:"k"`
	RatioTest      bool          `yaml:"ratio_test"`
	Ratio          float64       `yaml:"ratio"`
	MinVotes       int           `yaml:"min_votes,omitempty"`
	MaxDescriptors int           `yaml:"max_descriptors"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout,omitempty"`
	PageSize       int           `yaml:"page_size,omitempty"`
	LoadRate       int           `yaml:"load_rate,omitempty"`
	MemoryLimit    int64         `yaml:"memory_limit,omitempty"`
}

type Config struct {
	Store    StoreConfig  `yaml:"store"`
	Images   ImagesConfig `yaml:"images"`
	Engine   EngineConfig `yaml:"engine"`
	LogLevel string       `yaml:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: "sqlite",
			DSN:     "exhibits.db",
		},
		Images: ImagesConfig{
			Backend: "none",
		},
		Engine: EngineConfig{
			PoolSize:       exhibitid.DefaultPoolSize,
			K:              identify.DefaultK,
			Ratio:          identify.DefaultRatio,
			MaxDescriptors: exhibitid.DefaultMaxDescriptors,
			MaxRetries:     connection.DefaultMaxRetries,
			RetryDelay:     connection.DefaultRetryDelay,
		},
		LogLevel: "warn",
	}
}

// LoadConfig reads path over the defaults. A missing file yields the
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "sqlite", "postgres", "mysql", "badger", "dynamo":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	switch c.Images.Backend {
	case "", "none", "s3", "minio":
	default:
		return fmt.Errorf("config: unknown images backend %q", c.Images.Backend)
	}
	if c.Images.Backend == "s3" || c.Images.Backend == "minio" {
		if c.Images.Bucket == "" {
			return fmt.Errorf("config: images backend %q needs a bucket", c.Images.Backend)
		}
	}
	if c.Store.Backend == "dynamo" && c.Store.Table == "" {
		return errors.New("config: dynamo backend needs a table")
	}
	return nil
}

// EngineOptions maps the engine section to engine options.
func (c *Config) EngineOptions() []exhibitid.Option {
	e := c.Engine
	opts := []exhibitid.Option{
		exhibitid.WithPoolSize(e.PoolSize),
		exhibitid.WithK(e.K),
		exhibitid.WithMinVotes(e.MinVotes),
		exhibitid.WithMaxDescriptors(e.MaxDescriptors),
		exhibitid.WithMaxRetries(e.MaxRetries),
		exhibitid.WithRetryDelay(e.RetryDelay),
		exhibitid.WithAcquireTimeout(e.AcquireTimeout),
		exhibitid.WithPageSize(e.PageSize),
		exhibitid.WithLoadRate(e.LoadRate),
		exhibitid.WithMemoryLimit(e.MemoryLimit),
	}
	if e.RatioTest {
		opts = append(opts, exhibitid.WithRatioTest(e.Ratio))
	}
	return opts
}
