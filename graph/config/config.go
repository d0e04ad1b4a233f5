// Package config loads engine settings from YAML and the environment and
// turns them into graph options, a store and a logger.
//
// A typical program does:
//
//	cfg, err := config.Load("dataflow.yaml")
//	if err != nil { ... }
//	if err := cfg.LoadEnv(".env"); err != nil { ... }
//	st, closeStore, err := cfg.OpenStore(ctx)
//	opts, err := cfg.Options()
//	engine, err := graph.New(catalog, st, nil, opts...)
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/dataflow-go/graph"
	"github.com/dshills/dataflow-go/graph/store"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DATAFLOW_"

// Config is the file and environment form of the engine settings.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Store  StoreConfig  `yaml:"store"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig mirrors graph.Options.
type EngineConfig struct {
	MaxConcurrentNodes int           `yaml:"max_concurrent_nodes"`
	QueueDepth         int           `yaml:"queue_depth"`
	NodeTimeout        time.Duration `yaml:"node_timeout"`
	RunBudget          time.Duration `yaml:"run_budget"`
	Persist            bool          `yaml:"persist"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Driver is one of memory, sqlite, mysql, redis or gcs.
	Driver string `yaml:"driver"`

	// DSN is the sqlite path, the mysql DSN or the redis URL.
	DSN string `yaml:"dsn"`

	// Bucket names the GCS bucket.
	Bucket string `yaml:"bucket"`

	// Prefix namespaces redis keys and GCS objects.
	Prefix string `yaml:"prefix"`

	// TTL expires redis records. Zero keeps them.
	TTL time.Duration `yaml:"ttl"`
}

// LogConfig configures NewLogger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	TimeFormat string `yaml:"time_format"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{QueueDepth: 1024},
		Store:  StoreConfig{Driver: "memory"},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadEnv loads the given .env files (missing ones are skipped) and then
// applies DATAFLOW_* variables from the process environment. Variables
// already set in the environment win over .env files.
func (c *Config) LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"STORE_DRIVER":    &c.Store.Driver,
		"STORE_DSN":       &c.Store.DSN,
		"STORE_BUCKET":    &c.Store.Bucket,
		"STORE_PREFIX":    &c.Store.Prefix,
		"LOG_LEVEL":       &c.Log.Level,
		"LOG_FORMAT":      &c.Log.Format,
		"LOG_OUTPUT":      &c.Log.Output,
		"LOG_FILE":        &c.Log.FilePath,
		"LOG_TIME_FORMAT": &c.Log.TimeFormat,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_CONCURRENT": &c.Engine.MaxConcurrentNodes,
		"QUEUE_DEPTH":    &c.Engine.QueueDepth,
	}
	for key, dst := range ints {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"NODE_TIMEOUT": &c.Engine.NodeTimeout,
		"RUN_BUDGET":   &c.Engine.RunBudget,
		"STORE_TTL":    &c.Store.TTL,
	}
	for key, dst := range durations {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup(EnvPrefix + "PERSIST"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sPERSIST: %w", EnvPrefix, err)
		}
		c.Engine.Persist = b
	}
	return nil
}

// Options converts the engine section into graph options. The logger is
// built from the log section.
func (c *Config) Options() ([]graph.Option, error) {
	logger, err := NewLogger(c.Log)
	if err != nil {
		return nil, err
	}
	return []graph.Option{
		graph.WithMaxConcurrent(c.Engine.MaxConcurrentNodes),
		graph.WithQueueDepth(c.Engine.QueueDepth),
		graph.WithDefaultNodeTimeout(c.Engine.NodeTimeout),
		graph.WithRunWallClockBudget(c.Engine.RunBudget),
		graph.WithPersistence(c.Engine.Persist),
		graph.WithLogger(logger),
	}, nil
}

// OpenStore opens the configured backend. The returned func releases it.
func (c *Config) OpenStore(ctx context.Context) (store.Store, func() error, error) {
	noop := func() error { return nil }
	s := c.Store

	switch strings.ToLower(s.Driver) {
	case "", "memory":
		return store.NewMemStore(), noop, nil
	case "sqlite":
		if s.DSN == "" {
			return nil, noop, fmt.Errorf("sqlite store requires a dsn")
		}
		st, err := store.NewSQLiteStore(s.DSN)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	case "mysql":
		if s.DSN == "" {
			return nil, noop, fmt.Errorf("mysql store requires a dsn")
		}
		st, err := store.NewMySQLStore(s.DSN)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	case "redis":
		if s.DSN == "" {
			return nil, noop, fmt.Errorf("redis store requires a dsn")
		}
		st, err := store.NewRedisStore(ctx, s.DSN, s.Prefix, s.TTL)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	case "gcs":
		if s.Bucket == "" {
			return nil, noop, fmt.Errorf("gcs store requires a bucket")
		}
		st, err := store.NewGCSStore(ctx, s.Bucket, s.Prefix)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", s.Driver)
	}
}
