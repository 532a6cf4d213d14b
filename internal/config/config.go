// Package config loads bookshelf's configuration.
//
// Values are layered, later sources winning:
//  1. Built-in defaults (Default)
//  2. The YAML file given with --config, if any
//  3. Variables from a .env file, if present
//  4. BOOKSHELF_* environment variables
//
// The result is validated against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/roach88/bookshelf/internal/delivery"
)

// EnvPrefix prefixes every environment variable, e.g. BOOKSHELF_DATABASE.
const EnvPrefix = "BOOKSHELF"

//go:embed schema.cue
var schemaSource string

type Config struct {
	Database   string           `yaml:"database" json:"database" envconfig:"DATABASE"`
	Worker     WorkerConfig     `yaml:"worker" json:"worker" envconfig:"WORKER"`
	Quota      QuotaConfig      `yaml:"quota" json:"quota" envconfig:"QUOTA"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint" envconfig:"CHECKPOINT"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics" envconfig:"METRICS"`
	Books      BooksConfig      `yaml:"books" json:"books" envconfig:"BOOKS"`
	SES        SESConfig        `yaml:"ses" json:"ses" envconfig:"SES"`
	Log        LogConfig        `yaml:"log" json:"log" envconfig:"LOG"`
}

type WorkerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval" envconfig:"POLL_INTERVAL"`
	BatchSize    int           `yaml:"batch_size" json:"batch_size" envconfig:"BATCH_SIZE"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries" envconfig:"MAX_RETRIES"`
	SendTimeout  time.Duration `yaml:"send_timeout" json:"send_timeout" envconfig:"SEND_TIMEOUT"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay" envconfig:"BASE_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay" envconfig:"MAX_DELAY"`
	Jitter       float64       `yaml:"jitter" json:"jitter" envconfig:"JITTER"`
}

type QuotaConfig struct {
	DailyLimit int `yaml:"daily_limit" json:"daily_limit" envconfig:"DAILY_LIMIT"`
}

type CheckpointConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval" envconfig:"INTERVAL"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr" envconfig:"ADDR"`
}

type BooksConfig struct {
	Dir string `yaml:"dir" json:"dir" envconfig:"DIR"`
}

type SESConfig struct {
	Sender string `yaml:"sender" json:"sender" envconfig:"SENDER"`
	Region string `yaml:"region" json:"region" envconfig:"REGION"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" json:"format" envconfig:"FORMAT"`
}

// Default returns the built-in configuration.
func Default() Config {
	backoff := delivery.DefaultBackoff()
	return Config{
		Database: "bookshelf.db",
		Worker: WorkerConfig{
			PollInterval: delivery.DefaultPollInterval,
			BatchSize:    delivery.DefaultBatchSize,
			MaxRetries:   delivery.DefaultMaxRetries,
			SendTimeout:  delivery.DefaultSendTimeout,
			BaseDelay:    backoff.Base,
			MaxDelay:     backoff.Max,
			Jitter:       backoff.Jitter,
		},
		Quota:      QuotaConfig{DailyLimit: 5},
		Checkpoint: CheckpointConfig{Interval: 30 * time.Second},
		Metrics:    MetricsConfig{Addr: ":9090"},
		Books:      BooksConfig{Dir: "books"},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

type loadOptions struct {
	envFile string
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

// WithEnvFile reads variables from path instead of ./.env.
func WithEnvFile(path string) LoadOption {
	return func(o *loadOptions) {
		o.envFile = path
	}
}

// Load builds the effective configuration. path may be empty, in which case
// no YAML file is read. A missing env file is not an error.
func Load(path string, opts ...LoadOption) (Config, error) {
	o := loadOptions{envFile: ".env"}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load %s: %w", o.envFile, err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Delivery returns the worker settings.
func (c Config) Delivery() delivery.Config {
	return delivery.Config{
		BatchSize:   c.Worker.BatchSize,
		MaxRetries:  c.Worker.MaxRetries,
		SendTimeout: c.Worker.SendTimeout,
		Backoff: delivery.Backoff{
			Base:   c.Worker.BaseDelay,
			Max:    c.Worker.MaxDelay,
			Jitter: c.Worker.Jitter,
		},
	}
}

// DryRun reports whether deliveries are logged instead of sent.
func (c Config) DryRun() bool {
	return c.SES.Sender == ""
}
