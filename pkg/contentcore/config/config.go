package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/content-core/pkg/contentcore"
	"github.com/tendant/content-core/pkg/contentcore/storage/postgres"
)

// Storage kinds accepted in STORAGE_URL
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageS3       = "s3"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Config is the runtime configuration of the content core server.
type Config struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"` // development, production, testing

	// STORAGE_URL selects the backend every content type is stored in:
	// memory://, postgres://..., postgresql://..., sqlite://path or s3://bucket[/prefix]
	StorageURL string `env:"STORAGE_URL" env-default:"memory://"`
	DBSchema   string `env:"DB_SCHEMA" env-default:"content"` // Postgres schema

	S3Region          string `env:"S3_REGION" env-default:"us-east-1"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	S3CreateBucket    bool   `env:"S3_CREATE_BUCKET" env-default:"false"`

	ElasticsearchURL   string `env:"ELASTICSEARCH_URL"` // empty disables the search index
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" env-default:"content-items"`

	RedisAddress string `env:"REDIS_ADDRESS"` // empty disables event forwarding
	EventStream  string `env:"EVENT_STREAM" env-default:"content-events"`

	AllowOverwriteRegistration bool  `env:"ALLOW_OVERWRITE_REGISTRATION" env-default:"false"`
	RPCMaxBodyBytes            int64 `env:"RPC_MAX_BODY_BYTES" env-default:"1048576"`
}

// StorageTarget is STORAGE_URL broken into its parts.
type StorageTarget struct {
	Kind   string
	DSN    string // postgres connection string
	Path   string // sqlite database file, ":memory:" when empty
	Bucket string
	Prefix string // s3 key prefix
}

// Load constructs a Config by applying the supplied options on top of defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		Port:               "8080",
		Environment:        "development",
		StorageURL:         "memory://",
		DBSchema:           postgres.DefaultSchema,
		S3Region:           "us-east-1",
		ElasticsearchIndex: "content-items",
		EventStream:        "content-events",
		RPCMaxBodyBytes:    1 << 20,
	}
}

// WithEnv reads the environment into the config. Unset variables fall back
// to their documented defaults.
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithStorageURL overrides STORAGE_URL.
func WithStorageURL(raw string) Option {
	return func(c *Config) error {
		c.StorageURL = raw
		return nil
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.RPCMaxBodyBytes <= 0 {
		return errors.New("rpc_max_body_bytes must be positive")
	}
	target, err := c.Storage()
	if err != nil {
		return err
	}
	if target.Kind == StoragePostgres && c.DBSchema == "" {
		return errors.New("db_schema is required when using postgres")
	}
	return nil
}

// Storage parses StorageURL.
func (c *Config) Storage() (StorageTarget, error) {
	return ParseStorageURL(c.StorageURL)
}

// RegistryOptions returns the registry options implied by the config.
func (c *Config) RegistryOptions() []contentcore.RegistryOption {
	if c.AllowOverwriteRegistration {
		return []contentcore.RegistryOption{contentcore.WithOverwrite()}
	}
	return nil
}

// ParseStorageURL interprets a STORAGE_URL value.
func ParseStorageURL(raw string) (StorageTarget, error) {
	switch {
	case raw == "" || raw == "memory" || raw == "memory://":
		return StorageTarget{Kind: StorageMemory}, nil
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return StorageTarget{Kind: StoragePostgres, DSN: raw}, nil
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			path = ":memory:"
		}
		return StorageTarget{Kind: StorageSQLite, Path: path}, nil
	case strings.HasPrefix(raw, "s3://"):
		u, err := url.Parse(raw)
		if err != nil {
			return StorageTarget{}, fmt.Errorf("invalid STORAGE_URL: %w", err)
		}
		if u.Host == "" {
			return StorageTarget{}, errors.New("S3 bucket name cannot be empty in STORAGE_URL")
		}
		prefix := strings.Trim(u.Path, "/")
		if prefix != "" {
			prefix += "/"
		}
		return StorageTarget{Kind: StorageS3, Bucket: u.Host, Prefix: prefix}, nil
	}
	return StorageTarget{}, fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'postgres://...', 'sqlite://...', or 's3://...')", raw)
}
