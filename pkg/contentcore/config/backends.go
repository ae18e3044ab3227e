package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/content-core/pkg/contentcore"
	"github.com/tendant/content-core/pkg/contentcore/search/elastic"
	"github.com/tendant/content-core/pkg/contentcore/storage/memory"
	"github.com/tendant/content-core/pkg/contentcore/storage/postgres"
	"github.com/tendant/content-core/pkg/contentcore/storage/sqlite"
	s3storage "github.com/tendant/content-core/pkg/contentcore/storage/s3"
)

// Backends holds the connections shared by every content type stored on the
// configured backend.
type Backends struct {
	target   StorageTarget
	schema   string
	s3Config s3storage.Config

	pool     *pgxpool.Pool
	db       *sql.DB
	s3Client *s3.Client
}

// OpenBackends connects to the configured storage and creates its schema.
func OpenBackends(ctx context.Context, cfg *Config) (*Backends, error) {
	target, err := cfg.Storage()
	if err != nil {
		return nil, err
	}

	b := &Backends{target: target, schema: cfg.DBSchema}

	switch target.Kind {
	case StorageMemory:
	case StoragePostgres:
		pool, err := pgxpool.New(ctx, target.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, pool, cfg.DBSchema); err != nil {
			pool.Close()
			return nil, err
		}
		b.pool = pool
	case StorageSQLite:
		db, err := sqlite.Open(target.Path)
		if err != nil {
			return nil, err
		}
		if err := sqlite.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		b.db = db
	case StorageS3:
		b.s3Config = s3storage.Config{
			Region:                 cfg.S3Region,
			Bucket:                 target.Bucket,
			Prefix:                 target.Prefix,
			AccessKeyID:            cfg.S3AccessKeyID,
			SecretAccessKey:        cfg.S3SecretAccessKey,
			Endpoint:               cfg.S3Endpoint,
			UsePathStyle:           cfg.S3UsePathStyle,
			CreateBucketIfNotExist: cfg.S3CreateBucket,
		}
		client, err := s3storage.NewClient(ctx, b.s3Config)
		if err != nil {
			return nil, err
		}
		b.s3Client = client
	default:
		return nil, fmt.Errorf("unsupported storage kind: %s", target.Kind)
	}

	return b, nil
}

// Kind returns the storage kind in use.
func (b *Backends) Kind() string {
	return b.target.Kind
}

// Close releases database connections.
func (b *Backends) Close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// BuildStorage returns a backend for contentType on the shared connections.
func BuildStorage[T any](ctx context.Context, b *Backends, contentType string) (contentcore.Storage[T], error) {
	switch b.target.Kind {
	case StorageMemory:
		return memory.New[T](contentType), nil
	case StoragePostgres:
		return postgres.NewWithPool[T](b.pool, contentType, postgres.WithSchema(b.schema)), nil
	case StorageSQLite:
		return sqlite.New[T](b.db, contentType), nil
	case StorageS3:
		return s3storage.NewWithClient[T](ctx, b.s3Client, b.s3Config, contentType)
	}
	return nil, fmt.Errorf("unsupported storage kind: %s", b.target.Kind)
}

// ElasticsearchClient returns nil when ELASTICSEARCH_URL is unset.
func (c *Config) ElasticsearchClient() (*elasticsearch.Client, error) {
	if c.ElasticsearchURL == "" {
		return nil, nil
	}
	return elastic.NewClient(c.ElasticsearchURL)
}

// RedisClient returns nil when REDIS_ADDRESS is unset.
func (c *Config) RedisClient() *redis.Client {
	if c.RedisAddress == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: c.RedisAddress})
}
