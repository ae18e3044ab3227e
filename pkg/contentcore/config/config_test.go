package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-core/pkg/contentcore"
)

type widget struct {
	Name string `json:"name,omitempty"`
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory://", cfg.StorageURL)
	assert.Equal(t, "content", cfg.DBSchema)
	assert.Equal(t, "content-items", cfg.ElasticsearchIndex)
	assert.Equal(t, "content-events", cfg.EventStream)
	assert.Equal(t, int64(1<<20), cfg.RPCMaxBodyBytes)
	assert.False(t, cfg.AllowOverwriteRegistration)
	assert.Empty(t, cfg.RegistryOptions())
}

func TestWithEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_URL", "sqlite://content.db")
	t.Setenv("ELASTICSEARCH_URL", "http://localhost:9200")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("EVENT_STREAM", "audit")
	t.Setenv("ALLOW_OVERWRITE_REGISTRATION", "true")
	t.Setenv("RPC_MAX_BODY_BYTES", "2048")

	cfg, err := Load(WithEnv())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "sqlite://content.db", cfg.StorageURL)
	assert.Equal(t, "audit", cfg.EventStream)
	assert.Equal(t, "content-items", cfg.ElasticsearchIndex)
	assert.True(t, cfg.AllowOverwriteRegistration)
	assert.Len(t, cfg.RegistryOptions(), 1)
	assert.Equal(t, int64(2048), cfg.RPCMaxBodyBytes)

	esClient, err := cfg.ElasticsearchClient()
	require.NoError(t, err)
	assert.NotNil(t, esClient)

	redisClient := cfg.RedisClient()
	require.NotNil(t, redisClient)
	assert.Equal(t, "localhost:6379", redisClient.Options().Addr)
	require.NoError(t, redisClient.Close())
}

func TestWithEnv_InvalidValues(t *testing.T) {
	t.Run("Bool", func(t *testing.T) {
		t.Setenv("S3_USE_PATH_STYLE", "maybe")
		_, err := Load(WithEnv())
		assert.Error(t, err)
	})

	t.Run("StorageURL", func(t *testing.T) {
		t.Setenv("STORAGE_URL", "ftp://example.com")
		_, err := Load(WithEnv())
		assert.Error(t, err)
	})

	t.Run("BodyLimit", func(t *testing.T) {
		t.Setenv("RPC_MAX_BODY_BYTES", "0")
		_, err := Load(WithEnv())
		assert.Error(t, err)
	})
}

func TestOptionalClientsDisabled(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	esClient, err := cfg.ElasticsearchClient()
	require.NoError(t, err)
	assert.Nil(t, esClient)
	assert.Nil(t, cfg.RedisClient())
}

func TestParseStorageURL(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		want      StorageTarget
		wantError bool
	}{
		{"empty defaults to memory", "", StorageTarget{Kind: StorageMemory}, false},
		{"memory keyword", "memory", StorageTarget{Kind: StorageMemory}, false},
		{"memory URL", "memory://", StorageTarget{Kind: StorageMemory}, false},
		{"postgres URL", "postgres://u:p@localhost/db", StorageTarget{Kind: StoragePostgres, DSN: "postgres://u:p@localhost/db"}, false},
		{"postgresql URL", "postgresql://u:p@localhost/db", StorageTarget{Kind: StoragePostgres, DSN: "postgresql://u:p@localhost/db"}, false},
		{"sqlite file", "sqlite:///var/lib/content.db", StorageTarget{Kind: StorageSQLite, Path: "/var/lib/content.db"}, false},
		{"sqlite in memory", "sqlite://", StorageTarget{Kind: StorageSQLite, Path: ":memory:"}, false},
		{"S3 bucket", "s3://my-bucket", StorageTarget{Kind: StorageS3, Bucket: "my-bucket"}, false},
		{"S3 bucket with prefix", "s3://my-bucket/items/", StorageTarget{Kind: StorageS3, Bucket: "my-bucket", Prefix: "items/"}, false},
		{"S3 without bucket", "s3://", StorageTarget{}, true},
		{"unsupported", "mysql://localhost/db", StorageTarget{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStorageURL(tt.raw)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildStorage(t *testing.T) {
	ctx := context.Background()

	for _, raw := range []string{"memory://", "sqlite://"} {
		t.Run(raw, func(t *testing.T) {
			cfg, err := Load(WithStorageURL(raw))
			require.NoError(t, err)

			backends, err := OpenBackends(ctx, cfg)
			require.NoError(t, err)
			defer backends.Close()

			widgets, err := BuildStorage[widget](ctx, backends, "widget")
			require.NoError(t, err)

			item, err := widgets.Create(ctx, widget{Name: "gear"}, contentcore.CreateOptions{})
			require.NoError(t, err)

			got, err := widgets.Get(ctx, item.ID)
			require.NoError(t, err)
			assert.Equal(t, "gear", got.Attributes.Name)
		})
	}
}
