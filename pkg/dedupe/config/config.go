package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fileforge/dedupe/pkg/dedupe"
	cachememory "github.com/fileforge/dedupe/pkg/dedupe/cache/memory"
	repomemory "github.com/fileforge/dedupe/pkg/dedupe/repo/memory"
	repopg "github.com/fileforge/dedupe/pkg/dedupe/repo/postgres"
	fsstorage "github.com/fileforge/dedupe/pkg/dedupe/storage/fs"
	memorystorage "github.com/fileforge/dedupe/pkg/dedupe/storage/memory"
	s3storage "github.com/fileforge/dedupe/pkg/dedupe/storage/s3"
)

// ServerConfig represents server configuration for the dedupe service
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	// Repository configuration
	DatabaseType string   `env:"DATABASE_TYPE" env-default:"memory"` // "memory", "postgres"
	DB           DbConfig `env-prefix:"DEDUPE_PG_"`

	// Storage configuration
	StorageBackend string   `env:"STORAGE_BACKEND" env-default:"memory"` // "memory", "fs", "s3"
	FSBaseDir      string   `env:"FS_BASE_DIR" env-default:"./data/blobs"`
	S3             S3Config `env-prefix:"AWS_"`

	// Service options
	HashAlgorithm string        `env:"HASH_ALGORITHM" env-default:"sha256"`
	CacheTTL      time.Duration `env:"CACHE_TTL" env-default:"5m"`
	MaxPageSize   int           `env:"MAX_PAGE_SIZE" env-default:"100"`
	EnableEvents  bool          `env:"ENABLE_EVENT_LOGGING" env-default:"true"`
}

// DbConfig holds PostgreSQL connection settings
type DbConfig struct {
	Host     string `env:"HOST" env-default:"localhost"`
	Port     uint16 `env:"PORT" env-default:"5432"`
	Name     string `env:"NAME" env-default:"dedupe"`
	User     string `env:"USER" env-default:"dedupe"`
	Password string `env:"PASSWORD" env-default:"pwd"`
}

// S3Config holds S3/MinIO connection settings
type S3Config struct {
	Endpoint        string `env:"S3_ENDPOINT" env-default:""`
	AccessKeyID     string `env:"ACCESS_KEY_ID" env-default:""`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY" env-default:""`
	Bucket          string `env:"S3_BUCKET" env-default:"dedupe-content"`
	Region          string `env:"S3_REGION" env-default:"us-east-1"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"true"`
	CreateBucket    bool   `env:"S3_CREATE_BUCKET" env-default:"false"`
}

func (c DbConfig) toDatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Name,
	}
	return u.String()
}

// Load reads the server configuration from the environment.
func Load() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration consistency.
func (c *ServerConfig) Validate() error {
	switch c.DatabaseType {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unsupported database type %q", c.DatabaseType)
	}
	switch c.StorageBackend {
	case "memory", "fs", "s3":
	default:
		return fmt.Errorf("unsupported storage backend %q", c.StorageBackend)
	}
	if c.StorageBackend == "s3" && c.S3.Bucket == "" {
		return fmt.Errorf("s3 storage backend requires a bucket name")
	}
	return nil
}

// BuildService wires a dedupe.Service from the configuration. The returned
// cleanup function releases the database pool and cache sweeper and must be
// called on shutdown.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (dedupe.Service, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var repo dedupe.Repository
	switch c.DatabaseType {
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DB.toDatabaseURL())
		if err != nil {
			return nil, nil, fmt.Errorf("create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		repo = repopg.NewWithPool(pool)
	default:
		repo = repomemory.New()
	}

	var store dedupe.BlobStore
	var err error
	switch c.StorageBackend {
	case "fs":
		store, err = fsstorage.New(fsstorage.Config{BaseDir: c.FSBaseDir})
	case "s3":
		store, err = s3storage.New(s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		})
	default:
		store = memorystorage.New()
	}
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create storage backend: %w", err)
	}

	cache := cachememory.New(0)
	cleanups = append(cleanups, cache.Close)

	sink := dedupe.NewNoopEventSink()
	if c.EnableEvents {
		sink = dedupe.NewLoggingEventSink(logger)
	}

	svc, err := dedupe.New(
		dedupe.WithRepository(repo),
		dedupe.WithBlobStore(store),
		dedupe.WithCache(cache),
		dedupe.WithEventSink(sink),
		dedupe.WithHashAlgorithm(c.HashAlgorithm),
		dedupe.WithCacheTTL(c.CacheTTL),
		dedupe.WithMaxPageSize(c.MaxPageSize),
		dedupe.WithLogger(logger),
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("build service: %w", err)
	}

	return svc, cleanup, nil
}
