// Package config assembles the ingestion pipeline's building blocks from a
// single declarative configuration: status store, raw blob store and job
// dispatcher. Defaults run everything in memory so local development needs no
// external services.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/media-ingest/pkg/mediaingest"
	"github.com/tendant/media-ingest/pkg/mediaingest/dispatch"
	statusmemory "github.com/tendant/media-ingest/pkg/mediaingest/statusstore/memory"
	statuspg "github.com/tendant/media-ingest/pkg/mediaingest/statusstore/postgres"
	storagememory "github.com/tendant/media-ingest/pkg/mediaingest/storage/memory"
	storages3 "github.com/tendant/media-ingest/pkg/mediaingest/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
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

func defaults() ServerConfig {
	return ServerConfig{
		Port:            "8080",
		Environment:     "development",
		DatabaseType:    "memory",
		DBSchema:        "mediaingest",
		StorageType:     "memory",
		MediaTypePrefix: "video/",
		RawBucket:       "media-raw",
		OutputBucket:    "media-processed",
		DispatchMode:    "log",
		Job: JobConfig{
			Project: "media-prod",
			Region:  "us-central1",
			JobName: "encode-video",
		},
	}
}

// ServerConfig represents configuration for the ingest server.
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration for the status store
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string

	// Raw-bucket blob storage
	StorageType string // "memory", "s3"
	S3          S3Config

	// Event filter and dispatch targets
	MediaTypePrefix string
	RawBucket       string
	OutputBucket    string

	// Job dispatch
	DispatchMode string // "log", "http"
	Job          JobConfig
}

// S3Config configures the raw bucket backend when StorageType is "s3".
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool
}

// JobConfig identifies the encode job on the compute control plane.
type JobConfig struct {
	Project string
	Region  string
	JobName string
	// Token is a static bearer token; when empty the metadata endpoint is
	// used instead.
	Token string
	// MetadataTokenURL overrides the workload metadata token endpoint.
	MetadataTokenURL string
	// Endpoint overrides the control-plane base URL (tests, emulators).
	Endpoint string
}

const defaultMetadataTokenURL = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/token"

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	if c.StorageType != "memory" && c.StorageType != "s3" {
		return errors.New("storage_type must be 'memory' or 's3'")
	}

	if c.RawBucket == "" {
		return errors.New("raw bucket is required")
	}
	if c.OutputBucket == "" {
		return errors.New("output bucket is required")
	}

	switch c.DispatchMode {
	case "log":
	case "http":
		if c.Job.Project == "" || c.Job.Region == "" || c.Job.JobName == "" {
			return errors.New("job project, region and name are required for http dispatch")
		}
	default:
		return errors.New("dispatch_mode must be 'log' or 'http'")
	}

	return nil
}

// BuildStatusStore creates a StatusStore based on the configuration.
func (c *ServerConfig) BuildStatusStore() (mediaingest.StatusStore, error) {
	switch c.DatabaseType {
	case "memory":
		return statusmemory.New(), nil
	case "postgres":
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		if schema != "" {
			cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
				_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
				return err
			}
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return statuspg.New(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// BuildBlobStore creates the raw-bucket BlobStore based on the configuration.
func (c *ServerConfig) BuildBlobStore() (mediaingest.BlobStore, error) {
	switch c.StorageType {
	case "memory":
		return storagememory.New(), nil
	case "s3":
		return storages3.New(storages3.Config{
			Region:          c.S3.Region,
			Bucket:          c.RawBucket,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			Endpoint:        c.S3.Endpoint,
			UsePathStyle:    c.S3.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

// BuildDispatcher creates the job Dispatcher based on the configuration. In
// "log" mode runs are recorded locally and no control plane is contacted.
func (c *ServerConfig) BuildDispatcher() (mediaingest.Dispatcher, error) {
	switch c.DispatchMode {
	case "log":
		return &dispatch.Recorder{}, nil
	case "http":
		var tokens dispatch.TokenSource
		if c.Job.Token != "" {
			tokens = dispatch.StaticTokenSource(c.Job.Token)
		} else {
			url := c.Job.MetadataTokenURL
			if url == "" {
				url = defaultMetadataTokenURL
			}
			tokens = dispatch.NewMetadataTokenSource(url)
		}
		var opts []dispatch.Option
		if c.Job.Endpoint != "" {
			opts = append(opts, dispatch.WithEndpoint(c.Job.Endpoint))
		}
		return dispatch.New(dispatch.JobRef{
			Project: c.Job.Project,
			Region:  c.Job.Region,
			JobName: c.Job.JobName,
		}, tokens, opts...)
	default:
		return nil, fmt.Errorf("unsupported dispatch mode: %s", c.DispatchMode)
	}
}

// PingPostgres verifies connectivity to Postgres and optionally sets
// search_path for the session.
func PingPostgres(databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
