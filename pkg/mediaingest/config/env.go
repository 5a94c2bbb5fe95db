package config

import (
	"fmt"
	"os"
	"strings"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Environment variable mapping:
//
// Server:
//
//	PORT - Server port (default: "8080")
//	ENVIRONMENT - Runtime environment (default: "development")
//
// Database:
//
//	DATABASE_URL - "memory" (default) or a postgresql:// connection string
//
// Storage:
//
//	STORAGE_TYPE - "memory" (default) or "s3"
//	S3_REGION, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY, S3_ENDPOINT,
//	S3_USE_PATH_STYLE
//
// Pipeline:
//
//	RAW_BUCKET, PROCESSED_BUCKET, MEDIA_TYPE_PREFIX
//
// Dispatch:
//
//	DISPATCH_MODE - "log" (default) or "http"
//	JOB_PROJECT, JOB_REGION, JOB_NAME, JOB_TOKEN, JOB_ENDPOINT
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}

		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}

		if v, ok := lookupEnv(prefix, "STORAGE_TYPE"); ok && v != "" {
			c.StorageType = v
		}
		if v, ok := lookupEnv(prefix, "S3_REGION"); ok {
			c.S3.Region = v
		}
		if v, ok := lookupEnv(prefix, "S3_ACCESS_KEY_ID"); ok {
			c.S3.AccessKeyID = v
		}
		if v, ok := lookupEnv(prefix, "S3_SECRET_ACCESS_KEY"); ok {
			c.S3.SecretAccessKey = v
		}
		if v, ok := lookupEnv(prefix, "S3_ENDPOINT"); ok {
			c.S3.Endpoint = v
		}
		if v, ok := lookupEnv(prefix, "S3_USE_PATH_STYLE"); ok {
			c.S3.UsePathStyle = v == "true" || v == "1"
		}

		if v, ok := lookupEnv(prefix, "RAW_BUCKET"); ok && v != "" {
			c.RawBucket = v
		}
		if v, ok := lookupEnv(prefix, "PROCESSED_BUCKET"); ok && v != "" {
			c.OutputBucket = v
		}
		if v, ok := lookupEnv(prefix, "MEDIA_TYPE_PREFIX"); ok && v != "" {
			c.MediaTypePrefix = v
		}

		if v, ok := lookupEnv(prefix, "DISPATCH_MODE"); ok && v != "" {
			c.DispatchMode = v
		}
		if v, ok := lookupEnv(prefix, "JOB_PROJECT"); ok && v != "" {
			c.Job.Project = v
		}
		if v, ok := lookupEnv(prefix, "JOB_REGION"); ok && v != "" {
			c.Job.Region = v
		}
		if v, ok := lookupEnv(prefix, "JOB_NAME"); ok && v != "" {
			c.Job.JobName = v
		}
		if v, ok := lookupEnv(prefix, "JOB_TOKEN"); ok && v != "" {
			c.Job.Token = v
		}
		if v, ok := lookupEnv(prefix, "JOB_ENDPOINT"); ok && v != "" {
			c.Job.Endpoint = v
		}

		return nil
	}
}

func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")

	if !hasURL || dbURL == "" || dbURL == "memory" {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		return nil
	}

	if strings.HasPrefix(dbURL, "postgresql://") || strings.HasPrefix(dbURL, "postgres://") {
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
		return nil
	}
	return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
}

func lookupEnv(prefix, key string) (string, bool) {
	if prefix != "" {
		if v, ok := os.LookupEnv(prefix + key); ok {
			return v, true
		}
	}
	return os.LookupEnv(key)
}
