package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/chi-demo/app"
	chimw "github.com/tendant/chi-demo/middleware"

	"github.com/tendant/media-ingest/pkg/mediaingest"
	"github.com/tendant/media-ingest/pkg/mediaingest/api"
	"github.com/tendant/media-ingest/pkg/mediaingest/config"
)

type Config struct {
	DatabaseURL     string        `env:"DATABASE_URL" env-default:"memory"`
	DBSchema        string        `env:"DB_SCHEMA" env-default:"mediaingest"`
	RawBucket       string        `env:"RAW_BUCKET" env-default:"media-raw"`
	ProcessedBucket string        `env:"PROCESSED_BUCKET" env-default:"media-processed"`
	MediaTypePrefix string        `env:"MEDIA_TYPE_PREFIX" env-default:"video/"`
	DispatchMode    string        `env:"DISPATCH_MODE" env-default:"log"`
	JobProject      string        `env:"JOB_PROJECT" env-default:"media-prod"`
	JobRegion       string        `env:"JOB_REGION" env-default:"us-central1"`
	JobName         string        `env:"JOB_NAME" env-default:"encode-video"`
	JobToken        string        `env:"JOB_TOKEN" env-default:""`
	ApiKeySHA256    string        `env:"API_KEY_SHA256" env-default:"1"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" env-default:"0"`
	SweepOlderThan  time.Duration `env:"SWEEP_OLDER_THAN" env-default:"30m"`
}

func main() {
	var envCfg Config
	if err := cleanenv.ReadEnv(&envCfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load(func(c *config.ServerConfig) error {
		c.DatabaseURL = envCfg.DatabaseURL
		if c.DatabaseURL == "memory" {
			c.DatabaseURL = ""
			c.DatabaseType = "memory"
		} else {
			c.DatabaseType = "postgres"
		}
		c.DBSchema = envCfg.DBSchema
		c.RawBucket = envCfg.RawBucket
		c.OutputBucket = envCfg.ProcessedBucket
		c.MediaTypePrefix = envCfg.MediaTypePrefix
		c.DispatchMode = envCfg.DispatchMode
		c.Job.Project = envCfg.JobProject
		c.Job.Region = envCfg.JobRegion
		c.Job.JobName = envCfg.JobName
		c.Job.Token = envCfg.JobToken
		return nil
	})
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	store, err := cfg.BuildStatusStore()
	if err != nil {
		slog.Error("Failed to build status store", "err", err)
		os.Exit(1)
	}

	dispatcher, err := cfg.BuildDispatcher()
	if err != nil {
		slog.Error("Failed to build dispatcher", "err", err)
		os.Exit(1)
	}

	eventsHandler := api.NewEventsHandler(store, dispatcher, api.EventsConfig{
		MediaTypePrefix: cfg.MediaTypePrefix,
		RawBucket:       cfg.RawBucket,
		OutputBucket:    cfg.OutputBucket,
	})
	assetsHandler := api.NewAssetsHandler(store)

	apiKeyMiddleware, err := chimw.ApiKeyMiddleware(chimw.ApiKeyConfig{
		APIKeys: map[string]string{
			"key1": envCfg.ApiKeySHA256,
		},
	})
	if err != nil {
		slog.Error("Failed to initialize API key middleware", "err", err)
		os.Exit(1)
	}

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	// The event endpoint authenticates via the delivery system's push
	// subscription, not the API key.
	server.R.Mount("/events", eventsHandler.Routes())
	server.R.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apiKeyMiddleware)
			r.Mount("/assets", assetsHandler.Routes())
		})
	})

	if envCfg.SweepInterval > 0 {
		go sweepStalled(context.Background(), store, envCfg.SweepInterval, envCfg.SweepOlderThan)
	}

	server.Run()
}

// sweepStalled periodically logs non-terminal records that have not been
// touched within olderThan. Records are flagged, not failed: a slow encode
// and a lost one look the same from here, so the call is left to an operator.
func sweepStalled(ctx context.Context, store mediaingest.StatusStore, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stalled, err := store.ListStalled(ctx, olderThan)
			if err != nil {
				slog.Error("Stalled sweep failed", "err", err)
				continue
			}
			for _, rec := range stalled {
				slog.Warn("Asset appears stalled",
					"owner_id", rec.OwnerID, "asset_id", rec.AssetID,
					"status", rec.Status, "updated_at", rec.UpdatedAt)
			}
		}
	}
}
