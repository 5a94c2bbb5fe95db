// Command upload pushes one local video into the raw bucket and optionally
// follows its processing status until it reaches a terminal state.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tendant/media-ingest/pkg/mediaingest/config"
	storages3 "github.com/tendant/media-ingest/pkg/mediaingest/storage/s3"
	"github.com/tendant/media-ingest/pkg/mediaingest/uploader"
)

func main() {
	filePath := flag.String("file", "", "path of the video file to upload")
	ownerID := flag.String("owner", "", "owner id the asset belongs to")
	contentType := flag.String("content-type", "", "content type override (default: derived from the file extension)")
	watch := flag.Bool("watch", false, "follow processing status until terminal")
	flag.Parse()

	if *filePath == "" || *ownerID == "" {
		fmt.Fprintln(os.Stderr, "usage: upload -file clip.mp4 -owner u1 [-content-type video/mp4] [-watch]")
		os.Exit(2)
	}

	cfg, err := config.Load(config.WithEnv(""))
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	store, err := cfg.BuildStatusStore()
	if err != nil {
		slog.Error("Failed to build status store", "err", err)
		os.Exit(1)
	}
	blobs, err := cfg.BuildBlobStore()
	if err != nil {
		slog.Error("Failed to build blob store", "err", err)
		os.Exit(1)
	}

	u, err := uploader.New(store, blobs)
	if err != nil {
		slog.Error("Failed to build uploader", "err", err)
		os.Exit(1)
	}

	if err := run(u, *filePath, *ownerID, *contentType, *watch); err != nil {
		if storages3.IsNoSuchBucket(err) {
			slog.Error("Raw bucket does not exist; check RAW_BUCKET", "bucket", cfg.RawBucket)
		} else {
			slog.Error("Upload failed", "err", err)
		}
		os.Exit(1)
	}
}

func run(u *uploader.Uploader, filePath, ownerID, contentType string, watch bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	fileName := filepath.Base(filePath)
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(fileName))
	}

	meta, err := u.SelectFile(f, fileName, contentType, info.Size())
	if err != nil {
		return err
	}
	if meta.DurationSeconds > 0 {
		fmt.Printf("%s: %.1fs %dx%d\n", fileName, meta.DurationSeconds, meta.Width, meta.Height)
	}

	transfer, err := u.BeginUpload(ctx, f, uploader.UploadRequest{
		OwnerID:     ownerID,
		FileName:    fileName,
		SizeBytes:   info.Size(),
		ContentType: contentType,
		Metadata:    meta,
		OnProgress: func(p uploader.Progress) {
			fmt.Printf("\ruploading %3.0f%% (%d/%d bytes)", p.Percent(), p.BytesSent, p.TotalBytes)
		},
	})
	if err != nil {
		return err
	}

	if err := transfer.Wait(); err != nil {
		fmt.Println()
		return err
	}
	fmt.Printf("\nuploaded %s as asset %s\n", fileName, transfer.AssetID)

	if !watch {
		return nil
	}

	updates, err := u.WatchProcessing(ctx, ownerID, transfer.AssetID)
	if err != nil {
		return err
	}
	for update := range updates {
		line := update.Message
		if update.Error != "" {
			line = fmt.Sprintf("%s: %s", line, update.Error)
		}
		fmt.Println(line)
		if update.Terminal && update.ProcessedURL != "" {
			fmt.Println(update.ProcessedURL)
		}
	}
	return ctx.Err()
}
