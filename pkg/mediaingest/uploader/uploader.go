// Package uploader turns a user-selected file into a durable raw object plus
// an initialized status record, surfacing progress along the way. The status
// record is created before the first byte moves so the event normalizer can
// fire ahead of the client's own completion callback without losing a write.
package uploader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tendant/media-ingest/pkg/mediaingest"
	"github.com/tendant/media-ingest/pkg/mediaingest/rawpath"
)

// DefaultChunkSize is the transfer part size. Pause, resume and cancel take
// effect at part boundaries.
const DefaultChunkSize = 8 << 20 // 8 MiB

// File is the local file being uploaded.
type File interface {
	io.Reader
	io.Seeker
}

// UploadRequest describes one upload.
type UploadRequest struct {
	OwnerID     string
	FileName    string
	SizeBytes   int64
	ContentType string
	Metadata    mediaingest.AssetMetadata

	// OnProgress, when set, is called after every transferred part. No
	// status-record write happens per progress tick; record writes happen
	// only at phase boundaries.
	OnProgress func(Progress)
}

// Progress is a point-in-time transfer measurement.
type Progress struct {
	BytesSent  int64
	TotalBytes int64
}

// Percent returns the transfer percentage in [0,100].
func (p Progress) Percent() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	return float64(p.BytesSent) / float64(p.TotalBytes) * 100
}

// Uploader orchestrates uploads against a status store and a raw-bucket
// blob store.
type Uploader struct {
	store     mediaingest.StatusStore
	blobs     mediaingest.BlobStore
	limits    Limits
	chunkSize int64
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithLimits overrides the selection limits.
func WithLimits(limits Limits) Option {
	return func(u *Uploader) { u.limits = limits }
}

// WithChunkSize overrides the transfer part size.
func WithChunkSize(size int64) Option {
	return func(u *Uploader) { u.chunkSize = size }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) { u.logger = logger }
}

// New creates an Uploader.
func New(store mediaingest.StatusStore, blobs mediaingest.BlobStore, opts ...Option) (*Uploader, error) {
	if store == nil {
		return nil, fmt.Errorf("status store is required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	u := &Uploader{
		store:     store,
		blobs:     blobs,
		limits:    DefaultLimits(),
		chunkSize: DefaultChunkSize,
		logger:    slog.Default(),
		now:       time.Now,
		newID:     mediaingest.NewAssetID,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// BeginUpload creates the status record and starts the transfer. The record
// write happens first; only then do bytes move. The returned Transfer handle
// reports progress and supports pause, resume and cancel.
func (u *Uploader) BeginUpload(ctx context.Context, file File, req UploadRequest) (*Transfer, error) {
	if err := u.limits.validate(req.FileName, req.ContentType, req.SizeBytes); err != nil {
		return nil, err
	}

	assetID := u.newID()
	ref := rawpath.Ref{OwnerID: req.OwnerID, AssetID: assetID, FileName: req.FileName}
	rawPath := ref.Key()

	rec := &mediaingest.AssetStatus{
		AssetID:       assetID,
		OwnerID:       req.OwnerID,
		FileName:      req.FileName,
		FileSizeBytes: req.SizeBytes,
		ContentType:   req.ContentType,
		RawObjectPath: rawPath,
		Status:        mediaingest.StatusUploading,
		Metadata:      req.Metadata,
	}
	if err := u.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	transferCtx, cancel := context.WithCancel(ctx)
	t := &Transfer{
		OwnerID:       req.OwnerID,
		AssetID:       assetID,
		RawObjectPath: rawPath,
		total:         req.SizeBytes,
		cancel:        cancel,
		done:          make(chan struct{}),
	}

	go u.run(transferCtx, t, file, req)
	return t, nil
}

func (u *Uploader) run(ctx context.Context, t *Transfer, file File, req UploadRequest) {
	defer close(t.done)
	defer t.cancel()

	err := u.transfer(ctx, t, file, req)
	switch {
	case err == nil:
		u.completeUpload(t)
	case ctx.Err() != nil:
		// Canceled before completion: the record stays at uploading so a
		// stale-record sweep can eventually clean it up.
		t.setErr(mediaingest.ErrUploadCanceled)
		u.logger.Info("upload canceled",
			"owner_id", t.OwnerID, "asset_id", t.AssetID, "bytes_sent", t.BytesSent())
	default:
		t.setErr(err)
		u.failUpload(t, err)
	}
}

func (u *Uploader) transfer(ctx context.Context, t *Transfer, file File, req UploadRequest) error {
	session, err := u.blobs.NewUploadSession(ctx, t.RawObjectPath, req.ContentType, req.SizeBytes)
	if err != nil {
		return err
	}

	remaining := req.SizeBytes
	for remaining > 0 {
		if err := t.waitIfPaused(ctx); err != nil {
			u.abortSession(session)
			return err
		}

		partSize := u.chunkSize
		if remaining < partSize {
			partSize = remaining
		}
		if err := session.UploadPart(ctx, io.LimitReader(file, partSize), partSize); err != nil {
			u.abortSession(session)
			return err
		}
		remaining -= partSize
		t.addProgress(partSize)
		if req.OnProgress != nil {
			req.OnProgress(Progress{BytesSent: t.BytesSent(), TotalBytes: req.SizeBytes})
		}
	}

	if err := ctx.Err(); err != nil {
		u.abortSession(session)
		return err
	}
	if err := session.Complete(ctx); err != nil {
		return err
	}
	return nil
}

// abortSession discards uploaded parts with a fresh context; the transfer's
// own context may already be canceled.
func (u *Uploader) abortSession(session mediaingest.UploadSession) {
	abortCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := session.Abort(abortCtx); err != nil {
		u.logger.Error("failed to abort upload session", "err", err)
	}
}

// completeUpload merge-writes the terminal upload outcome. The status is set
// to queued optimistically; the event normalizer also sets it, and the merge
// makes either order safe.
func (u *Uploader) completeUpload(t *Transfer) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rawURL, err := u.blobs.URL(ctx, t.RawObjectPath)
	if err != nil {
		u.logger.Error("failed to resolve raw url",
			"owner_id", t.OwnerID, "asset_id", t.AssetID, "err", err)
	}

	patch := mediaingest.StatusPatch{
		Status:     mediaingest.StatusPtr(mediaingest.StatusQueued),
		UploadedAt: mediaingest.TimePtr(u.now()),
	}
	if rawURL != "" {
		patch.RawURL = mediaingest.StringPtr(rawURL)
	}
	if _, err := u.store.Apply(ctx, t.OwnerID, t.AssetID, patch); err != nil {
		u.logger.Error("failed to record upload completion",
			"owner_id", t.OwnerID, "asset_id", t.AssetID, "err", err)
		t.setErr(err)
		return
	}
	u.logger.Info("upload complete",
		"owner_id", t.OwnerID, "asset_id", t.AssetID, "raw_object_path", t.RawObjectPath)
}

// failUpload records a terminal transfer failure. There is no automatic
// retry; the user re-selects the file and a new asset id is generated.
func (u *Uploader) failUpload(t *Transfer, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	patch := mediaingest.StatusPatch{
		Status:          mediaingest.StatusPtr(mediaingest.StatusFailed),
		ProcessingError: mediaingest.StringPtr(cause.Error()),
	}
	if _, err := u.store.Apply(ctx, t.OwnerID, t.AssetID, patch); err != nil {
		u.logger.Error("failed to record upload failure",
			"owner_id", t.OwnerID, "asset_id", t.AssetID, "err", err)
	}
	u.logger.Error("upload failed",
		"owner_id", t.OwnerID, "asset_id", t.AssetID, "err", cause)
}
