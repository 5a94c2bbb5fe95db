package mediaingest

import (
	"context"
	"io"
	"time"
)

// StatusStore is the status document store: one record per asset, keyed by
// (ownerID, assetID), merge-updated so concurrent writers cannot clobber
// fields they do not own.
type StatusStore interface {
	// Create writes the initial record. The record must not already exist.
	Create(ctx context.Context, rec *AssetStatus) error

	// Get returns the record for the key.
	Get(ctx context.Context, ownerID, assetID string) (*AssetStatus, error)

	// Apply merge-writes a patch into the record and returns the merged
	// result. The write is an upsert: a missing record is created from the
	// patch so a writer racing ahead of record creation is not lost.
	Apply(ctx context.Context, ownerID, assetID string, patch StatusPatch) (*AssetStatus, error)

	// List returns all records for an owner, newest first.
	List(ctx context.Context, ownerID string) ([]*AssetStatus, error)

	// Watch opens a live subscription to the record. The subscription
	// delivers the current record first, then every merged update, until
	// closed or the context is canceled.
	Watch(ctx context.Context, ownerID, assetID string) (Subscription, error)

	// ListStalled returns non-terminal records not updated for at least
	// olderThan, newest first.
	ListStalled(ctx context.Context, olderThan time.Duration) ([]*AssetStatus, error)
}

// Subscription is a live listener on a single status record. Close is
// idempotent and releases the listener deterministically; it must be called
// on teardown to bound the number of open listeners per client.
type Subscription interface {
	// Updates delivers record snapshots. The channel is closed when the
	// subscription ends.
	Updates() <-chan AssetStatus

	// Close releases the subscription.
	Close()
}

// BlobStore is the raw-bucket storage backend used by the uploader.
type BlobStore interface {
	// Upload writes the object in one shot.
	Upload(ctx context.Context, key, contentType string, reader io.Reader) error

	// NewUploadSession starts a resumable upload. Bytes are sent part by
	// part; nothing is visible in the bucket until Complete.
	NewUploadSession(ctx context.Context, key, contentType string, totalSize int64) (UploadSession, error)

	// URL returns an access URL for the object (the record's raw URL).
	URL(ctx context.Context, key string) (string, error)
}

// UploadSession is one resumable transfer. The caller drives it part by
// part, which is what makes the transfer pausable and cancelable between
// parts.
type UploadSession interface {
	// UploadPart sends the next part. Parts are sequential; size is the
	// exact length of reader.
	UploadPart(ctx context.Context, reader io.Reader, size int64) error

	// Complete finalizes the object from the uploaded parts.
	Complete(ctx context.Context) error

	// Abort discards the uploaded parts.
	Abort(ctx context.Context) error

	// BytesSent returns the number of bytes uploaded so far.
	BytesSent() int64
}

// Dispatcher issues the asynchronous "run job now" request against the
// external batch-compute control plane. Run returns the control plane's
// accepted operation id; it does not wait for job completion.
type Dispatcher interface {
	Run(ctx context.Context, in RunInput) (string, error)
}

// RunInput carries the parameters passed to the encode job as environment
// overrides.
type RunInput struct {
	RawBucket    string
	RawObject    string
	OutputBucket string
}
