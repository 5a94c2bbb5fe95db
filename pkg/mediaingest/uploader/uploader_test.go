package uploader_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-ingest/pkg/mediaingest"
	statusmemory "github.com/tendant/media-ingest/pkg/mediaingest/statusstore/memory"
	storagememory "github.com/tendant/media-ingest/pkg/mediaingest/storage/memory"
	"github.com/tendant/media-ingest/pkg/mediaingest/uploader"
)

func setupUploader(t *testing.T, opts ...uploader.Option) (*uploader.Uploader, *statusmemory.Store, *storagememory.Backend) {
	t.Helper()
	store := statusmemory.New()
	blobs := storagememory.New()
	opts = append([]uploader.Option{uploader.WithChunkSize(4)}, opts...)
	u, err := uploader.New(store, blobs, opts...)
	require.NoError(t, err)
	return u, store, blobs
}

// mp4WithDuration builds a minimal MP4 whose movie header reports the given
// duration.
func mp4WithDuration(seconds uint32) []byte {
	mvhd := make([]byte, 100)
	binary.BigEndian.PutUint32(mvhd[12:16], 1000)         // timescale
	binary.BigEndian.PutUint32(mvhd[16:20], seconds*1000) // duration

	box := func(boxType string, payload []byte) []byte {
		out := make([]byte, 8+len(payload))
		binary.BigEndian.PutUint32(out[0:4], uint32(8+len(payload)))
		copy(out[4:8], boxType)
		copy(out[8:], payload)
		return out
	}

	var buf bytes.Buffer
	buf.Write(box("ftyp", []byte("isom\x00\x00\x02\x00isomiso2")))
	buf.Write(box("moov", box("mvhd", mvhd)))
	return buf.Bytes()
}

func TestSelectFileAcceptsValidVideo(t *testing.T) {
	u, _, _ := setupUploader(t)
	file := mp4WithDuration(90)

	meta, err := u.SelectFile(bytes.NewReader(file), "clip.mp4", "video/mp4", 50<<20)
	require.NoError(t, err)
	assert.InDelta(t, 90.0, meta.DurationSeconds, 0.001)
	assert.Greater(t, meta.BitrateKbps, int64(0))
}

func TestSelectFileRejections(t *testing.T) {
	u, _, _ := setupUploader(t)

	tests := []struct {
		name        string
		fileName    string
		contentType string
		size        int64
		file        []byte
		wantErr     error
	}{
		{"image content type", "pic.png", "image/png", 1 << 20, nil, uploader.ErrUnsupportedType},
		{"oversized file", "big.mp4", "video/mp4", 1001 << 20, nil, uploader.ErrFileTooLarge},
		{"empty file", "empty.mp4", "video/mp4", 0, nil, uploader.ErrEmptyFile},
		{"missing name", "", "video/mp4", 1 << 20, nil, uploader.ErrMissingFileName},
		{"too long", "long.mp4", "video/mp4", 1 << 20, mp4WithDuration(150), uploader.ErrDurationTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.SelectFile(bytes.NewReader(tt.file), tt.fileName, tt.contentType, tt.size)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// A rejected selection must leave no trace in the status store.
func TestSelectFileRejectionWritesNothing(t *testing.T) {
	u, store, _ := setupUploader(t)

	_, err := u.SelectFile(bytes.NewReader(mp4WithDuration(150)), "long.mp4", "video/mp4", 1<<20)
	require.ErrorIs(t, err, uploader.ErrDurationTooLong)

	recs, err := store.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSelectFileUnprobeableAccepted(t *testing.T) {
	u, _, _ := setupUploader(t)

	meta, err := u.SelectFile(strings.NewReader("not a real container"), "clip.mp4", "video/mp4", 1<<20)
	require.NoError(t, err)
	assert.Zero(t, meta.DurationSeconds)
}

func TestBeginUploadHappyPath(t *testing.T) {
	u, store, blobs := setupUploader(t)
	ctx := context.Background()
	content := []byte("twelve bytes")

	var ticks atomic.Int64
	transfer, err := u.BeginUpload(ctx, bytes.NewReader(content), uploader.UploadRequest{
		OwnerID:     "u1",
		FileName:    "clip.mp4",
		SizeBytes:   int64(len(content)),
		ContentType: "video/mp4",
		Metadata:    mediaingest.AssetMetadata{DurationSeconds: 90},
		OnProgress:  func(p uploader.Progress) { ticks.Add(1) },
	})
	require.NoError(t, err)

	// The record exists before the transfer finishes.
	rec, err := store.Get(ctx, "u1", transfer.AssetID)
	require.NoError(t, err)
	assert.Equal(t, "clip.mp4", rec.FileName)
	assert.InDelta(t, 90.0, rec.Metadata.DurationSeconds, 0.001)

	require.NoError(t, transfer.Wait())

	rec, err = store.Get(ctx, "u1", transfer.AssetID)
	require.NoError(t, err)
	assert.Equal(t, mediaingest.StatusQueued, rec.Status)
	assert.Equal(t, "memory://"+transfer.RawObjectPath, rec.RawURL)
	assert.NotNil(t, rec.UploadedAt)
	assert.Nil(t, rec.QueuedAt, "queued_at belongs to the event normalizer")

	data, ok := blobs.Get(transfer.RawObjectPath)
	require.True(t, ok)
	assert.Equal(t, content, data)

	// 12 bytes in 4-byte parts.
	assert.Equal(t, int64(3), ticks.Load())
	assert.Equal(t, float64(100), transfer.Progress().Percent())
}

func TestBeginUploadRejectsInvalidRequest(t *testing.T) {
	u, store, _ := setupUploader(t)

	_, err := u.BeginUpload(context.Background(), strings.NewReader("x"), uploader.UploadRequest{
		OwnerID:     "u1",
		FileName:    "pic.png",
		SizeBytes:   1,
		ContentType: "image/png",
	})
	require.ErrorIs(t, err, uploader.ErrUnsupportedType)

	recs, err := store.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

// failingBlobs wraps the memory backend and fails part uploads after a
// threshold, simulating a network failure mid-transfer.
type failingBlobs struct {
	*storagememory.Backend
	failAfterParts int
}

func (f *failingBlobs) NewUploadSession(ctx context.Context, key, contentType string, totalSize int64) (mediaingest.UploadSession, error) {
	inner, err := f.Backend.NewUploadSession(ctx, key, contentType, totalSize)
	if err != nil {
		return nil, err
	}
	return &failingSession{UploadSession: inner, failAfter: f.failAfterParts}, nil
}

type failingSession struct {
	mediaingest.UploadSession
	parts     int
	failAfter int
}

func (s *failingSession) UploadPart(ctx context.Context, reader io.Reader, size int64) error {
	s.parts++
	if s.parts > s.failAfter {
		return errors.New("connection reset by peer")
	}
	return s.UploadSession.UploadPart(ctx, reader, size)
}

func TestBeginUploadTransferFailure(t *testing.T) {
	store := statusmemory.New()
	blobs := &failingBlobs{Backend: storagememory.New(), failAfterParts: 1}
	u, err := uploader.New(store, blobs, uploader.WithChunkSize(4))
	require.NoError(t, err)

	content := []byte("twelve bytes")
	transfer, err := u.BeginUpload(context.Background(), bytes.NewReader(content), uploader.UploadRequest{
		OwnerID:     "u1",
		FileName:    "clip.mp4",
		SizeBytes:   int64(len(content)),
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	err = transfer.Wait()
	require.Error(t, err)

	rec, err := store.Get(context.Background(), "u1", transfer.AssetID)
	require.NoError(t, err)
	assert.Equal(t, mediaingest.StatusFailed, rec.Status)
	assert.Contains(t, rec.ProcessingError, "connection reset")

	// The aborted object never becomes visible.
	_, ok := blobs.Get(transfer.RawObjectPath)
	assert.False(t, ok)
}

func TestTransferPauseResume(t *testing.T) {
	u, store, _ := setupUploader(t)
	content := []byte("twelve bytes")

	paused := make(chan struct{})
	handoff := make(chan *uploader.Transfer, 1)
	transfer, err := u.BeginUpload(context.Background(), bytes.NewReader(content), uploader.UploadRequest{
		OwnerID:     "u1",
		FileName:    "clip.mp4",
		SizeBytes:   int64(len(content)),
		ContentType: "video/mp4",
		OnProgress: func(p uploader.Progress) {
			if p.BytesSent == 4 {
				(<-handoff).Pause()
				close(paused)
			}
		},
	})
	require.NoError(t, err)
	handoff <- transfer

	<-paused
	// Paused: the transfer must not finish on its own.
	select {
	case <-transfer.Done():
		t.Fatal("transfer finished while paused")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int64(4), transfer.BytesSent())

	transfer.Resume()
	require.NoError(t, transfer.Wait())

	rec, err := store.Get(context.Background(), "u1", transfer.AssetID)
	require.NoError(t, err)
	assert.Equal(t, mediaingest.StatusQueued, rec.Status)
}

func TestTransferCancelLeavesUploading(t *testing.T) {
	u, store, _ := setupUploader(t)
	content := []byte("twelve bytes")

	canceled := make(chan struct{})
	handoff := make(chan *uploader.Transfer, 1)
	transfer, err := u.BeginUpload(context.Background(), bytes.NewReader(content), uploader.UploadRequest{
		OwnerID:     "u1",
		FileName:    "clip.mp4",
		SizeBytes:   int64(len(content)),
		ContentType: "video/mp4",
		OnProgress: func(p uploader.Progress) {
			if p.BytesSent == 4 {
				(<-handoff).Cancel()
				close(canceled)
			}
		},
	})
	require.NoError(t, err)
	handoff <- transfer

	<-canceled
	err = transfer.Wait()
	assert.ErrorIs(t, err, mediaingest.ErrUploadCanceled)

	rec, err := store.Get(context.Background(), "u1", transfer.AssetID)
	require.NoError(t, err)
	assert.Equal(t, mediaingest.StatusUploading, rec.Status)
}

func TestWatchProcessingTerminal(t *testing.T) {
	u, store, _ := setupUploader(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &mediaingest.AssetStatus{OwnerID: "u1", AssetID: "a1"}))
	updates, err := u.WatchProcessing(ctx, "u1", "a1")
	require.NoError(t, err)

	first := <-updates
	assert.Equal(t, "uploading", first.Message)

	_, err = store.Apply(ctx, "u1", "a1", mediaingest.StatusPatch{
		Status: mediaingest.StatusPtr(mediaingest.StatusQueued),
	})
	require.NoError(t, err)
	assert.Equal(t, "queued", (<-updates).Message)

	_, err = store.Apply(ctx, "u1", "a1", mediaingest.StatusPatch{
		Status: mediaingest.StatusPtr(mediaingest.StatusProcessing),
	})
	require.NoError(t, err)
	assert.Equal(t, "processing", (<-updates).Message)

	_, err = store.Apply(ctx, "u1", "a1", mediaingest.StatusPatch{
		Status:       mediaingest.StatusPtr(mediaingest.StatusReady),
		ProcessedURL: mediaingest.StringPtr("https://cdn.example.com/p/u1/a1/clip.m3u8"),
	})
	require.NoError(t, err)

	terminal := <-updates
	assert.True(t, terminal.Terminal)
	assert.Equal(t, "ready", terminal.Message)
	assert.Equal(t, "https://cdn.example.com/p/u1/a1/clip.m3u8", terminal.ProcessedURL)

	// Channel closes after the terminal update.
	_, open := <-updates
	assert.False(t, open)
}

func TestWatchProcessingContextCancel(t *testing.T) {
	u, store, _ := setupUploader(t)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, store.Create(context.Background(), &mediaingest.AssetStatus{OwnerID: "u1", AssetID: "a1"}))
	updates, err := u.WatchProcessing(ctx, "u1", "a1")
	require.NoError(t, err)

	<-updates
	cancel()

	select {
	case _, open := <-updates:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("watch not released after context cancellation")
	}
}
