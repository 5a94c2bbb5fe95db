package memory_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-ingest/pkg/mediaingest/storage/memory"
)

func TestUploadAndGet(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()

	err := backend.Upload(ctx, "raw/u1/a1/clip.mp4", "video/mp4", strings.NewReader("video bytes"))
	require.NoError(t, err)

	data, ok := backend.Get("raw/u1/a1/clip.mp4")
	require.True(t, ok)
	assert.Equal(t, []byte("video bytes"), data)

	ct, ok := backend.ContentType("raw/u1/a1/clip.mp4")
	require.True(t, ok)
	assert.Equal(t, "video/mp4", ct)
}

func TestURL(t *testing.T) {
	backend := memory.New()
	url, err := backend.URL(context.Background(), "raw/u1/a1/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, "memory://raw/u1/a1/clip.mp4", url)
}

func TestUploadSessionPartByPart(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()

	session, err := backend.NewUploadSession(ctx, "raw/u1/a1/clip.mp4", "video/mp4", 10)
	require.NoError(t, err)

	require.NoError(t, session.UploadPart(ctx, bytes.NewReader([]byte("hello ")), 6))
	assert.Equal(t, int64(6), session.BytesSent())

	// Not visible before Complete.
	_, ok := backend.Get("raw/u1/a1/clip.mp4")
	assert.False(t, ok)

	require.NoError(t, session.UploadPart(ctx, bytes.NewReader([]byte("world")), 5))
	require.NoError(t, session.Complete(ctx))

	data, ok := backend.Get("raw/u1/a1/clip.mp4")
	require.True(t, ok)
	assert.Equal(t, []byte("hello world"), data)
}

func TestUploadSessionAbort(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()

	session, err := backend.NewUploadSession(ctx, "raw/u1/a1/clip.mp4", "video/mp4", 5)
	require.NoError(t, err)
	require.NoError(t, session.UploadPart(ctx, bytes.NewReader([]byte("bytes")), 5))
	require.NoError(t, session.Abort(ctx))

	_, ok := backend.Get("raw/u1/a1/clip.mp4")
	assert.False(t, ok)

	err = session.UploadPart(ctx, bytes.NewReader([]byte("more")), 4)
	assert.Error(t, err)
}

func TestUploadSessionShortRead(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()

	session, err := backend.NewUploadSession(ctx, "raw/u1/a1/clip.mp4", "video/mp4", 100)
	require.NoError(t, err)

	err = session.UploadPart(ctx, bytes.NewReader([]byte("short")), 100)
	assert.Error(t, err)
}
