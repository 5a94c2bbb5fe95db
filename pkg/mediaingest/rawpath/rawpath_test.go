package rawpath_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-ingest/pkg/mediaingest/rawpath"
)

func TestResolveRoundTrip(t *testing.T) {
	keys := []string{
		"raw/u1/a1/clip.mp4",
		"raw/user-42/1717243200123-ab12cd34ef56/holiday video.mov",
		"raw/o/a/f",
	}

	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			ref, ok := rawpath.Resolve(key)
			require.True(t, ok)
			assert.Equal(t, key, ref.Key())
		})
	}
}

func TestResolveSegments(t *testing.T) {
	ref, ok := rawpath.Resolve("raw/u1/a1/clip.mp4")
	require.True(t, ok)
	assert.Equal(t, "u1", ref.OwnerID)
	assert.Equal(t, "a1", ref.AssetID)
	assert.Equal(t, "clip.mp4", ref.FileName)
}

func TestResolveMalformed(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"missing segments", "raw/u1/a1"},
		{"wrong first segment", "processed/u1/a1/clip.mp4"},
		{"bare prefix", "raw/"},
		{"empty owner", "raw//a1/clip.mp4"},
		{"empty asset", "raw/u1//clip.mp4"},
		{"empty file name", "raw/u1/a1/"},
		{"no slashes", "clip.mp4"},
		{"uppercase prefix", "RAW/u1/a1/clip.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := rawpath.Resolve(tt.key)
			assert.False(t, ok)
		})
	}
}

func TestResolveExtraSegmentsKeepFirstFileName(t *testing.T) {
	ref, ok := rawpath.Resolve("raw/u1/a1/dir/clip.mp4")
	require.True(t, ok)
	assert.Equal(t, "dir", ref.FileName)
}
