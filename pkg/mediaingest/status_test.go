package mediaingest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-ingest/pkg/mediaingest"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    mediaingest.ProcessingStatus
		to      mediaingest.ProcessingStatus
		allowed bool
	}{
		{"uploading to queued", mediaingest.StatusUploading, mediaingest.StatusQueued, true},
		{"queued to processing", mediaingest.StatusQueued, mediaingest.StatusProcessing, true},
		{"processing to ready", mediaingest.StatusProcessing, mediaingest.StatusReady, true},
		{"uploading to failed", mediaingest.StatusUploading, mediaingest.StatusFailed, true},
		{"queued to failed", mediaingest.StatusQueued, mediaingest.StatusFailed, true},
		{"processing to failed", mediaingest.StatusProcessing, mediaingest.StatusFailed, true},
		{"duplicate queued write", mediaingest.StatusQueued, mediaingest.StatusQueued, true},
		{"no skipping to ready", mediaingest.StatusQueued, mediaingest.StatusReady, false},
		{"no backward to uploading", mediaingest.StatusQueued, mediaingest.StatusUploading, false},
		{"ready is terminal", mediaingest.StatusReady, mediaingest.StatusFailed, false},
		{"failed is terminal", mediaingest.StatusFailed, mediaingest.StatusQueued, false},
		{"unknown status", mediaingest.ProcessingStatus("bogus"), mediaingest.StatusQueued, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, mediaingest.CanTransition(tt.from, tt.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, mediaingest.IsTerminal(mediaingest.StatusReady))
	assert.True(t, mediaingest.IsTerminal(mediaingest.StatusFailed))
	assert.False(t, mediaingest.IsTerminal(mediaingest.StatusUploading))
	assert.False(t, mediaingest.IsTerminal(mediaingest.StatusQueued))
	assert.False(t, mediaingest.IsTerminal(mediaingest.StatusProcessing))
}

func TestApplyStatusNeverRegresses(t *testing.T) {
	now := time.Now()
	rec := &mediaingest.AssetStatus{Status: mediaingest.StatusQueued}

	changed := rec.Apply(mediaingest.StatusPatch{
		Status: mediaingest.StatusPtr(mediaingest.StatusUploading),
	}, now)

	assert.False(t, changed)
	assert.Equal(t, mediaingest.StatusQueued, rec.Status)
}

func TestApplyDuplicateWriteIsNoop(t *testing.T) {
	now := time.Now()
	queuedAt := now.Add(-time.Minute)
	rec := &mediaingest.AssetStatus{
		Status:   mediaingest.StatusQueued,
		QueuedAt: &queuedAt,
	}

	changed := rec.Apply(mediaingest.StatusPatch{
		Status:   mediaingest.StatusPtr(mediaingest.StatusQueued),
		QueuedAt: mediaingest.TimePtr(now),
	}, now)

	assert.False(t, changed)
	require.NotNil(t, rec.QueuedAt)
	assert.Equal(t, queuedAt, *rec.QueuedAt, "queued_at is write-once")
}

func TestApplyTerminalStateIsFinal(t *testing.T) {
	now := time.Now()
	rec := &mediaingest.AssetStatus{Status: mediaingest.StatusReady}

	changed := rec.Apply(mediaingest.StatusPatch{
		Status: mediaingest.StatusPtr(mediaingest.StatusFailed),
	}, now)

	assert.False(t, changed)
	assert.Equal(t, mediaingest.StatusReady, rec.Status)
}

func TestApplyFailureWinsOverInFlight(t *testing.T) {
	now := time.Now()
	rec := &mediaingest.AssetStatus{Status: mediaingest.StatusUploading}

	changed := rec.Apply(mediaingest.StatusPatch{
		Status:          mediaingest.StatusPtr(mediaingest.StatusFailed),
		ProcessingError: mediaingest.StringPtr("network reset mid-transfer"),
	}, now)

	assert.True(t, changed)
	assert.Equal(t, mediaingest.StatusFailed, rec.Status)
	assert.Equal(t, "network reset mid-transfer", rec.ProcessingError)
}

func TestApplyErrorIgnoredWithoutFailedStatus(t *testing.T) {
	now := time.Now()
	rec := &mediaingest.AssetStatus{Status: mediaingest.StatusQueued}

	rec.Apply(mediaingest.StatusPatch{
		ProcessingError: mediaingest.StringPtr("spurious"),
	}, now)

	assert.Empty(t, rec.ProcessingError)
}

// Both QUEUED writers race on the same record; either order must leave both
// the uploader's raw URL and the normalizer's queued-at in place.
func TestApplyMergeSafetyEitherOrder(t *testing.T) {
	now := time.Now()
	clientPatch := mediaingest.StatusPatch{
		Status:     mediaingest.StatusPtr(mediaingest.StatusQueued),
		RawURL:     mediaingest.StringPtr("https://storage.example.com/raw/u1/a1/clip.mp4"),
		UploadedAt: mediaingest.TimePtr(now),
	}
	normalizerPatch := mediaingest.StatusPatch{
		Status:   mediaingest.StatusPtr(mediaingest.StatusQueued),
		QueuedAt: mediaingest.TimePtr(now),
	}

	orders := map[string][]mediaingest.StatusPatch{
		"client first":     {clientPatch, normalizerPatch},
		"normalizer first": {normalizerPatch, clientPatch},
	}

	for name, patches := range orders {
		t.Run(name, func(t *testing.T) {
			rec := &mediaingest.AssetStatus{Status: mediaingest.StatusUploading}
			for _, p := range patches {
				rec.Apply(p, now)
			}

			assert.Equal(t, mediaingest.StatusQueued, rec.Status)
			assert.Equal(t, "https://storage.example.com/raw/u1/a1/clip.mp4", rec.RawURL)
			require.NotNil(t, rec.QueuedAt)
			require.NotNil(t, rec.UploadedAt)
		})
	}
}

func TestApplyEmptyPatch(t *testing.T) {
	rec := &mediaingest.AssetStatus{Status: mediaingest.StatusQueued}
	assert.False(t, rec.Apply(mediaingest.StatusPatch{}, time.Now()))
	assert.True(t, mediaingest.StatusPatch{}.IsZero())
}
