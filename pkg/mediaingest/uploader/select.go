package uploader

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tendant/media-ingest/pkg/mediaingest"
	"github.com/tendant/media-ingest/pkg/mediaingest/probe"
)

// Selection validation errors. These are local, user-correctable rejections;
// nothing is written anywhere when selection fails.
var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrDurationTooLong = errors.New("video too long")
	ErrEmptyFile       = errors.New("empty file")
	ErrMissingFileName = errors.New("file name is required")
)

// Limits bound what SelectFile accepts.
type Limits struct {
	// MediaTypePrefix is the required content-type prefix, e.g. "video/".
	MediaTypePrefix string
	// MaxSizeBytes is the maximum file size.
	MaxSizeBytes int64
	// MaxDurationSeconds is the maximum video duration.
	MaxDurationSeconds float64
}

// DefaultLimits returns the platform defaults: videos up to 1000 MB and two
// minutes.
func DefaultLimits() Limits {
	return Limits{
		MediaTypePrefix:    "video/",
		MaxSizeBytes:       1000 << 20,
		MaxDurationSeconds: 120,
	}
}

func (l Limits) validate(fileName, contentType string, sizeBytes int64) error {
	if fileName == "" {
		return ErrMissingFileName
	}
	if !strings.HasPrefix(contentType, l.MediaTypePrefix) {
		return fmt.Errorf("%w: %s (want prefix %s)", ErrUnsupportedType, contentType, l.MediaTypePrefix)
	}
	if sizeBytes <= 0 {
		return ErrEmptyFile
	}
	if sizeBytes > l.MaxSizeBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, sizeBytes, l.MaxSizeBytes)
	}
	return nil
}

// SelectFile validates a candidate file and returns the metadata the upload
// will carry. The duration check decodes container headers only; a file the
// probe cannot read is accepted with zero duration rather than rejected,
// since the probe is a best-effort heuristic. Rejection writes nothing.
func (u *Uploader) SelectFile(file File, fileName, contentType string, sizeBytes int64) (mediaingest.AssetMetadata, error) {
	if err := u.limits.validate(fileName, contentType, sizeBytes); err != nil {
		return mediaingest.AssetMetadata{}, err
	}

	meta := mediaingest.AssetMetadata{FramesPerSecond: probe.DefaultFrameRate}

	info, err := probe.Probe(file)
	if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
		return mediaingest.AssetMetadata{}, seekErr
	}
	if err != nil {
		u.logger.Warn("media probe failed, accepting without duration check",
			"file_name", fileName, "err", err)
		meta.BitrateKbps = probe.EstimateBitrateKbps(sizeBytes, 0)
		return meta, nil
	}

	if info.DurationSeconds > u.limits.MaxDurationSeconds {
		return mediaingest.AssetMetadata{}, fmt.Errorf("%w: %.1fs (limit %.0fs)",
			ErrDurationTooLong, info.DurationSeconds, u.limits.MaxDurationSeconds)
	}

	meta.DurationSeconds = info.DurationSeconds
	meta.Width = info.Width
	meta.Height = info.Height
	meta.BitrateKbps = probe.EstimateBitrateKbps(sizeBytes, info.DurationSeconds)
	return meta, nil
}
