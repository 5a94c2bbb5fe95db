// Package probe estimates video metadata from container headers. It is a
// best-effort heuristic used for pre-upload validation, not a frame-accurate
// parser: duration and dimensions come from the container index, frame rate
// falls back to a constant default, and bitrate is back-computed from file
// size.
package probe

import (
	"errors"
	"io"
)

// DefaultFrameRate is assumed when the container does not expose one.
const DefaultFrameRate = 30.0

// ErrUnsupportedContainer indicates the bytes match no container this probe
// understands.
var ErrUnsupportedContainer = errors.New("unsupported media container")

// Info is what the probe could read from the container headers.
type Info struct {
	DurationSeconds float64
	Width           int
	Height          int
}

// Probe reads container headers from rs and returns what it found. MP4-family
// containers (mp4, mov, m4v) and WebM/Matroska are recognized; anything else
// returns ErrUnsupportedContainer.
func Probe(rs io.ReadSeeker) (Info, error) {
	head := make([]byte, 12)
	if _, err := io.ReadFull(rs, head); err != nil {
		return Info{}, ErrUnsupportedContainer
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return Info{}, err
	}

	switch {
	case isMP4(head):
		return probeMP4(rs)
	case isEBML(head):
		return probeWebM(rs)
	default:
		return Info{}, ErrUnsupportedContainer
	}
}

// EstimateBitrateKbps back-computes an average bitrate from file size and
// duration. Zero when the duration is unknown.
func EstimateBitrateKbps(sizeBytes int64, durationSeconds float64) int64 {
	if durationSeconds <= 0 || sizeBytes <= 0 {
		return 0
	}
	return int64(float64(sizeBytes*8) / durationSeconds / 1000)
}
