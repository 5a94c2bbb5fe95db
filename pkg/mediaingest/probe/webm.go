package probe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// EBML/Matroska element ids consumed by the probe.
const (
	ebmlHeaderID    = 0x1A45DFA3
	segmentID       = 0x18538067
	infoID          = 0x1549A966
	timecodeScaleID = 0x2AD7B1
	durationID      = 0x4489
)

// defaultTimecodeScale is nanoseconds per timecode unit when the Info
// element does not carry one.
const defaultTimecodeScale = 1_000_000

// isEBML recognizes the EBML magic of WebM/Matroska files.
func isEBML(head []byte) bool {
	return len(head) >= 4 && binary.BigEndian.Uint32(head[0:4]) == ebmlHeaderID
}

// probeWebM walks the EBML structure down to Segment > Info and reads the
// duration. WebM keeps dimensions deeper in the track tree; this probe
// leaves them zero.
func probeWebM(rs io.ReadSeeker) (Info, error) {
	for {
		id, size, err := readEBMLElement(rs)
		if errors.Is(err, io.EOF) {
			return Info{}, fmt.Errorf("%w: no segment info", ErrUnsupportedContainer)
		}
		if err != nil {
			return Info{}, err
		}

		switch id {
		case segmentID:
			// Descend; the segment payload holds Info.
			continue
		case infoID:
			return readSegmentInfo(rs, size)
		default:
			if size < 0 {
				return Info{}, fmt.Errorf("%w: unknown-size element", ErrUnsupportedContainer)
			}
			if _, err := rs.Seek(size, io.SeekCurrent); err != nil {
				return Info{}, fmt.Errorf("%w: truncated element", ErrUnsupportedContainer)
			}
		}
	}
}

func readSegmentInfo(rs io.ReadSeeker, size int64) (Info, error) {
	if size < 0 {
		return Info{}, fmt.Errorf("%w: unknown-size info element", ErrUnsupportedContainer)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(rs, payload); err != nil {
		return Info{}, fmt.Errorf("%w: truncated info element", ErrUnsupportedContainer)
	}

	timecodeScale := uint64(defaultTimecodeScale)
	var rawDuration float64
	haveDuration := false

	offset := 0
	for offset < len(payload) {
		id, idLen := readVintID(payload[offset:])
		if idLen == 0 {
			break
		}
		offset += idLen
		elemSize, sizeLen := readVintSize(payload[offset:])
		if sizeLen == 0 || elemSize < 0 || offset+sizeLen+int(elemSize) > len(payload) {
			break
		}
		offset += sizeLen
		body := payload[offset : offset+int(elemSize)]
		offset += int(elemSize)

		switch id {
		case timecodeScaleID:
			timecodeScale = readEBMLUint(body)
		case durationID:
			switch len(body) {
			case 4:
				rawDuration = float64(math.Float32frombits(binary.BigEndian.Uint32(body)))
				haveDuration = true
			case 8:
				rawDuration = math.Float64frombits(binary.BigEndian.Uint64(body))
				haveDuration = true
			}
		}
	}

	if !haveDuration {
		return Info{}, fmt.Errorf("%w: no duration in segment info", ErrUnsupportedContainer)
	}
	seconds := rawDuration * float64(timecodeScale) / 1e9
	return Info{DurationSeconds: seconds}, nil
}

// readEBMLElement reads an element id and size. Size -1 means the element
// declared an unknown size.
func readEBMLElement(rs io.ReadSeeker) (uint64, int64, error) {
	var first [1]byte
	if _, err := io.ReadFull(rs, first[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, 0, io.EOF
		}
		return 0, 0, err
	}

	idLen := vintLength(first[0])
	if idLen == 0 || idLen > 4 {
		return 0, 0, fmt.Errorf("%w: bad element id", ErrUnsupportedContainer)
	}
	idBytes := make([]byte, idLen)
	idBytes[0] = first[0]
	if _, err := io.ReadFull(rs, idBytes[1:]); err != nil {
		return 0, 0, fmt.Errorf("%w: truncated element id", ErrUnsupportedContainer)
	}
	var id uint64
	for _, b := range idBytes {
		id = id<<8 | uint64(b)
	}

	if _, err := io.ReadFull(rs, first[:]); err != nil {
		return 0, 0, fmt.Errorf("%w: truncated element size", ErrUnsupportedContainer)
	}
	sizeLen := vintLength(first[0])
	if sizeLen == 0 || sizeLen > 8 {
		return 0, 0, fmt.Errorf("%w: bad element size", ErrUnsupportedContainer)
	}
	sizeBytes := make([]byte, sizeLen)
	sizeBytes[0] = first[0] &^ (0x80 >> (sizeLen - 1))
	if _, err := io.ReadFull(rs, sizeBytes[1:]); err != nil {
		return 0, 0, fmt.Errorf("%w: truncated element size", ErrUnsupportedContainer)
	}
	var size uint64
	for _, b := range sizeBytes {
		size = size<<8 | uint64(b)
	}
	// All value bits set means "unknown size".
	if size == uint64(1)<<(7*sizeLen)-1 {
		return id, -1, nil
	}
	return id, int64(size), nil
}

// vintLength returns the byte length encoded in the leading bits of an EBML
// variable-length integer, or 0 when invalid.
func vintLength(first byte) int {
	for i := 0; i < 8; i++ {
		if first&(0x80>>i) != 0 {
			return i + 1
		}
	}
	return 0
}

// readVintID reads an element id from buf, returning the id and bytes
// consumed (0 when invalid).
func readVintID(buf []byte) (uint64, int) {
	if len(buf) == 0 {
		return 0, 0
	}
	n := vintLength(buf[0])
	if n == 0 || n > 4 || n > len(buf) {
		return 0, 0
	}
	var id uint64
	for _, b := range buf[:n] {
		id = id<<8 | uint64(b)
	}
	return id, n
}

// readVintSize reads an element size from buf, returning the size and bytes
// consumed (0 when invalid).
func readVintSize(buf []byte) (int64, int) {
	if len(buf) == 0 {
		return 0, 0
	}
	n := vintLength(buf[0])
	if n == 0 || n > 8 || n > len(buf) {
		return 0, 0
	}
	size := uint64(buf[0] &^ (0x80 >> (n - 1)))
	for _, b := range buf[1:n] {
		size = size<<8 | uint64(b)
	}
	return int64(size), n
}

func readEBMLUint(body []byte) uint64 {
	var v uint64
	for _, b := range body {
		v = v<<8 | uint64(b)
	}
	return v
}
