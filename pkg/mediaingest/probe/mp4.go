package probe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// isMP4 recognizes the ISO base media file format by its ftyp box.
func isMP4(head []byte) bool {
	return len(head) >= 8 && string(head[4:8]) == "ftyp"
}

// probeMP4 walks top-level boxes looking for moov, then reads mvhd for the
// movie duration and video tkhd boxes for dimensions.
func probeMP4(rs io.ReadSeeker) (Info, error) {
	var info Info
	foundMvhd := false

	err := walkBoxes(rs, func(boxType string, size int64) (bool, error) {
		if boxType != "moov" {
			return false, nil
		}
		return true, walkChildren(rs, size, func(childType string, childSize int64) error {
			switch childType {
			case "mvhd":
				dur, err := readMvhd(rs, childSize)
				if err != nil {
					return err
				}
				info.DurationSeconds = dur
				foundMvhd = true
			case "trak":
				w, h, err := readTrakDimensions(rs, childSize)
				if err != nil {
					return err
				}
				if w > info.Width {
					info.Width = w
				}
				if h > info.Height {
					info.Height = h
				}
			}
			return nil
		})
	})
	if err != nil {
		return Info{}, err
	}
	if !foundMvhd {
		return Info{}, fmt.Errorf("%w: no movie header", ErrUnsupportedContainer)
	}
	return info, nil
}

// walkBoxes iterates top-level boxes. The callback returns true to stop the
// walk; a box it does not consume is skipped here.
func walkBoxes(rs io.ReadSeeker, fn func(boxType string, size int64) (bool, error)) error {
	for {
		boxType, size, err := readBoxHeader(rs)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		stop, err := fn(boxType, size)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
		if _, err := rs.Seek(size, io.SeekCurrent); err != nil {
			return fmt.Errorf("%w: truncated box %s", ErrUnsupportedContainer, boxType)
		}
	}
}

// walkChildren iterates the children of a container box whose payload is
// total bytes long. Children the callback does not read are skipped here;
// a callback that reads a child must consume its payload exactly.
func walkChildren(rs io.ReadSeeker, total int64, fn func(childType string, size int64) error) error {
	remaining := total
	for remaining >= 8 {
		start, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		var header [8]byte
		if _, err := io.ReadFull(rs, header[:]); err != nil {
			return fmt.Errorf("%w: truncated container box", ErrUnsupportedContainer)
		}
		childSize := int64(binary.BigEndian.Uint32(header[0:4]))
		childType := string(header[4:8])
		if childSize < 8 || childSize > remaining {
			return fmt.Errorf("%w: bad child box size", ErrUnsupportedContainer)
		}

		if err := fn(childType, childSize-8); err != nil {
			return err
		}
		// Position past the child regardless of how much fn consumed.
		if _, err := rs.Seek(start+childSize, io.SeekStart); err != nil {
			return err
		}
		remaining -= childSize
	}
	if remaining > 0 {
		if _, err := rs.Seek(remaining, io.SeekCurrent); err != nil {
			return err
		}
	}
	return nil
}

// readBoxHeader reads a box header and returns its type and payload size.
// Large (64-bit) sizes are folded into the payload size.
func readBoxHeader(rs io.ReadSeeker) (string, int64, error) {
	var header [8]byte
	if _, err := io.ReadFull(rs, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return "", 0, io.EOF
		}
		return "", 0, err
	}
	size := int64(binary.BigEndian.Uint32(header[0:4]))
	boxType := string(header[4:8])

	switch size {
	case 0:
		// Box extends to end of file; report a huge payload and let the
		// caller hit EOF naturally.
		return boxType, int64(1)<<62 - 8, nil
	case 1:
		var large [8]byte
		if _, err := io.ReadFull(rs, large[:]); err != nil {
			return "", 0, fmt.Errorf("%w: truncated large box", ErrUnsupportedContainer)
		}
		payload := int64(binary.BigEndian.Uint64(large[:])) - 16
		if payload < 0 {
			return "", 0, fmt.Errorf("%w: bad box size", ErrUnsupportedContainer)
		}
		return boxType, payload, nil
	default:
		payload := size - 8
		if payload < 0 {
			return "", 0, fmt.Errorf("%w: bad box size", ErrUnsupportedContainer)
		}
		return boxType, payload, nil
	}
}

// readMvhd consumes an mvhd payload and returns the movie duration.
func readMvhd(rs io.ReadSeeker, size int64) (float64, error) {
	payload := make([]byte, size)
	if _, err := io.ReadFull(rs, payload); err != nil {
		return 0, fmt.Errorf("%w: truncated mvhd", ErrUnsupportedContainer)
	}

	version := payload[0]
	var timescale uint32
	var duration uint64
	switch version {
	case 0:
		if len(payload) < 20 {
			return 0, fmt.Errorf("%w: short mvhd", ErrUnsupportedContainer)
		}
		timescale = binary.BigEndian.Uint32(payload[12:16])
		duration = uint64(binary.BigEndian.Uint32(payload[16:20]))
	case 1:
		if len(payload) < 32 {
			return 0, fmt.Errorf("%w: short mvhd", ErrUnsupportedContainer)
		}
		timescale = binary.BigEndian.Uint32(payload[20:24])
		duration = binary.BigEndian.Uint64(payload[24:32])
	default:
		return 0, fmt.Errorf("%w: unknown mvhd version %d", ErrUnsupportedContainer, version)
	}

	if timescale == 0 {
		return 0, nil
	}
	return float64(duration) / float64(timescale), nil
}

// readTrakDimensions consumes a trak payload and returns the track's width
// and height from its tkhd, zero for non-visual tracks.
func readTrakDimensions(rs io.ReadSeeker, size int64) (int, int, error) {
	payload := make([]byte, size)
	if _, err := io.ReadFull(rs, payload); err != nil {
		return 0, 0, fmt.Errorf("%w: truncated trak", ErrUnsupportedContainer)
	}

	// Scan direct children for tkhd.
	offset := int64(0)
	for offset+8 <= size {
		childSize := int64(binary.BigEndian.Uint32(payload[offset : offset+4]))
		childType := string(payload[offset+4 : offset+8])
		if childSize < 8 || offset+childSize > size {
			break
		}
		if childType == "tkhd" {
			body := payload[offset+8 : offset+childSize]
			return parseTkhd(body)
		}
		offset += childSize
	}
	return 0, 0, nil
}

func parseTkhd(body []byte) (int, int, error) {
	if len(body) < 4 {
		return 0, 0, nil
	}
	// Width and height are 16.16 fixed point at the end of the box.
	var dimOffset int
	switch body[0] {
	case 0:
		dimOffset = 76
	case 1:
		dimOffset = 88
	default:
		return 0, 0, nil
	}
	if len(body) < dimOffset+8 {
		return 0, 0, nil
	}
	width := int(binary.BigEndian.Uint32(body[dimOffset:dimOffset+4]) >> 16)
	height := int(binary.BigEndian.Uint32(body[dimOffset+4:dimOffset+8]) >> 16)
	return width, height, nil
}
