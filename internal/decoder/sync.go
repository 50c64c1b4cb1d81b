package decoder

import (
	"errors"
	"fmt"
	"io"
)

// Frame sync: an 0xFF byte followed by a byte whose top three bits are set.
const (
	SyncMarker = 0xFF
	SyncMask   = 0xE0
)

// DefaultSyncWindow bounds the forward scan after a seek.
const DefaultSyncWindow = 8 * 1024

// maxFrameLen covers the longest MPEG audio frame (Layer II, 160 kbps at 8 kHz).
const maxFrameLen = 2881

// MPEG version identifiers as encoded in the header.
const (
	mpeg25 = 0
	mpeg2  = 2
	mpeg1  = 3
)

var bitrates = [2][4][16]int{
	{ // MPEG-1
		{},
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320},     // Layer III
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384},    // Layer II
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448}, // Layer I
	},
	{ // MPEG-2 and 2.5
		{},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160},
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256},
	},
}

var sampleRates = [4][3]int{
	mpeg25: {11025, 12000, 8000},
	mpeg2:  {22050, 24000, 16000},
	mpeg1:  {44100, 48000, 32000},
}

// FrameHeader is a decoded MPEG audio frame header.
type FrameHeader struct {
	Version    int // 3 = MPEG-1, 2 = MPEG-2, 0 = MPEG-2.5
	Layer      int // 1, 2 or 3
	Bitrate    int // bits per second
	SampleRate int
	Padding    bool
}

// ParseFrameHeader decodes the four bytes at the start of b. It reports
// false for anything that is not a usable frame header, including free
// format and reserved field values.
func ParseFrameHeader(b []byte) (FrameHeader, bool) {
	if len(b) < 4 || b[0] != SyncMarker || b[1]&SyncMask != SyncMask {
		return FrameHeader{}, false
	}

	version := int(b[1]>>3) & 0x03
	layerBits := int(b[1]>>1) & 0x03
	bitrateIdx := int(b[2] >> 4)
	rateIdx := int(b[2]>>2) & 0x03

	if version == 1 || layerBits == 0 || bitrateIdx == 0 || bitrateIdx == 15 || rateIdx == 3 {
		return FrameHeader{}, false
	}
	if b[3]&0x03 == 2 {
		return FrameHeader{}, false
	}

	table := 1
	if version == mpeg1 {
		table = 0
	}
	return FrameHeader{
		Version:    version,
		Layer:      4 - layerBits,
		Bitrate:    bitrates[table][layerBits][bitrateIdx] * 1000,
		SampleRate: sampleRates[version][rateIdx],
		Padding:    b[2]&0x02 != 0,
	}, true
}

// Length returns the frame length in bytes, header included.
func (h FrameHeader) Length() int {
	pad := 0
	if h.Padding {
		pad = 1
	}
	switch {
	case h.Layer == 1:
		return (12*h.Bitrate/h.SampleRate + pad) * 4
	case h.Layer == 3 && h.Version != mpeg1:
		return 72*h.Bitrate/h.SampleRate + pad
	default:
		return 144*h.Bitrate/h.SampleRate + pad
	}
}

// FindFrameSync seeks rs to offset and scans at most window bytes forward for
// a frame header. A candidate whose successor header lies inside the bytes
// read must be followed by a compatible header. On success rs is left at the
// header and its absolute offset is returned.
func FindFrameSync(rs io.ReadSeeker, offset int64, window int) (int64, error) {
	if _, err := rs.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek to %d: %w", offset, err)
	}

	buf := make([]byte, window+maxFrameLen+4)
	n, err := io.ReadFull(rs, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to read sync window: %w", err)
	}
	buf = buf[:n]

	limit := window
	if limit > n-3 {
		limit = n - 3
	}
	for i := 0; i < limit; i++ {
		h, ok := ParseFrameHeader(buf[i:])
		if !ok {
			continue
		}
		next := i + h.Length()
		if next+4 <= n {
			nh, ok := ParseFrameHeader(buf[next:])
			if !ok || nh.Version != h.Version || nh.Layer != h.Layer || nh.SampleRate != h.SampleRate {
				continue
			}
		}

		pos := offset + int64(i)
		if _, err := rs.Seek(pos, io.SeekStart); err != nil {
			return 0, fmt.Errorf("failed to seek to frame at %d: %w", pos, err)
		}
		return pos, nil
	}
	return 0, ErrNoFrameSync
}
