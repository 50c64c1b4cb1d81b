package decoder

import (
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

// WAVInfo locates the PCM payload of a WAV file.
type WAVInfo struct {
	Format     Format
	DataOffset int64 // byte offset of the first sample
	DataSize   int64 // payload length in bytes
	BlockAlign int   // bytes per sample frame
}

// ProbeWAV parses the RIFF header of rs and leaves it positioned at the
// first PCM byte.
func ProbeWAV(rs io.ReadSeeker) (WAVInfo, error) {
	d := wav.NewDecoder(rs)
	if err := d.FwdToPCM(); err != nil {
		return WAVInfo{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if err := d.Err(); err != nil {
		return WAVInfo{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if d.NumChans == 0 || d.PCMChunk == nil {
		return WAVInfo{}, ErrNotWAV
	}
	if d.WavAudioFormat != 1 || d.BitDepth != 16 || d.NumChans > 2 {
		return WAVInfo{}, fmt.Errorf("%w: format %d, %d-bit, %d channels",
			ErrUnsupportedPCM, d.WavAudioFormat, d.BitDepth, d.NumChans)
	}

	offset, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return WAVInfo{}, fmt.Errorf("failed to locate PCM data: %w", err)
	}

	return WAVInfo{
		Format:     Format{Format: *d.Format(), BitDepth: int(d.BitDepth)},
		DataOffset: offset,
		DataSize:   int64(d.PCMSize),
		BlockAlign: int(d.NumChans) * 2,
	}, nil
}

// Align clamps an absolute file offset to the PCM payload and rounds it
// down to a sample frame boundary.
func (w WAVInfo) Align(pos int64) int64 {
	rel := pos - w.DataOffset
	if rel < 0 {
		rel = 0
	}
	if rel > w.DataSize {
		rel = w.DataSize
	}
	if w.BlockAlign > 0 {
		rel -= rel % int64(w.BlockAlign)
	}
	return w.DataOffset + rel
}
