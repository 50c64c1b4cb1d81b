// Package decoder adapts streaming audio decoders to a push interface:
// compressed bytes go in through Write and interleaved stereo PCM comes out
// through a PCM-ready callback.
package decoder

import (
	"errors"

	"github.com/go-audio/audio"
)

var (
	// ErrMalformed is returned when the compressed stream cannot be decoded.
	ErrMalformed = errors.New("malformed audio stream")
	// ErrNotStarted is returned by Write before Begin.
	ErrNotStarted = errors.New("decoder not started")
	// ErrNotWAV is returned when a raw file is not a RIFF/WAVE container.
	ErrNotWAV = errors.New("not a WAV file")
	// ErrUnsupportedPCM is returned for WAV files that are not 16-bit PCM mono/stereo.
	ErrUnsupportedPCM = errors.New("only 16-bit PCM mono or stereo is supported")
	// ErrNoFrameSync is returned when no frame header is found in the scan window.
	ErrNoFrameSync = errors.New("no frame sync found")
)

// Format describes decoded PCM. Channels reports the source channel count;
// samples handed to PCMReadyFunc are always interleaved stereo.
type Format struct {
	audio.Format
	BitDepth int
}

// PCMReadyFunc receives interleaved stereo samples. The slice is reused by
// the decoder after the call returns.
type PCMReadyFunc func(samples []int16, format Format)

// Decoder is a streaming decoder fed with raw file bytes.
type Decoder interface {
	// Begin resets the decoder for a new stream.
	Begin() error
	// Write feeds bytes. PCM decoded from them may be delivered to the
	// PCM-ready callback before Write returns.
	Write(p []byte) (int, error)
	// End flushes pending output and releases the stream.
	End() error
	// SetPCMReady registers the PCM callback.
	SetPCMReady(fn PCMReadyFunc)
	// Codec names the decoded format ("MP3", "PCM").
	Codec() string
}

// expandMono duplicates each mono sample into a stereo frame.
func expandMono(dst, mono []int16) []int16 {
	dst = dst[:0]
	for _, s := range mono {
		dst = append(dst, s, s)
	}
	return dst
}
