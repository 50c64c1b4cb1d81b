// Package audio provides the PCM ring buffer shared by the decoder and the
// output device, and tracks the format of the stream being decoded.
package audio

import (
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

// Codec names reported in AudioFormat.Codec.
const (
	CodecMP3 = "MP3"
	CodecPCM = "PCM"
)

// AudioFormat represents the format of the stream currently being decoded.
type AudioFormat struct {
	SampleRate int    `json:"sampleRate"` // Sample rate in Hz (44100, 48000, ...)
	BitDepth   int    `json:"bitDepth"`   // Bit depth (16)
	Channels   int    `json:"channels"`   // Number of channels before stereo expansion
	Codec      string `json:"codec"`      // "MP3" or "PCM"
}

// AudioStatus represents the current output status.
type AudioStatus struct {
	Streaming bool         `json:"streaming"` // True while the output stream is started
	Format    *AudioFormat `json:"format"`    // Last decoded format (nil if nothing decoded yet)
	Dropped   uint64       `json:"dropped"`   // Samples dropped by ring buffer overflow
}

// Controller tracks the decoded format and whether the output stream runs.
// Decoders report their format from the producer goroutine; UI snapshots
// read it from the orchestrator.
type Controller struct {
	mu            sync.RWMutex
	streaming     bool
	currentFormat *AudioFormat
	ring          *RingBuffer
}

// NewController creates a new audio controller reporting overflow from ring.
func NewController(ring *RingBuffer) *Controller {
	return &Controller{
		ring: ring,
	}
}

// GetStatus returns the current audio status.
func (c *Controller) GetStatus() AudioStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := AudioStatus{
		Streaming: c.streaming,
		Format:    c.currentFormat,
	}
	if c.ring != nil {
		status.Dropped = c.ring.Dropped()
	}
	return status
}

// UpdateFormat records the format reported by the decoder.
func (c *Controller) UpdateFormat(sampleRate, bitDepth, channels int, codec string) (changed bool) {
	newFormat := &AudioFormat{
		SampleRate: sampleRate,
		BitDepth:   bitDepth,
		Channels:   channels,
		Codec:      codec,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if audioFormatEqual(c.currentFormat, newFormat) {
		return false
	}
	c.currentFormat = newFormat

	log.Debug().
		Int("sample_rate", sampleRate).
		Int("bit_depth", bitDepth).
		Int("channels", channels).
		Str("codec", codec).
		Msg("Decoded format changed")
	return true
}

// OnPlaybackStart marks the output stream as running.
func (c *Controller) OnPlaybackStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streaming = true
}

// OnPlaybackStop marks the output stream as stopped.
func (c *Controller) OnPlaybackStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streaming = false
}

// FormatSampleRate returns a human-readable sample rate string.
func FormatSampleRate(sampleRate int) string {
	if sampleRate >= 1000 {
		return strconv.FormatFloat(float64(sampleRate)/1000, 'f', -1, 64) + "kHz"
	}
	return strconv.Itoa(sampleRate) + "Hz"
}

// FormatBitDepth returns a human-readable bit depth string.
func FormatBitDepth(bitDepth int) string {
	return strconv.Itoa(bitDepth) + "-bit"
}

// audioFormatEqual compares two AudioFormat pointers for equality.
func audioFormatEqual(a, b *AudioFormat) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.SampleRate == b.SampleRate &&
		a.BitDepth == b.BitDepth &&
		a.Channels == b.Channels &&
		a.Codec == b.Codec
}
