// Package speaker plays the output feed through the system audio device
// (the A2DP sink once BlueZ routes it) using oto.
package speaker

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pocket/internal/audio"
)

const bytesPerFrame = 4

// Options configures the output device.
type Options struct {
	SampleRate int
	BufferSize time.Duration
}

type player interface {
	Play()
	Pause()
	IsPlaying() bool
	Seek(offset int64, whence int) (int64, error)
}

// Sink implements playback.Sink on an oto player. oto pulls from the
// registered source on its own goroutine.
type Sink struct {
	mu     sync.Mutex
	player player
	stream *frameReader
}

// New opens the audio device. Only one Sink may exist per process.
func New(opts Options) (*Sink, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   opts.SampleRate,
		ChannelCount: audio.SamplesPerFrame,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   opts.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}
	<-ready

	s := newSink()
	s.player = ctx.NewPlayer(s.stream)
	log.Info().Int("sample_rate", opts.SampleRate).Dur("buffer", opts.BufferSize).Msg("Audio output ready")
	return s, nil
}

func newSink() *Sink {
	return &Sink{stream: &frameReader{}}
}

// SetSource implements playback.Sink.
func (s *Sink) SetSource(fill func(dst []audio.Frame) int) {
	s.stream.setSource(fill)
}

// Start implements playback.Sink.
func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.player.IsPlaying() {
		s.player.Play()
	}
	return nil
}

// Stop implements playback.Sink. Audio queued in the device is discarded.
func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player.Pause()
	if _, err := s.player.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}

// Underruns returns how many reads were padded with silence.
func (s *Sink) Underruns() uint64 {
	return s.stream.underruns.Load()
}

// frameReader adapts a frame source to the byte stream oto reads.
type frameReader struct {
	mu        sync.Mutex
	fill      func(dst []audio.Frame) int
	frames    []audio.Frame
	underruns atomic.Uint64
}

func (r *frameReader) setSource(fill func(dst []audio.Frame) int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fill = fill
}

// Read never blocks: missing frames are rendered as silence.
func (r *frameReader) Read(p []byte) (int, error) {
	n := len(p) / bytesPerFrame
	if n == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cap(r.frames) < n {
		r.frames = make([]audio.Frame, n)
	}
	frames := r.frames[:n]

	got := 0
	if r.fill != nil {
		got = r.fill(frames)
	}
	for i, f := range frames[:got] {
		binary.LittleEndian.PutUint16(p[i*bytesPerFrame:], uint16(f.Left))
		binary.LittleEndian.PutUint16(p[i*bytesPerFrame+2:], uint16(f.Right))
	}
	clear(p[got*bytesPerFrame : n*bytesPerFrame])
	if got < n {
		r.underruns.Add(1)
	}
	return n * bytesPerFrame, nil
}

// Seek lets oto flush its queue; the stream itself has no position.
func (r *frameReader) Seek(offset int64, whence int) (int64, error) {
	return 0, nil
}
