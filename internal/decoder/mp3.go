package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-audio/audio"
	"github.com/hajimehoshi/go-mp3"
	"github.com/rs/zerolog/log"
)

// pcmChunkBytes is one MPEG-1 Layer III frame of 16-bit stereo output.
const pcmChunkBytes = 1152 * 2 * 2

// MP3 decodes MPEG audio with go-mp3. go-mp3 pulls from an io.Reader, so the
// decoder runs on its own goroutine behind a feedReader and Write blocks
// until the pushed bytes have been consumed.
type MP3 struct {
	mu    sync.Mutex
	onPCM PCMReadyFunc
	feed  *feedReader
	done  chan struct{}
}

// NewMP3 creates an idle MP3 decoder.
func NewMP3() *MP3 {
	return &MP3{}
}

// Codec implements Decoder.
func (m *MP3) Codec() string { return "MP3" }

// SetPCMReady implements Decoder.
func (m *MP3) SetPCMReady(fn PCMReadyFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPCM = fn
}

// Begin implements Decoder. A stream still open from a previous Begin is
// ended first.
func (m *MP3) Begin() error {
	if err := m.End(); err != nil {
		log.Debug().Err(err).Msg("Previous MP3 stream ended with error")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.feed = newFeedReader()
	m.done = make(chan struct{})
	go m.run(m.feed, m.done, m.onPCM)
	return nil
}

// Write implements Decoder.
func (m *MP3) Write(p []byte) (int, error) {
	m.mu.Lock()
	feed := m.feed
	m.mu.Unlock()

	if feed == nil {
		return 0, ErrNotStarted
	}
	if err := feed.write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// End implements Decoder. It closes the input, lets the decoder drain the
// frames it already holds and waits for the decode goroutine to exit.
func (m *MP3) End() error {
	m.mu.Lock()
	feed, done := m.feed, m.done
	m.feed, m.done = nil, nil
	m.mu.Unlock()

	if feed == nil {
		return nil
	}
	feed.close()
	<-done

	if err := feed.failure(); !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (m *MP3) run(feed *feedReader, done chan struct{}, onPCM PCMReadyFunc) {
	defer close(done)

	dec, err := mp3.NewDecoder(feed)
	if err != nil {
		feed.finish(classifyMP3Error(err))
		return
	}

	format := Format{
		Format:   audio.Format{NumChannels: 2, SampleRate: dec.SampleRate()},
		BitDepth: 16,
	}
	raw := make([]byte, pcmChunkBytes)
	samples := make([]int16, pcmChunkBytes/2)

	for {
		n, err := dec.Read(raw)
		if n > 0 && onPCM != nil {
			count := n / 2
			for i := 0; i < count; i++ {
				samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
			}
			onPCM(samples[:count], format)
		}
		if err != nil {
			feed.finish(classifyMP3Error(err))
			return
		}
	}
}

// classifyMP3Error maps end-of-input to nil and everything else to ErrMalformed.
func classifyMP3Error(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}
