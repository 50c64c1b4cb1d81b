package playback

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/edumarques81/stellar-pocket/internal/audio"
	"github.com/edumarques81/stellar-pocket/internal/decoder"
	"github.com/edumarques81/stellar-pocket/internal/domain/library"
)

// memFile is an in-memory song file that records Close.
type memFile struct {
	*bytes.Reader
	closed *int
}

func (f memFile) Close() error {
	*f.closed++
	return nil
}

type memStorage struct {
	mu     sync.Mutex
	files  map[string][]byte
	opened []string
	closed int
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
}

func (m *memStorage) add(path string, data []byte) {
	m.files[path] = data
}

func (m *memStorage) Open(song library.Song) (io.ReadSeekCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[song.Path]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file", song.Path)
	}
	m.opened = append(m.opened, song.Path)
	return memFile{Reader: bytes.NewReader(data), closed: &m.closed}, nil
}

type fakeSink struct {
	starts, stops int
	source        func([]audio.Frame) int
}

func (s *fakeSink) SetSource(fill func([]audio.Frame) int) { s.source = fill }
func (s *fakeSink) Start() error                            { s.starts++; return nil }
func (s *fakeSink) Stop() error                             { s.stops++; return nil }

// recordingDecoder stands in for the MP3 decoder and keeps every byte fed.
type recordingDecoder struct {
	written []byte
	begun   int
	ended   int
}

func (d *recordingDecoder) Begin() error                        { d.begun++; return nil }
func (d *recordingDecoder) End() error                          { d.ended++; return nil }
func (d *recordingDecoder) SetPCMReady(decoder.PCMReadyFunc)    {}
func (d *recordingDecoder) Codec() string                       { return "MP3" }
func (d *recordingDecoder) Write(p []byte) (int, error) {
	d.written = append(d.written, p...)
	return len(p), nil
}

// stereoWAV builds a 16-bit stereo WAV whose sample i has value i.
func stereoWAV(samples int) []byte {
	payload := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(payload[2*i:], uint16(int16(i)))
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(payload)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint32(44100))
	binary.Write(&buf, binary.LittleEndian, uint32(44100*4))
	binary.Write(&buf, binary.LittleEndian, uint16(4))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

const wavHeaderLen = 44

// mpegStream builds frames of an MPEG-1 Layer III 128 kbps 44.1 kHz stream.
func mpegStream(frames int) []byte {
	const frameLen = 417
	out := make([]byte, 0, frames*frameLen)
	for i := 0; i < frames; i++ {
		frame := make([]byte, frameLen)
		copy(frame, []byte{0xFF, 0xFB, 0x90, 0x00})
		for j := 4; j < frameLen; j++ {
			frame[j] = byte(j % 0x7F)
		}
		out = append(out, frame...)
	}
	return out
}

// silentMPEG builds frames of an MPEG-1 Layer III 44.1 kHz stereo stream
// with zeroed side info, which decode to silence. bitrateBits is the upper
// nibble of the third header byte and frameLen the matching frame length.
func silentMPEG(bitrateBits byte, frameLen, frames int) []byte {
	out := make([]byte, frames*frameLen)
	for i := 0; i < frames; i++ {
		copy(out[i*frameLen:], []byte{0xFF, 0xFB, bitrateBits, 0x00})
	}
	return out
}

type rig struct {
	storage *memStorage
	ring    *audio.RingBuffer
	status  *audio.Controller
	task    *DecodeTask
	sink    *fakeSink
	ctrl    *Controller
	mp3     *recordingDecoder
}

func newRig(ringCap int, opts TaskOptions) *rig {
	r := &rig{
		storage: newMemStorage(),
		ring:    audio.NewRingBuffer(ringCap),
		sink:    &fakeSink{},
		mp3:     &recordingDecoder{},
	}
	r.status = audio.NewController(r.ring)
	if opts.NewCompressed == nil {
		opts.NewCompressed = func() decoder.Decoder { return r.mp3 }
	}
	r.task = NewDecodeTask(r.storage, r.ring, r.status, opts)
	r.ctrl = NewController(r.task, r.sink, r.status)
	return r
}

func rawSong(path string) library.Song {
	return library.Song{Path: path, Artist: "Artist", Album: "Album", Title: path, Kind: library.Raw}
}

func mp3Song(path string) library.Song {
	return library.Song{Path: path, Artist: "Artist", Album: "Album", Title: path, Kind: library.Compressed}
}
