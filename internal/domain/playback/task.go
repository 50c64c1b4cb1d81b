package playback

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pocket/internal/audio"
	"github.com/edumarques81/stellar-pocket/internal/decoder"
	"github.com/edumarques81/stellar-pocket/internal/domain/library"
)

// Default decode task tuning.
const (
	DefaultChunkSize = 1024
	DefaultMinFree   = 12288
)

// TaskOptions tunes the decode task.
type TaskOptions struct {
	ChunkSize  int // bytes read from the file per iteration
	MinFree    int // free ring samples required before reading another chunk
	SyncWindow int // bytes scanned for a frame header after a seek

	// NewCompressed builds the decoder for compressed songs. Defaults to
	// decoder.NewMP3.
	NewCompressed func() decoder.Decoder
}

func (o *TaskOptions) applyDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MinFree <= 0 {
		o.MinFree = DefaultMinFree
	}
	if o.SyncWindow <= 0 {
		o.SyncWindow = decoder.DefaultSyncWindow
	}
	if o.NewCompressed == nil {
		o.NewCompressed = func() decoder.Decoder { return decoder.NewMP3() }
	}
}

// DecodeTask is the producer side of the ring buffer. It sleeps until woken,
// applies the pending request and then fills the ring while the current
// session is playing and enough space is free.
type DecodeTask struct {
	storage     Storage
	ring        *audio.RingBuffer
	status      *audio.Controller
	opts        TaskOptions
	mailbox     mailbox
	wake        wakeSignal
	completions chan Completion

	// Owned by the task goroutine.
	session *Session
	file    io.ReadSeekCloser
	dec     decoder.Decoder
	end     int64 // file offset where the payload ends, -1 for EOF
	chunk   []byte
	format  decoder.Format
	pending []int16 // decoded samples waiting for ring space
}

// NewDecodeTask creates an idle decode task. status may be nil.
func NewDecodeTask(storage Storage, ring *audio.RingBuffer, status *audio.Controller, opts TaskOptions) *DecodeTask {
	opts.applyDefaults()
	return &DecodeTask{
		storage:     storage,
		ring:        ring,
		status:      status,
		opts:        opts,
		wake:        newWakeSignal(),
		completions: make(chan Completion, 8),
		chunk:       make([]byte, opts.ChunkSize),
		end:         -1,
	}
}

// Wake asks the task to run one more iteration. It never blocks.
func (t *DecodeTask) Wake() { t.wake.notify() }

// Run processes wakeups until ctx is done.
func (t *DecodeTask) Run(ctx context.Context) error {
	log.Debug().Msg("Decode task started")
	for {
		select {
		case <-ctx.Done():
			t.halt()
			log.Debug().Msg("Decode task stopped")
			return ctx.Err()
		case <-t.wake:
			t.step()
		}
	}
}

func (t *DecodeTask) post(r *request) {
	t.mailbox.post(r)
	t.Wake()
}

// step handles pending requests and fills until the ring is full enough, the
// song ends or another request arrives.
func (t *DecodeTask) step() {
	for {
		if req := t.mailbox.take(); req != nil {
			log.Debug().Stringer("request", req.kind).Msg("Decode task request")
			t.halt()
			if req.kind == requestPlay {
				t.start(req.session, req.seek)
			}
		}
		t.fill()
		if !t.mailbox.pending() {
			return
		}
	}
}

// start opens the session's song and positions it at seek.
func (t *DecodeTask) start(s *Session, seek int64) {
	file, err := t.storage.Open(s.Song)
	if err != nil {
		log.Warn().Err(err).Str("song", s.Song.Path).Msg("Failed to open song")
		t.fail(s, fmt.Errorf("%w: %v", ErrStorage, err))
		return
	}

	var dec decoder.Decoder
	var pos int64
	end := int64(-1)

	switch s.Song.Kind {
	case library.Raw:
		info, err := decoder.ProbeWAV(file)
		if err != nil {
			file.Close()
			log.Warn().Err(err).Str("song", s.Song.Path).Msg("Unsupported WAV file")
			t.fail(s, fmt.Errorf("%w: %v", ErrDecode, err))
			return
		}
		pos = info.Align(seek)
		end = info.DataOffset + info.DataSize
		if _, err := file.Seek(pos, io.SeekStart); err != nil {
			file.Close()
			t.fail(s, fmt.Errorf("%w: %v", ErrStorage, err))
			return
		}
		dec = decoder.NewPCM(info.Format)

	default:
		if seek > 0 {
			pos, err = decoder.FindFrameSync(file, seek, t.opts.SyncWindow)
			if err != nil {
				log.Warn().Err(err).
					Str("song", s.Song.Path).
					Int64("offset", seek).
					Msg("Resume failed, restarting song")
				pos = 0
				if _, err := file.Seek(0, io.SeekStart); err != nil {
					file.Close()
					t.fail(s, fmt.Errorf("%w: %v", ErrStorage, err))
					return
				}
			}
		}
		dec = t.opts.NewCompressed()
	}

	t.format = decoder.Format{}
	dec.SetPCMReady(t.onPCM)
	if err := dec.Begin(); err != nil {
		file.Close()
		t.fail(s, fmt.Errorf("%w: %v", ErrDecode, err))
		return
	}

	s.position.Store(pos)
	t.session, t.file, t.dec, t.end = s, file, dec, end

	log.Info().
		Str("song", s.Song.Path).
		Int("index", s.Index).
		Int64("offset", pos).
		Msg("Playback started")
}

// fill moves pending samples into the ring, then feeds chunks to the
// decoder while the session plays and the ring has room for another chunk.
// A chunk is only read once nothing is pending, so decoded audio is never
// pushed into a full ring.
func (t *DecodeTask) fill() {
	for !t.mailbox.pending() {
		if !t.flushPending() {
			return
		}
		if t.session == nil || !t.session.Playing() || t.ring.Free() < t.opts.MinFree {
			return
		}

		buf := t.chunk
		if t.end >= 0 {
			left := t.end - t.session.Position()
			if left <= 0 {
				t.finish(nil)
				return
			}
			if left < int64(len(buf)) {
				buf = buf[:left]
			}
		}

		n, err := t.file.Read(buf)
		if n > 0 {
			t.session.position.Add(int64(n))
			if _, werr := t.dec.Write(buf[:n]); werr != nil {
				if errors.Is(werr, io.EOF) {
					t.finish(nil)
				} else {
					log.Warn().Err(werr).Str("song", t.session.Song.Path).Msg("Decode error, ending song")
					t.finish(fmt.Errorf("%w: %v", ErrDecode, werr))
				}
				return
			}
		}
		if errors.Is(err, io.EOF) {
			t.finish(nil)
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("song", t.session.Song.Path).Msg("Read error, ending song")
			t.finish(fmt.Errorf("%w: %v", ErrStorage, err))
			return
		}
	}
}

func (t *DecodeTask) onPCM(samples []int16, format decoder.Format) {
	if len(t.pending) == 0 {
		n := min(len(samples), t.ring.Free()) &^ 1
		t.ring.Push(samples[:n])
		samples = samples[n:]
	}
	t.pending = append(t.pending, samples...)
	if format != t.format {
		t.format = format
		if t.status != nil && t.dec != nil {
			t.status.UpdateFormat(format.SampleRate, format.BitDepth, format.NumChannels, t.dec.Codec())
		}
	}
}

// flushPending pushes as many pending samples as the ring has room for and
// reports whether none are left.
func (t *DecodeTask) flushPending() bool {
	if len(t.pending) == 0 {
		return true
	}
	n := min(len(t.pending), t.ring.Free()) &^ 1
	if n > 0 {
		t.ring.Push(t.pending[:n])
		t.pending = t.pending[:copy(t.pending, t.pending[n:])]
	}
	return len(t.pending) == 0
}

// finish ends the current song normally. Buffered and pending audio keeps
// playing.
func (t *DecodeTask) finish(cause error) {
	s := t.session
	if err := t.dec.End(); err != nil && cause == nil {
		log.Debug().Err(err).Str("song", s.Song.Path).Msg("Decoder flush failed")
	}
	t.closeFile()
	t.session, t.dec, t.end = nil, nil, -1
	s.playing.Store(false)

	log.Info().Str("song", s.Song.Path).Int64("offset", s.Position()).Msg("Playback finished")
	t.emit(Completion{SessionID: s.ID, Index: s.Index, Song: s.Song, Err: cause})
}

// fail reports a session that could not be started.
func (t *DecodeTask) fail(s *Session, cause error) {
	s.playing.Store(false)
	t.emit(Completion{SessionID: s.ID, Index: s.Index, Song: s.Song, Err: cause})
}

// halt abandons the current song: end the decoder, close the file, clear
// the ring.
func (t *DecodeTask) halt() {
	if t.dec != nil {
		if err := t.dec.End(); err != nil {
			log.Debug().Err(err).Msg("Decoder end on halt")
		}
		t.dec = nil
	}
	t.closeFile()
	if t.session != nil {
		t.session.playing.Store(false)
		t.session = nil
	}
	t.end = -1
	t.pending = t.pending[:0]
	t.ring.Clear()
}

func (t *DecodeTask) closeFile() {
	if t.file == nil {
		return
	}
	if err := t.file.Close(); err != nil {
		log.Debug().Err(err).Msg("Failed to close song file")
	}
	t.file = nil
}

func (t *DecodeTask) emit(c Completion) {
	select {
	case t.completions <- c:
	default:
		log.Warn().Str("song", c.Song.Path).Msg("Completion dropped, queue full")
	}
}
