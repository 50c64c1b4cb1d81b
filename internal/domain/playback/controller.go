package playback

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pocket/internal/audio"
	"github.com/edumarques81/stellar-pocket/internal/domain/library"
)

// resumePoint is the song and byte offset saved by Pause.
type resumePoint struct {
	index  int
	song   library.Song
	offset int64
}

// ResumeSnapshot is a read-only copy of the saved resume context.
type ResumeSnapshot struct {
	Index  int          `json:"index"`
	Song   library.Song `json:"song"`
	Offset int64        `json:"offset"`
}

// Snapshot is the playback state handed to UI consumers.
type Snapshot struct {
	Session  *SessionSnapshot  `json:"session"`
	Resume   *ResumeSnapshot   `json:"resume,omitempty"`
	Playlist library.Playlist  `json:"playlist"`
	Output   audio.AudioStatus `json:"output"`
}

// Controller is the public playback surface. All methods are non-blocking:
// they post requests to the decode task and return.
type Controller struct {
	mu        sync.Mutex
	task      *DecodeTask
	sink      Sink
	status    *audio.Controller
	session   *Session
	resume    *resumePoint
	playlist  library.Playlist
	streaming bool
}

// NewController creates a controller driving task. sink and status may be nil.
func NewController(task *DecodeTask, sink Sink, status *audio.Controller) *Controller {
	return &Controller{
		task:   task,
		sink:   sink,
		status: status,
	}
}

// SetPlaylist replaces the playlist used by PlayAt and end-of-song advance.
func (c *Controller) SetPlaylist(p library.Playlist) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playlist = p
}

// Playlist returns the current playlist.
func (c *Controller) Playlist() library.Playlist {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playlist
}

// Play requests song from seekOffset. An unconsumed earlier request is
// replaced.
func (c *Controller) Play(song library.Song, seekOffset int64) {
	c.mu.Lock()
	index := -1
	for i, s := range c.playlist {
		if s.Path == song.Path {
			index = i
			break
		}
	}
	c.play(index, song, seekOffset)
	c.mu.Unlock()
	c.startOutput()
}

// PlayAt plays the playlist entry at index.
func (c *Controller) PlayAt(index int, seekOffset int64) error {
	c.mu.Lock()
	song, ok := c.playlist.At(index)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoSong, index)
	}
	c.play(index, song, seekOffset)
	c.mu.Unlock()
	c.startOutput()
	return nil
}

// play must be called with c.mu held.
func (c *Controller) play(index int, song library.Song, seekOffset int64) {
	s := newSession(index, song)
	s.playing.Store(true)
	c.session = s
	c.resume = nil
	c.task.post(&request{kind: requestPlay, session: s, seek: seekOffset})

	log.Debug().
		Str("song", song.Path).
		Int("index", index).
		Int64("offset", seekOffset).
		Str("session", s.ID).
		Msg("Play requested")
}

// Stop ends playback. It does nothing when no song is playing.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.session
	if s == nil || !s.Playing() {
		c.mu.Unlock()
		return
	}
	s.stopRequested.Store(true)
	s.playing.Store(false)
	c.session = nil
	c.resume = nil
	c.task.post(&request{kind: requestStop})
	c.mu.Unlock()

	log.Debug().Str("song", s.Song.Path).Msg("Stop requested")
	c.stopOutput()
}

// Pause halts decoding and saves the current song and byte offset so Resume
// can continue from there. It reports whether anything was playing.
func (c *Controller) Pause() bool {
	c.mu.Lock()
	s := c.session
	if s == nil || !s.Playing() {
		c.mu.Unlock()
		return false
	}
	pos := s.Position()
	s.playing.Store(false)
	c.resume = &resumePoint{index: s.Index, song: s.Song, offset: pos}
	c.task.post(&request{kind: requestHalt})
	c.mu.Unlock()

	log.Info().Str("song", s.Song.Path).Int64("offset", pos).Msg("Playback paused")
	c.stopOutput()
	return true
}

// Resume replays the paused song from the saved offset. It reports whether
// a resume context existed.
func (c *Controller) Resume() bool {
	c.mu.Lock()
	r := c.resume
	if r == nil {
		c.mu.Unlock()
		return false
	}
	c.play(r.index, r.song, r.offset)
	c.mu.Unlock()

	log.Info().Str("song", r.song.Path).Int64("offset", r.offset).Msg("Playback resumed")
	c.startOutput()
	return true
}

// DropResume discards the resume context and the halted session.
func (c *Controller) DropResume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resume != nil {
		log.Info().Str("song", c.resume.song.Path).Msg("Resume context discarded")
	}
	c.resume = nil
	if c.session != nil && !c.session.Playing() {
		c.session = nil
	}
}

// HasResume reports whether a resume context is saved.
func (c *Controller) HasResume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resume != nil
}

// Session returns the current session, or nil.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// NextCompletion returns the next completion of the current session without
// blocking. Completions of replaced sessions are discarded.
func (c *Controller) NextCompletion() (Completion, bool) {
	for {
		select {
		case comp := <-c.task.completions:
			c.mu.Lock()
			current := c.session != nil && c.session.ID == comp.SessionID
			c.mu.Unlock()
			if current {
				return comp, true
			}
			log.Debug().Str("session", comp.SessionID).Msg("Stale completion ignored")
		default:
			return Completion{}, false
		}
	}
}

// Snapshot returns a copy of the playback state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var snap Snapshot
	if c.session != nil {
		s := c.session.Snapshot()
		snap.Session = &s
	}
	if c.resume != nil {
		snap.Resume = &ResumeSnapshot{Index: c.resume.index, Song: c.resume.song, Offset: c.resume.offset}
	}
	snap.Playlist = c.playlist
	if c.status != nil {
		snap.Output = c.status.GetStatus()
	}
	return snap
}

func (c *Controller) startOutput() {
	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return
	}
	c.streaming = true
	c.mu.Unlock()

	if c.sink != nil {
		if err := c.sink.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start output stream")
		}
	}
	if c.status != nil {
		c.status.OnPlaybackStart()
	}
}

func (c *Controller) stopOutput() {
	c.mu.Lock()
	if !c.streaming {
		c.mu.Unlock()
		return
	}
	c.streaming = false
	c.mu.Unlock()

	if c.sink != nil {
		if err := c.sink.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop output stream")
		}
	}
	if c.status != nil {
		c.status.OnPlaybackStop()
	}
}
