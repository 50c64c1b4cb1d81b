package playback

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/edumarques81/stellar-pocket/internal/domain/library"
)

// Session is one play request of one song. It is replaced on every song
// change and dropped on stop. Position and the flags are shared between the
// orchestrator and the decode task.
type Session struct {
	ID    string
	Index int
	Song  library.Song

	position      atomic.Int64
	playing       atomic.Bool
	stopRequested atomic.Bool
}

func newSession(index int, song library.Song) *Session {
	return &Session{
		ID:    uuid.NewString(),
		Index: index,
		Song:  song,
	}
}

// Position returns the byte offset of the next unread byte of the song file.
func (s *Session) Position() int64 { return s.position.Load() }

// Playing reports whether the decode task should keep filling for this session.
func (s *Session) Playing() bool { return s.playing.Load() }

// StopRequested reports whether Stop was called for this session.
func (s *Session) StopRequested() bool { return s.stopRequested.Load() }

// SessionSnapshot is a read-only copy of a Session.
type SessionSnapshot struct {
	ID            string       `json:"id"`
	Index         int          `json:"index"`
	Song          library.Song `json:"song"`
	Position      int64        `json:"position"`
	Playing       bool         `json:"playing"`
	StopRequested bool         `json:"stopRequested"`
}

// Snapshot copies the session.
func (s *Session) Snapshot() SessionSnapshot {
	return SessionSnapshot{
		ID:            s.ID,
		Index:         s.Index,
		Song:          s.Song,
		Position:      s.Position(),
		Playing:       s.Playing(),
		StopRequested: s.StopRequested(),
	}
}
