// Package playback drives song playback: a decode task fills the shared ring
// buffer from storage, an output feed drains it for the wireless sink, and a
// controller coordinates both from the orchestrator.
package playback

import (
	"errors"
	"io"

	"github.com/edumarques81/stellar-pocket/internal/audio"
	"github.com/edumarques81/stellar-pocket/internal/domain/library"
)

var (
	// ErrStorage is reported when a song cannot be opened or read.
	ErrStorage = errors.New("song unavailable")
	// ErrDecode is reported when a song cannot be decoded past some point.
	ErrDecode = errors.New("song could not be decoded")
	// ErrNoSong is returned by PlayAt for an index outside the playlist.
	ErrNoSong = errors.New("no song at index")
)

// Storage opens song files.
type Storage interface {
	Open(song library.Song) (io.ReadSeekCloser, error)
}

// Sink is the PCM side of the wireless audio device. It pulls frames from
// the registered source on its own real-time goroutine.
type Sink interface {
	SetSource(fill func(dst []audio.Frame) int)
	Start() error
	Stop() error
}

// Completion reports that a session's song finished, failed to open or
// stopped decoding.
type Completion struct {
	SessionID string
	Index     int
	Song      library.Song
	Err       error
}
