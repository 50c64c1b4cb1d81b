// Package library defines songs and the artist/album/song hierarchy the
// player browses.
package library

import (
	"path/filepath"
	"strings"
)

// Kind distinguishes compressed from raw PCM songs.
type Kind int

const (
	Compressed Kind = iota // MPEG audio
	Raw                    // 16-bit PCM in a WAV container
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Compressed:
		return "compressed"
	case Raw:
		return "raw"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// KindFromPath classifies a file by extension.
func KindFromPath(path string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return Compressed, true
	case ".wav":
		return Raw, true
	default:
		return 0, false
	}
}

// Song is an immutable reference to a playable file.
type Song struct {
	Path   string `json:"path"` // relative to the library root
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Title  string `json:"title"`
	Kind   Kind   `json:"kind"`
}

// Scanner lists the library hierarchy.
type Scanner interface {
	Artists() ([]string, error)
	Albums(artist string) ([]string, error)
	Songs(artist, album string) ([]Song, error)
}
