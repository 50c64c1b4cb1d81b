package library

// Playlist is the ordered song list of the album being played.
type Playlist []Song

// At returns the song at index i.
func (p Playlist) At(i int) (Song, bool) {
	if i < 0 || i >= len(p) {
		return Song{}, false
	}
	return p[i], true
}

// Next returns the index after i, wrapping to 0 past the last song.
func (p Playlist) Next(i int) int {
	if len(p) == 0 {
		return 0
	}
	i++
	if i >= len(p) || i < 0 {
		return 0
	}
	return i
}

// Prev returns the index before i, wrapping to the last song.
func (p Playlist) Prev(i int) int {
	if len(p) == 0 {
		return 0
	}
	i--
	if i < 0 || i >= len(p) {
		return len(p) - 1
	}
	return i
}
