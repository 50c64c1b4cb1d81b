// Package musicdir serves the library from an Artist/Album/Song directory
// tree.
package musicdir

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pocket/internal/domain/library"
)

// ErrOutsideLibrary is returned for song paths that leave the library root.
var ErrOutsideLibrary = errors.New("path outside library")

// Dir is a library rooted at a directory. It implements library.Scanner and
// playback.Storage. Listings are read on every call.
type Dir struct {
	root string
	fsys fs.FS
}

// New creates a Dir rooted at root.
func New(root string) *Dir {
	return &Dir{root: root, fsys: os.DirFS(root)}
}

// Root returns the library directory.
func (d *Dir) Root() string { return d.root }

// Artists lists the artist directories.
func (d *Dir) Artists() ([]string, error) {
	return d.dirs(".")
}

// Albums lists the album directories of artist.
func (d *Dir) Albums(artist string) ([]string, error) {
	if !validName(artist) {
		return nil, fmt.Errorf("%w: %q", ErrOutsideLibrary, artist)
	}
	return d.dirs(artist)
}

// Songs lists the playable files of an album in name order.
func (d *Dir) Songs(artist, album string) ([]library.Song, error) {
	if !validName(artist) || !validName(album) {
		return nil, fmt.Errorf("%w: %q/%q", ErrOutsideLibrary, artist, album)
	}

	dir := path.Join(artist, album)
	entries, err := fs.ReadDir(d.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read album %s: %w", dir, err)
	}

	var songs []library.Song
	for _, e := range entries {
		if e.IsDir() || hidden(e.Name()) {
			continue
		}
		kind, ok := library.KindFromPath(e.Name())
		if !ok {
			continue
		}
		songs = append(songs, library.Song{
			Path:   path.Join(dir, e.Name()),
			Artist: artist,
			Album:  album,
			Title:  title(e.Name()),
			Kind:   kind,
		})
	}
	sort.Slice(songs, func(i, j int) bool { return songs[i].Path < songs[j].Path })
	return songs, nil
}

// Song describes a single file by its library-relative path.
func (d *Dir) Song(rel string) (library.Song, error) {
	rel = filepath.ToSlash(rel)
	if !fs.ValidPath(rel) {
		return library.Song{}, fmt.Errorf("%w: %q", ErrOutsideLibrary, rel)
	}
	kind, ok := library.KindFromPath(rel)
	if !ok {
		return library.Song{}, fmt.Errorf("unsupported file type: %s", rel)
	}
	if _, err := fs.Stat(d.fsys, rel); err != nil {
		return library.Song{}, fmt.Errorf("failed to stat %s: %w", rel, err)
	}

	song := library.Song{Path: rel, Title: title(path.Base(rel)), Kind: kind}
	if parts := strings.Split(rel, "/"); len(parts) == 3 {
		song.Artist, song.Album = parts[0], parts[1]
	}
	return song, nil
}

// Open implements playback.Storage.
func (d *Dir) Open(song library.Song) (io.ReadSeekCloser, error) {
	if !fs.ValidPath(song.Path) {
		return nil, fmt.Errorf("%w: %q", ErrOutsideLibrary, song.Path)
	}
	f, err := os.Open(filepath.Join(d.root, filepath.FromSlash(song.Path)))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (d *Dir) dirs(dir string) ([]string, error) {
	entries, err := fs.ReadDir(d.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || hidden(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	log.Debug().Str("dir", dir).Int("count", len(names)).Msg("Listed library directory")
	return names, nil
}

func validName(name string) bool {
	return name != "" && fs.ValidPath(name) && !strings.Contains(name, "/")
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func title(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}
