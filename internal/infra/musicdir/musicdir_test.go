package musicdir_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/edumarques81/stellar-pocket/internal/domain/library"
	"github.com/edumarques81/stellar-pocket/internal/infra/musicdir"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newLibrary(t *testing.T) *musicdir.Dir {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "Beta/Second/01 Intro.mp3", "mp3")
	writeFile(t, root, "Alpha/First/02 Two.wav", "two")
	writeFile(t, root, "Alpha/First/01 One.mp3", "one")
	writeFile(t, root, "Alpha/First/cover.jpg", "jpg")
	writeFile(t, root, "Alpha/First/.hidden.mp3", "x")
	writeFile(t, root, "Alpha/.Trash/x.mp3", "x")
	writeFile(t, root, ".cache/Thing/x.mp3", "x")
	writeFile(t, root, "readme.txt", "x")
	return musicdir.New(root)
}

func TestDir_Listings(t *testing.T) {
	d := newLibrary(t)

	artists, err := d.Artists()
	if err != nil {
		t.Fatalf("Artists() error = %v", err)
	}
	if want := []string{"Alpha", "Beta"}; !reflect.DeepEqual(artists, want) {
		t.Errorf("Artists() = %v, want %v", artists, want)
	}

	albums, err := d.Albums("Alpha")
	if err != nil {
		t.Fatalf("Albums() error = %v", err)
	}
	if want := []string{"First"}; !reflect.DeepEqual(albums, want) {
		t.Errorf("Albums() = %v, want %v", albums, want)
	}

	songs, err := d.Songs("Alpha", "First")
	if err != nil {
		t.Fatalf("Songs() error = %v", err)
	}
	want := []library.Song{
		{Path: "Alpha/First/01 One.mp3", Artist: "Alpha", Album: "First", Title: "01 One", Kind: library.Compressed},
		{Path: "Alpha/First/02 Two.wav", Artist: "Alpha", Album: "First", Title: "02 Two", Kind: library.Raw},
	}
	if !reflect.DeepEqual(songs, want) {
		t.Errorf("Songs() = %+v, want %+v", songs, want)
	}
}

func TestDir_RejectsEscapes(t *testing.T) {
	d := newLibrary(t)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"albums dotdot", func() error { _, err := d.Albums(".."); return err }},
		{"albums nested", func() error { _, err := d.Albums("Alpha/First"); return err }},
		{"songs dotdot", func() error { _, err := d.Songs("Alpha", "../Beta"); return err }},
		{"open dotdot", func() error { _, err := d.Open(library.Song{Path: "../etc/passwd"}); return err }},
		{"open absolute", func() error { _, err := d.Open(library.Song{Path: "/etc/passwd"}); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, musicdir.ErrOutsideLibrary) {
				t.Errorf("error = %v, want ErrOutsideLibrary", err)
			}
		})
	}
}

func TestDir_MissingArtist(t *testing.T) {
	d := newLibrary(t)
	if _, err := d.Albums("Nobody"); err == nil {
		t.Error("Albums() for a missing artist should fail")
	}
}

func TestDir_Open(t *testing.T) {
	d := newLibrary(t)

	f, err := d.Open(library.Song{Path: "Alpha/First/02 Two.wav"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	if _, err := f.Seek(1, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(f)
	if err != nil || string(data) != "wo" {
		t.Errorf("read %q, %v; want \"wo\"", data, err)
	}

	if _, err := d.Open(library.Song{Path: "Alpha/First/missing.mp3"}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open() missing = %v, want ErrNotExist", err)
	}
}

func TestDir_Song(t *testing.T) {
	d := newLibrary(t)

	song, err := d.Song("Beta/Second/01 Intro.mp3")
	if err != nil {
		t.Fatalf("Song() error = %v", err)
	}
	want := library.Song{Path: "Beta/Second/01 Intro.mp3", Artist: "Beta", Album: "Second", Title: "01 Intro", Kind: library.Compressed}
	if song != want {
		t.Errorf("Song() = %+v, want %+v", song, want)
	}

	if _, err := d.Song("Alpha/First/cover.jpg"); err == nil {
		t.Error("Song() should reject non-audio files")
	}
	if _, err := d.Song("Alpha/First/none.wav"); err == nil {
		t.Error("Song() should reject missing files")
	}
}
