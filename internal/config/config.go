// Package config holds the runtime settings of the pocket player.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full runtime configuration. It is filled from command line
// flags on top of Default.
type Config struct {
	// LibraryDir is the root of the Artist/Album/Song tree.
	LibraryDir string
	// DataDir holds the peer database.
	DataDir string
	// SampleSong is played once after an automatic connect. Relative to
	// LibraryDir. Empty disables it.
	SampleSong string

	Port         int
	TickInterval time.Duration

	// RingCapacity is the ring buffer size in samples.
	RingCapacity  int
	LowWaterRatio float64
	ChunkSize     int
	MinFree       int
	// OutputBuffer is the oto driver buffer length.
	OutputBuffer time.Duration
	SampleRate   int

	ConnectTimeout   time.Duration
	ReconnectTimeout time.Duration
	SampleTimeout    time.Duration

	// Adapter is the BlueZ adapter name, e.g. hci0.
	Adapter string
	Debug   bool
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		LibraryDir:       "/media/music",
		DataDir:          "/var/lib/stellar-pocket",
		SampleSong:       "",
		Port:             3001,
		TickInterval:     20 * time.Millisecond,
		RingCapacity:     16384,
		LowWaterRatio:    0.25,
		ChunkSize:        1024,
		MinFree:          12288,
		OutputBuffer:     100 * time.Millisecond,
		SampleRate:       44100,
		ConnectTimeout:   15 * time.Second,
		ReconnectTimeout: 15 * time.Second,
		SampleTimeout:    20 * time.Second,
		Adapter:          "hci0",
	}
}

// DatabasePath returns the sqlite file inside DataDir.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "pocket.db")
}

// SamplePath returns the sample song's path relative to the library, or "".
func (c Config) SamplePath() string {
	if c.SampleSong == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(c.SampleSong))
}

// Validate checks ranges and cross-field constraints.
func (c Config) Validate() error {
	switch {
	case c.LibraryDir == "":
		return fmt.Errorf("%w: library dir is required", ErrInvalid)
	case c.DataDir == "":
		return fmt.Errorf("%w: data dir is required", ErrInvalid)
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	case c.TickInterval <= 0:
		return fmt.Errorf("%w: tick interval must be positive", ErrInvalid)
	case c.RingCapacity < 2 || c.RingCapacity%2 != 0:
		return fmt.Errorf("%w: ring capacity %d must be a positive even number of samples", ErrInvalid, c.RingCapacity)
	case c.LowWaterRatio <= 0 || c.LowWaterRatio >= 1:
		return fmt.Errorf("%w: low water ratio %v must be between 0 and 1", ErrInvalid, c.LowWaterRatio)
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalid)
	case c.MinFree <= 0 || c.MinFree > c.RingCapacity:
		return fmt.Errorf("%w: min free %d must be within the ring capacity %d", ErrInvalid, c.MinFree, c.RingCapacity)
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalid)
	case c.OutputBuffer < 0:
		return fmt.Errorf("%w: output buffer must not be negative", ErrInvalid)
	case c.ConnectTimeout <= 0 || c.ReconnectTimeout <= 0 || c.SampleTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalid)
	case c.Adapter == "":
		return fmt.Errorf("%w: adapter is required", ErrInvalid)
	case filepath.IsAbs(c.SampleSong):
		return fmt.Errorf("%w: sample song must be relative to the library", ErrInvalid)
	}
	return nil
}
