package audio_test

import (
	"testing"

	"github.com/edumarques81/stellar-pocket/internal/audio"
)

func TestNewController(t *testing.T) {
	t.Run("starts idle with no format", func(t *testing.T) {
		ctrl := audio.NewController(audio.NewRingBuffer(16))
		status := ctrl.GetStatus()

		if status.Streaming {
			t.Error("expected streaming to be false initially")
		}
		if status.Format != nil {
			t.Error("expected format to be nil initially")
		}
		if status.Dropped != 0 {
			t.Errorf("expected no dropped samples, got %d", status.Dropped)
		}
	})

	t.Run("works without a ring buffer", func(t *testing.T) {
		ctrl := audio.NewController(nil)
		if ctrl.GetStatus().Dropped != 0 {
			t.Error("expected zero dropped without ring")
		}
	})
}

func TestUpdateFormat(t *testing.T) {
	tests := []struct {
		name          string
		sampleRate    int
		bitDepth      int
		channels      int
		codec         string
		expectChanged bool
	}{
		{"first mp3 format", 44100, 16, 2, audio.CodecMP3, true},
		{"same format again", 44100, 16, 2, audio.CodecMP3, false},
		{"sample rate change", 48000, 16, 2, audio.CodecMP3, true},
		{"mono source", 48000, 16, 1, audio.CodecMP3, true},
		{"codec change", 48000, 16, 1, audio.CodecPCM, true},
	}

	ctrl := audio.NewController(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := ctrl.UpdateFormat(tt.sampleRate, tt.bitDepth, tt.channels, tt.codec)
			if changed != tt.expectChanged {
				t.Errorf("changed = %v, want %v", changed, tt.expectChanged)
			}

			format := ctrl.GetStatus().Format
			if format == nil {
				t.Fatal("expected format to be set")
			}
			if format.SampleRate != tt.sampleRate {
				t.Errorf("SampleRate = %d, want %d", format.SampleRate, tt.sampleRate)
			}
			if format.Channels != tt.channels {
				t.Errorf("Channels = %d, want %d", format.Channels, tt.channels)
			}
			if format.Codec != tt.codec {
				t.Errorf("Codec = %q, want %q", format.Codec, tt.codec)
			}
		})
	}
}

func TestPlaybackStartStop(t *testing.T) {
	ctrl := audio.NewController(nil)

	ctrl.OnPlaybackStart()
	if !ctrl.GetStatus().Streaming {
		t.Error("expected streaming after OnPlaybackStart")
	}

	ctrl.OnPlaybackStop()
	if ctrl.GetStatus().Streaming {
		t.Error("expected not streaming after OnPlaybackStop")
	}
}

func TestStatusReportsDropped(t *testing.T) {
	ring := audio.NewRingBuffer(4)
	ctrl := audio.NewController(ring)

	ring.Push([]int16{1, 2, 3, 4, 5, 6})

	if got := ctrl.GetStatus().Dropped; got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
}

func TestFormatSampleRate(t *testing.T) {
	tests := []struct {
		rate int
		want string
	}{
		{44100, "44.1kHz"},
		{48000, "48kHz"},
		{8000, "8kHz"},
		{500, "500Hz"},
	}
	for _, tt := range tests {
		if got := audio.FormatSampleRate(tt.rate); got != tt.want {
			t.Errorf("FormatSampleRate(%d) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestFormatBitDepth(t *testing.T) {
	if got := audio.FormatBitDepth(16); got != "16-bit" {
		t.Errorf("FormatBitDepth(16) = %q, want %q", got, "16-bit")
	}
}
