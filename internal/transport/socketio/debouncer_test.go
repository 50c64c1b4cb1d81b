package socketio

import (
	"sync/atomic"
	"testing"
	"time"
)

func newCountingDebouncer() (*BroadcastDebouncer, *int32, *int32) {
	var stateCalls, playlistCalls int32
	d := NewBroadcastDebouncer(50*time.Millisecond,
		func() { atomic.AddInt32(&stateCalls, 1) },
		func() { atomic.AddInt32(&playlistCalls, 1) },
	)
	return d, &stateCalls, &playlistCalls
}

func TestDebouncerRapidEventsCollapseToOne(t *testing.T) {
	d, stateCalls, playlistCalls := newCountingDebouncer()
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Trigger(EventPlayback)
	}
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(stateCalls); got != 1 {
		t.Errorf("expected 1 state callback, got %d", got)
	}
	if got := atomic.LoadInt32(playlistCalls); got != 0 {
		t.Errorf("expected 0 playlist callbacks, got %d", got)
	}
}

func TestDebouncerSpacedEventsExtendWindow(t *testing.T) {
	d, stateCalls, _ := newCountingDebouncer()
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Trigger(EventLink)
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(stateCalls); got != 1 {
		t.Errorf("expected 1 state callback, got %d", got)
	}
}

func TestDebouncerPlaylistTriggersBoth(t *testing.T) {
	d, stateCalls, playlistCalls := newCountingDebouncer()
	defer d.Stop()

	d.Trigger(EventApp)
	d.Trigger(EventPlaylist)
	d.Trigger(EventLink)
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(stateCalls); got != 1 {
		t.Errorf("expected 1 state callback, got %d", got)
	}
	if got := atomic.LoadInt32(playlistCalls); got != 1 {
		t.Errorf("expected 1 playlist callback, got %d", got)
	}
}

func TestDebouncerUnknownEventIgnored(t *testing.T) {
	d, stateCalls, _ := newCountingDebouncer()
	defer d.Stop()

	d.Trigger(Event("volume"))
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(stateCalls); got != 0 {
		t.Errorf("expected 0 state callbacks, got %d", got)
	}
}

func TestDebouncerSeparateWindowsFireIndependently(t *testing.T) {
	d, stateCalls, _ := newCountingDebouncer()
	defer d.Stop()

	d.Trigger(EventApp)
	time.Sleep(100 * time.Millisecond)
	d.Trigger(EventApp)
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(stateCalls); got != 2 {
		t.Errorf("expected 2 state callbacks, got %d", got)
	}
}

func TestDebouncerStopPreventsCallbacks(t *testing.T) {
	d, stateCalls, _ := newCountingDebouncer()

	d.Trigger(EventApp)
	d.Stop()
	d.Trigger(EventApp)
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(stateCalls); got != 0 {
		t.Errorf("expected 0 state callbacks after stop, got %d", got)
	}
}
