package socketio

import (
	"sync"
	"time"
)

// Event names a source of state changes.
type Event string

const (
	EventApp      Event = "app"      // state machine transition or menu move
	EventLink     Event = "link"     // link manager transition
	EventPlayback Event = "playback" // session progress
	EventPlaylist Event = "playlist" // playlist replaced
)

// BroadcastDebouncer collapses bursts of change events into one broadcast
// per affected payload (state and/or playlist).
type BroadcastDebouncer struct {
	window           time.Duration
	stateCallback    func()
	playlistCallback func()

	mu              sync.Mutex
	pendingState    bool
	pendingPlaylist bool
	timer           *time.Timer
	stopped         bool
}

// NewBroadcastDebouncer creates a debouncer with the given window.
// stateCallback runs for every event, playlistCallback only for EventPlaylist.
func NewBroadcastDebouncer(window time.Duration, stateCallback, playlistCallback func()) *BroadcastDebouncer {
	return &BroadcastDebouncer{
		window:           window,
		stateCallback:    stateCallback,
		playlistCallback: playlistCallback,
	}
}

// Trigger records an event. Callbacks run once the window elapses without
// further triggers.
func (d *BroadcastDebouncer) Trigger(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	switch ev {
	case EventApp, EventLink, EventPlayback:
		d.pendingState = true
	case EventPlaylist:
		d.pendingState = true
		d.pendingPlaylist = true
	default:
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *BroadcastDebouncer) flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	doState := d.pendingState
	doPlaylist := d.pendingPlaylist
	d.pendingState = false
	d.pendingPlaylist = false
	d.mu.Unlock()

	if doState && d.stateCallback != nil {
		d.stateCallback()
	}
	if doPlaylist && d.playlistCallback != nil {
		d.playlistCallback()
	}
}

// Stop prevents any further callbacks.
func (d *BroadcastDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pendingState = false
	d.pendingPlaylist = false
}
