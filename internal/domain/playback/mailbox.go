package playback

import "sync/atomic"

type requestKind int

const (
	requestPlay requestKind = iota
	requestStop
	requestHalt
)

func (k requestKind) String() string {
	switch k {
	case requestPlay:
		return "play"
	case requestStop:
		return "stop"
	default:
		return "halt"
	}
}

type request struct {
	kind    requestKind
	session *Session
	seek    int64
}

// mailbox holds at most one pending request. A post replaces whatever the
// decode task has not taken yet.
type mailbox struct {
	slot atomic.Pointer[request]
}

func (m *mailbox) post(r *request) { m.slot.Store(r) }

func (m *mailbox) take() *request { return m.slot.Swap(nil) }

func (m *mailbox) pending() bool { return m.slot.Load() != nil }

// wakeSignal coalesces wakeups: a notify while one is pending is dropped.
type wakeSignal chan struct{}

func newWakeSignal() wakeSignal { return make(wakeSignal, 1) }

func (w wakeSignal) notify() {
	select {
	case w <- struct{}{}:
	default:
	}
}
