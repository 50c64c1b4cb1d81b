package app

// Press is a button press.
type Press int

const (
	NoPress Press = iota
	ShortPress
	LongPress
)

// String returns the press name.
func (p Press) String() string {
	switch p {
	case ShortPress:
		return "short"
	case LongPress:
		return "long"
	default:
		return "none"
	}
}

// Input yields at most one press per call without blocking.
type Input interface {
	Read() Press
}

// InputQueue is an Input fed from other goroutines.
type InputQueue struct {
	ch chan Press
}

// NewInputQueue creates a queue holding up to size unread presses.
func NewInputQueue(size int) *InputQueue {
	if size < 1 {
		size = 1
	}
	return &InputQueue{ch: make(chan Press, size)}
}

// Push queues p. It reports false when the queue is full and p was dropped.
func (q *InputQueue) Push(p Press) bool {
	select {
	case q.ch <- p:
		return true
	default:
		return false
	}
}

// Read implements Input.
func (q *InputQueue) Read() Press {
	select {
	case p := <-q.ch:
		return p
	default:
		return NoPress
	}
}
