package decoder

import (
	"errors"
	"io"
	"sync"
)

var errFeedClosed = errors.New("feed closed")

// feedReader turns pushed byte chunks into an io.Reader for a pull decoder
// running on its own goroutine. write returns once the reader has consumed
// the chunk and is blocked asking for more, so every frame completed by the
// chunk has been decoded by then.
type feedReader struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	closed  bool // no more writes; Read returns io.EOF once drained
	waiting bool // reader is blocked on an empty buffer
	done    bool // reader goroutine exited
	err     error
}

func newFeedReader() *feedReader {
	f := &feedReader{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Read implements io.Reader for the decoder goroutine.
func (f *feedReader) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.buf) == 0 && !f.closed {
		f.waiting = true
		f.cond.Broadcast()
		f.cond.Wait()
	}
	f.waiting = false

	if len(f.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}

func (f *feedReader) write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done {
		return f.failure()
	}
	if f.closed {
		return errFeedClosed
	}

	f.buf = append(f.buf, p...)
	f.cond.Broadcast()
	for !f.done && (len(f.buf) > 0 || !f.waiting) {
		f.cond.Wait()
	}
	if f.done {
		return f.failure()
	}
	return nil
}

// close marks the end of input.
func (f *feedReader) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
}

// finish is called by the reader goroutine when it exits.
func (f *feedReader) finish(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = true
	f.err = err
	f.cond.Broadcast()
}

func (f *feedReader) failure() error {
	if f.err != nil {
		return f.err
	}
	return io.EOF
}
