package bridge

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/robbinhan/rssh/internal/term"
)

const writerQueueLen = 64

var errWriterClosed = errors.New("ordered writer is closed")

// OrderedWriter serializes all writes to the local terminal through a
// single consumer goroutine. Producers enqueue frames in call order and
// the drain goroutine replays them one at a time, taking the terminal
// ownership lock per frame. Two frames enqueued from the same goroutine
// therefore reach the terminal in enqueue order, and a transfer helper
// holding the ownership lock stalls the queue instead of interleaving
// with helper output.
type OrderedWriter struct {
	dst io.Writer
	tty *term.Owner

	queue chan []byte
	done  chan struct{}

	// mu serializes Close against in-flight Writes so a late Write can
	// never hit a closed queue channel.
	mu        sync.RWMutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// NewOrderedWriter starts the drain goroutine. dst is typically the
// local terminal; tty guards exclusive terminal access.
func NewOrderedWriter(dst io.Writer, tty *term.Owner) *OrderedWriter {
	w := &OrderedWriter{
		dst:   dst,
		tty:   tty,
		queue: make(chan []byte, writerQueueLen),
		done:  make(chan struct{}),
	}
	go w.drain()
	return w
}

func (w *OrderedWriter) drain() {
	defer close(w.done)
	for frame := range w.queue {
		release := w.tty.Acquire()
		_, err := w.dst.Write(frame)
		release()
		if err != nil {
			w.setErr(err)
		}
	}
}

func (w *OrderedWriter) setErr(err error) {
	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
}

// Write enqueues a copy of p for the drain goroutine. It blocks when
// the queue is full, which backpressures the remote pump instead of
// dropping output.
func (w *OrderedWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	frame := make([]byte, len(p))
	copy(frame, p)

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed.Load() {
		return 0, errWriterClosed
	}
	w.queue <- frame
	return len(p), nil
}

// Close stops accepting frames, waits for the queue to drain, and
// returns the first write error observed, if any. Idempotent.
func (w *OrderedWriter) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed.Store(true)
		close(w.queue)
		w.mu.Unlock()
	})
	<-w.done
	return w.Err()
}

// Err returns the first error the drain goroutine hit, or nil.
func (w *OrderedWriter) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}
