package term

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by NonBlockReader.Read when no data is
// available. It is not a failure — callers skip the read and try again
// on the next loop iteration.
var ErrWouldBlock = errors.New("read would block")

// NonBlockReader reads a file descriptor in non-blocking mode.
//
// The descriptor's original flags are captured at construction and put
// back by Restore. Exactly one NonBlockReader may own a descriptor at a
// time — two readers of the same terminal fd is explicitly disallowed.
type NonBlockReader struct {
	mu        sync.Mutex
	fd        int
	origFlags int
	restored  bool
}

// NewNonBlockReader switches fd to non-blocking mode and returns a reader
// for it. The caller must call Restore before the process exits so the
// shell inherits a sane descriptor.
func NewNonBlockReader(fd int) (*NonBlockReader, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return nil, &TerminalError{Op: "getfl", Err: err}
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_NONBLOCK); err != nil {
		return nil, &TerminalError{Op: "setfl", Err: err}
	}
	return &NonBlockReader{fd: fd, origFlags: flags}, nil
}

// Read attempts a non-blocking read into p.
//
// Outcomes:
//
//	n > 0, nil           — data
//	0, ErrWouldBlock     — nothing available right now
//	0, io.EOF            — descriptor closed by the other side
//	0, other error       — descriptor fault
func (r *NonBlockReader) Read(p []byte) (int, error) {
	n, err := unix.Read(r.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("read fd %d: %w", r.fd, err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Restore puts the descriptor's original flags back. Idempotent.
func (r *NonBlockReader) Restore() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.restored {
		return nil
	}
	r.restored = true

	if _, err := unix.FcntlInt(uintptr(r.fd), unix.F_SETFL, r.origFlags); err != nil {
		return &TerminalError{Op: "setfl restore", Err: err}
	}
	return nil
}
