package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// channelBufSize matches the remote-read buffer of the session loop.
const channelBufSize = 4096

// framesQueueLen bounds how many inbound chunks may be buffered while the
// consumer is busy (e.g. a transfer helper holds the terminal).
const framesQueueLen = 64

// Channel is an abstract bidirectional byte stream bound to one remote
// shell. It is owned exclusively by the transport that created it and by
// extension by the single session bridge instance.
//
// A Channel is closed exactly once — either by the bridge on shutdown or
// implicitly by remote EOF — and is never read or written afterwards.
type Channel interface {
	io.Writer

	// TryRead performs a non-blocking read of inbound data.
	// Returns ErrWouldBlock when nothing is available and io.EOF after
	// the remote side closed. Used by polling loops.
	TryRead(p []byte) (int, error)

	// Frames delivers inbound chunks for select-based loops. The channel
	// is closed on remote EOF.
	Frames() <-chan []byte

	// Done is closed once the remote side has finished and the exit
	// status is known.
	Done() <-chan struct{}

	// ExitStatus returns the remote exit code. Valid only after Done.
	ExitStatus() int

	Close() error
}

// ErrWouldBlock is returned by Channel.TryRead when no inbound data is
// buffered. Not a failure — the polling loop just moves on.
var ErrWouldBlock = errors.New("channel read would block")

// shellChannel pumps a remote stdout into a frame queue so the consumer
// can read it either by polling (TryRead) or by selecting (Frames).
type shellChannel struct {
	stdin  io.WriteCloser
	frames chan []byte
	done   chan struct{}
	quit   chan struct{} // closed by Close; releases a pump blocked on a full queue

	pending []byte // partial frame carried between TryRead calls

	closed    atomic.Bool
	closeOnce sync.Once
	closeAll  func() error

	exit atomic.Int32
}

// newShellChannel wires a channel over raw stdin/stdout streams.
//
// wait blocks until the remote command finishes and returns its exit
// code; closeAll tears down the underlying session and connection.
// The pump goroutine starts immediately.
func newShellChannel(stdin io.WriteCloser, stdout io.Reader, wait func() int, closeAll func() error) *shellChannel {
	c := &shellChannel{
		stdin:    stdin,
		frames:   make(chan []byte, framesQueueLen),
		done:     make(chan struct{}),
		quit:     make(chan struct{}),
		closeAll: closeAll,
	}
	c.exit.Store(-1)

	go c.pump(stdout, wait)
	return c
}

// pump moves remote stdout into the frame queue until EOF or error,
// then records the exit status and signals completion.
func (c *shellChannel) pump(stdout io.Reader, wait func() int) {
	buf := make([]byte, channelBufSize)
loop:
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			select {
			case c.frames <- frame:
			case <-c.quit:
				// Consumer is gone; stop pumping instead of blocking
				// on a queue nobody drains.
				break loop
			}
		}
		if err != nil {
			break
		}
	}
	close(c.frames)
	if wait != nil {
		c.exit.Store(int32(wait()))
	} else {
		c.exit.Store(0)
	}
	close(c.done)
}

func (c *shellChannel) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, &ChannelError{Op: "write", Err: fmt.Errorf("channel already closed")}
	}
	return c.stdin.Write(p)
}

func (c *shellChannel) TryRead(p []byte) (int, error) {
	if len(c.pending) == 0 {
		select {
		case frame, ok := <-c.frames:
			if !ok {
				return 0, io.EOF
			}
			c.pending = frame
		default:
			return 0, ErrWouldBlock
		}
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *shellChannel) Frames() <-chan []byte { return c.frames }

func (c *shellChannel) Done() <-chan struct{} { return c.done }

func (c *shellChannel) ExitStatus() int { return int(c.exit.Load()) }

// Close tears the channel down. Idempotent; only the first call touches
// the underlying session.
func (c *shellChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.quit)
		c.stdin.Close()
		if c.closeAll != nil {
			err = c.closeAll()
		}
	})
	return err
}
