package term

import (
	"fmt"
	"sync"

	"github.com/mattn/go-isatty"
	xterm "golang.org/x/term"
)

// TerminalError wraps failures to query or change local terminal attributes.
// Raised before any remote I/O begins — the terminal is never left
// half-modified.
type TerminalError struct {
	Op  string
	Err error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("terminal %s: %v", e.Op, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// Seams for tests — the package tests swap these to count enter/restore
// calls without a real terminal.
var (
	makeRaw      = xterm.MakeRaw
	restoreState = xterm.Restore
	getSize      = xterm.GetSize
)

// Guard captures the terminal's prior mode on acquisition and restores it
// byte-for-byte on release. At most one Guard may be live per process —
// the local terminal is a singleton resource.
//
// Release is idempotent: the second and later calls are no-ops. The caller
// must ensure Release runs on every exit path, including signal-triggered
// cancellation (defer it before entering any loop).
type Guard struct {
	mu       sync.Mutex
	fd       int
	prev     *xterm.State
	released bool
}

// Acquire captures the current attributes of fd and switches it to raw mode
// (no echo, no line buffering, no driver signal translation).
//
// Returns a *TerminalError when fd is not a terminal or its attributes
// cannot be read or set. On error the terminal is untouched.
func Acquire(fd int) (*Guard, error) {
	if !isatty.IsTerminal(uintptr(fd)) && !isatty.IsCygwinTerminal(uintptr(fd)) {
		return nil, &TerminalError{Op: "acquire", Err: fmt.Errorf("fd %d is not a terminal", fd)}
	}

	prev, err := makeRaw(fd)
	if err != nil {
		return nil, &TerminalError{Op: "acquire", Err: err}
	}

	return &Guard{fd: fd, prev: prev}, nil
}

// Release restores the attributes captured by Acquire. Safe to call more
// than once — only the first call touches the terminal.
func (g *Guard) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return nil
	}
	g.released = true

	if err := restoreState(g.fd, g.prev); err != nil {
		return &TerminalError{Op: "restore", Err: err}
	}
	return nil
}

// Released reports whether the guard has already restored the terminal.
func (g *Guard) Released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}

// Size returns the current terminal dimensions of fd (columns, rows).
// Falls back to 80x24 when the query fails — the same default the remote
// side would assume for a dumb terminal.
func Size(fd int) (width, height int) {
	w, h, err := getSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return 80, 24
	}
	return w, h
}
