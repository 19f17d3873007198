// Package bridge runs the interactive session loop: it shuttles bytes
// between the local terminal and the remote shell channel, watches both
// directions for rz/sz transfer signatures, and hands the terminal to a
// transfer helper when one fires.
package bridge

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/robbinhan/rssh/internal/oob"
	"github.com/robbinhan/rssh/internal/record"
	"github.com/robbinhan/rssh/internal/term"
	"github.com/robbinhan/rssh/internal/trace"
	"github.com/robbinhan/rssh/internal/transport"
)

const (
	// localBufSize bounds one read from the local terminal. Keystrokes
	// and pastes arrive in small bursts; a larger buffer only delays
	// signature detection.
	localBufSize = 1024

	// remoteBufSize bounds one read from the remote channel.
	remoteBufSize = 4096

	// defaultPollInterval is the sleep between poll iterations when
	// neither direction had data. Low enough to feel instant, high
	// enough to keep an idle session near zero CPU.
	defaultPollInterval = 5 * time.Millisecond

	// exitStatusWait bounds how long teardown waits for the remote
	// exit status after the stream ends. The status arrives normally
	// within milliseconds; the bound only guards a wedged remote.
	exitStatusWait = 3 * time.Second
)

// TransferHelper runs an external rz/sz process over the local terminal.
// The bridge calls it synchronously while holding the session in
// TransferActive; the helper owns the terminal for its entire run.
type TransferHelper interface {
	// Upload sends a local file to the remote side (user typed "rz").
	Upload(ctx context.Context) error

	// Download receives a file from the remote side. name is the
	// remote file name when known from a preceding "sz" command,
	// empty otherwise.
	Download(ctx context.Context, name string) error
}

// conn is the slice of transport.Conn the bridge needs. Tests substitute
// an in-memory implementation.
type conn interface {
	OpenShell(termName string, width, height int) (transport.Channel, error)
	Exec(command string) (*transport.ExecResult, error)
	Close() error
}

// termSession is an acquired local terminal: raw mode entered, stdin
// switched to non-blocking. release undoes both, idempotently.
type termSession struct {
	in      io.Reader
	out     io.Writer
	release func()
}

// Options configures a Bridge. Zero values fall back to sane defaults
// in New.
type Options struct {
	Target  transport.ConnectTarget
	Backend transport.Backend

	// Command, when non-empty, selects the non-interactive path: run
	// one command, collect its output, skip the terminal entirely.
	Command string

	TermName     string
	PollInterval time.Duration

	Helper   TransferHelper
	Trace    *trace.Sink
	Recorder record.Recorder
}

// Bridge is a single-use session driver. Run may be called once.
type Bridge struct {
	target       transport.ConnectTarget
	backend      transport.Backend
	command      string
	termName     string
	pollInterval time.Duration

	det    *oob.Detector
	tty    *term.Owner
	helper TransferHelper
	sink   *trace.Sink
	rec    record.Recorder

	cmdOut io.Writer
	cmdErr io.Writer

	stateMu sync.Mutex
	state   State

	// pendingDownload remembers the file name from the last outbound
	// "sz" command so the matching inbound ZMODEM header can pass it
	// to the helper.
	pendingDownload string

	// Seams, swapped by tests.
	dialTCP         func(transport.ConnectTarget) (net.Conn, error)
	handshake       func(net.Conn, transport.ConnectTarget) (conn, error)
	termSize        func() (width, height int)
	acquireTerminal func() (*termSession, error)
}

// New builds a Bridge from opts, filling in defaults for everything
// left unset.
func New(opts Options) *Bridge {
	b := &Bridge{
		target:       opts.Target,
		backend:      opts.Backend,
		command:      opts.Command,
		termName:     opts.TermName,
		pollInterval: opts.PollInterval,
		det:          oob.NewDetector(),
		tty:          &term.Owner{},
		helper:       opts.Helper,
		sink:         opts.Trace,
		rec:          opts.Recorder,
		cmdOut:       os.Stdout,
		cmdErr:       os.Stderr,
		state:        StateIdle,
	}
	if b.termName == "" {
		b.termName = "xterm-256color"
	}
	if b.pollInterval <= 0 {
		b.pollInterval = defaultPollInterval
	}
	if b.sink == nil {
		b.sink = trace.Nop()
	}
	if b.rec == nil {
		b.rec = record.NopRecorder{}
	}

	b.dialTCP = transport.DialTCP
	b.handshake = func(nc net.Conn, t transport.ConnectTarget) (conn, error) {
		return transport.Handshake(nc, t)
	}
	b.termSize = func() (int, int) {
		return term.Size(int(os.Stdin.Fd()))
	}
	b.acquireTerminal = defaultAcquireTerminal
	return b
}

// defaultAcquireTerminal puts the real stdin into raw non-blocking mode.
// Both changes are undone by the returned release, in reverse order.
func defaultAcquireTerminal() (*termSession, error) {
	fd := int(os.Stdin.Fd())

	guard, err := term.Acquire(fd)
	if err != nil {
		return nil, err
	}
	nb, err := term.NewNonBlockReader(fd)
	if err != nil {
		guard.Release()
		return nil, err
	}

	return &termSession{
		in:  nb,
		out: os.Stdout,
		release: func() {
			if err := nb.Restore(); err != nil {
				log.Printf("[SESSION] restore stdin flags: %v", err)
			}
			if err := guard.Release(); err != nil {
				log.Printf("[SESSION] restore terminal mode: %v", err)
			}
		},
	}, nil
}

// State returns the current session state.
func (b *Bridge) State() State {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

func (b *Bridge) setState(next State) {
	b.stateMu.Lock()
	prev := b.state
	b.state = next
	b.stateMu.Unlock()
	b.sink.State(prev.String(), next.String())
}

// Run drives the session to completion and returns the remote exit
// code. Cancelling ctx tears the session down from any state; teardown
// always restores the terminal before returning.
//
// The exec backend never reaches Run — that mode replaces the process
// image and is dispatched by the caller before a Bridge exists.
func (b *Bridge) Run(ctx context.Context) (int, error) {
	if b.backend == transport.BackendExec {
		return -1, fmt.Errorf("bridge: exec backend is delegated, not bridged")
	}
	if err := transport.Validate(b.target, b.backend); err != nil {
		b.setState(StateFailed)
		return -1, err
	}

	if b.command != "" {
		return b.runCommand(ctx)
	}
	return b.runInteractive(ctx)
}

// runCommand is the reduced non-interactive path: one command, buffered
// output, no PTY and no terminal mode changes.
func (b *Bridge) runCommand(ctx context.Context) (int, error) {
	c, err := b.connect(ctx)
	if err != nil {
		b.setState(StateFailed)
		return -1, err
	}
	defer c.Close()

	b.setState(StateExecuting)

	type outcome struct {
		res *transport.ExecResult
		err error
	}
	results := make(chan outcome, 1)
	go func() {
		res, err := c.Exec(b.command)
		results <- outcome{res: res, err: err}
	}()

	select {
	case o := <-results:
		if o.err != nil {
			b.setState(StateFailed)
			return -1, o.err
		}
		if len(o.res.Stdout) > 0 {
			b.cmdOut.Write(o.res.Stdout)
		}
		if len(o.res.Stderr) > 0 {
			b.cmdErr.Write(o.res.Stderr)
		}
		b.setState(StateTerminated)
		return o.res.ExitCode, nil
	case <-ctx.Done():
		// The deferred connection close unblocks the in-flight exec.
		b.setState(StateTerminated)
		return 0, nil
	}
}

// connect performs the TCP dial and the SSH handshake, advancing the
// state machine through Connecting and Authenticating. No terminal
// state has been touched yet when either step fails.
func (b *Bridge) connect(ctx context.Context) (conn, error) {
	b.setState(StateConnecting)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	netConn, err := b.dialTCP(b.target)
	if err != nil {
		return nil, err
	}

	b.setState(StateAuthenticating)
	if err := ctx.Err(); err != nil {
		netConn.Close()
		return nil, err
	}
	return b.handshake(netConn, b.target)
}

func (b *Bridge) runInteractive(ctx context.Context) (int, error) {
	c, err := b.connect(ctx)
	if err != nil {
		b.setState(StateFailed)
		return -1, err
	}

	width, height := b.termSize()

	b.setState(StateShellRequested)
	ch, err := c.OpenShell(b.termName, width, height)
	if err != nil {
		c.Close()
		b.setState(StateFailed)
		return -1, err
	}

	// Raw mode is entered only once the remote shell is up; a refused
	// PTY or shell request never touches the terminal.
	ts, err := b.acquireTerminal()
	if err != nil {
		ch.Close()
		c.Close()
		b.setState(StateFailed)
		return -1, err
	}

	w := NewOrderedWriter(ts.out, b.tty)

	b.setState(StateInteractive)
	b.sink.Event("session interactive")

	var loopErr error
	switch b.backend {
	case transport.BackendAsync:
		loopErr = b.selectLoop(ctx, ts, ch, w)
	default:
		loopErr = b.pollLoop(ctx, ts, ch, w)
	}

	// Teardown is unconditional: channel, connection, writer drain,
	// terminal restore, in that order, on every exit path.
	b.setState(StateClosing)
	if err := ch.Close(); err != nil {
		log.Printf("[SESSION] close channel: %v", err)
	}
	if err := c.Close(); err != nil {
		log.Printf("[SESSION] close connection: %v", err)
	}
	if err := w.Close(); err != nil {
		log.Printf("[SESSION] drain output: %v", err)
	}
	ts.release()

	cancelled := loopErr == context.Canceled || loopErr == context.DeadlineExceeded
	if loopErr != nil && !cancelled {
		b.setState(StateFailed)
		return -1, loopErr
	}

	b.setState(StateTerminated)
	if cancelled {
		return 0, nil
	}

	// The channel's pump records the exit status only after it sees
	// remote EOF, which can trail the loop's exit by a beat. Wait for
	// it, bounded so a wedged remote cannot hang shutdown.
	select {
	case <-ch.Done():
		return ch.ExitStatus(), nil
	case <-time.After(exitStatusWait):
		return 0, nil
	}
}

// pollLoop is the synchronous scheduling model: one goroutine polls the
// terminal and the channel in turn, sleeping pollInterval when neither
// had data. Cancellation latency is bounded by one interval.
func (b *Bridge) pollLoop(ctx context.Context, ts *termSession, ch transport.Channel, w *OrderedWriter) error {
	localBuf := make([]byte, localBufSize)
	remoteBuf := make([]byte, remoteBufSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		idle := true

		release := b.tty.Acquire()
		n, err := ts.in.Read(localBuf)
		release()
		switch {
		case n > 0:
			idle = false
			if err := b.handleLocal(ctx, ch, localBuf[:n]); err != nil {
				return err
			}
		case err == term.ErrWouldBlock:
			// nothing typed
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}

		n, err = ch.TryRead(remoteBuf)
		switch {
		case n > 0:
			idle = false
			if err := b.handleRemote(ctx, w, remoteBuf[:n]); err != nil {
				return err
			}
		case err == transport.ErrWouldBlock:
			// nothing inbound
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}

		if idle {
			time.Sleep(b.pollInterval)
		}
	}
}

// selectLoop is the channel-driven scheduling model: a pump goroutine
// feeds local keystrokes into a Go channel and the main loop selects
// over keystrokes, remote frames and cancellation.
func (b *Bridge) selectLoop(ctx context.Context, ts *termSession, ch transport.Channel, w *OrderedWriter) error {
	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()

	local := make(chan []byte, 1)
	go b.pumpLocal(pumpCtx, ts, local)

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case chunk, ok := <-local:
			if !ok {
				return nil
			}
			if err := b.handleLocal(ctx, ch, chunk); err != nil {
				return err
			}

		case frame, ok := <-ch.Frames():
			if !ok {
				return nil
			}
			if err := b.handleRemote(ctx, w, frame); err != nil {
				return err
			}

		case <-ticker.C:
			// periodic wakeup so a stalled select still observes
			// cancellation promptly
		}
	}
}

// pumpLocal polls the non-blocking terminal reader and forwards chunks
// to out. Closes out on EOF or read error.
func (b *Bridge) pumpLocal(ctx context.Context, ts *termSession, out chan<- []byte) {
	defer close(out)
	buf := make([]byte, localBufSize)

	for {
		if ctx.Err() != nil {
			return
		}

		release := b.tty.Acquire()
		n, err := ts.in.Read(buf)
		release()

		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			continue
		}
		if err == term.ErrWouldBlock {
			select {
			case <-time.After(b.pollInterval):
			case <-ctx.Done():
				return
			}
			continue
		}
		return
	}
}

// handleLocal processes one chunk of keystrokes: trace it, intercept
// the debug toggle, forward it, then check for an outbound transfer
// signature.
func (b *Bridge) handleLocal(ctx context.Context, ch transport.Channel, chunk []byte) error {
	b.sink.ReadLocal(len(chunk))
	b.sink.Keys(chunk)

	// ESC d flips the trace sink without reaching the remote shell.
	if len(chunk) == 2 && chunk[0] == 0x1b && chunk[1] == 'd' {
		if b.sink.Toggle() {
			log.Printf("[SESSION] trace on")
		} else {
			log.Printf("[SESSION] trace off")
		}
		return nil
	}

	// Forward first — the remote shell needs the command line whether
	// or not a helper takes over afterwards.
	if _, err := ch.Write(chunk); err != nil {
		return err
	}
	b.sink.WroteChannel(len(chunk))

	if ev := b.det.ScanOutbound(chunk); ev != nil {
		switch ev.Kind {
		case oob.Upload:
			b.runHelper(ctx, func() error { return b.helper.Upload(ctx) })
		case oob.Download:
			// The transfer starts when the ZMODEM header comes back
			// on the inbound stream; remember the name until then.
			b.pendingDownload = ev.Name
			b.sink.Event("download pending: " + ev.Name)
		}
	}
	return nil
}

// handleRemote processes one inbound chunk: trace it, deliver it to the
// terminal and the recorder, then check for a ZMODEM header.
func (b *Bridge) handleRemote(ctx context.Context, w *OrderedWriter, chunk []byte) error {
	b.sink.ReadChannel(len(chunk))

	if _, err := w.Write(chunk); err != nil {
		return err
	}
	b.sink.WroteLocal(len(chunk))

	if _, err := b.rec.Write(chunk); err != nil {
		log.Printf("[RECORD] write: %v", err)
	}

	if ev := b.det.ScanInbound(chunk); ev != nil {
		name := b.pendingDownload
		b.pendingDownload = ""
		b.runHelper(ctx, func() error { return b.helper.Download(ctx, name) })
	}
	return nil
}

// runHelper executes one transfer helper synchronously, holding the
// terminal ownership lock for the helper's entire run so no bridge
// traffic interleaves with the helper's. A helper failure is logged but
// never fatal — the interactive session resumes.
func (b *Bridge) runHelper(ctx context.Context, run func() error) {
	if b.helper == nil {
		log.Printf("[TRANSFER] signature detected but no helper configured")
		return
	}

	b.setState(StateTransferActive)
	b.sink.Event("transfer helper start")

	release := b.tty.Acquire()
	err := run()
	release()

	if err != nil {
		log.Printf("[TRANSFER] helper failed: %v", err)
		b.sink.Event("transfer helper failed: " + err.Error())
	} else {
		b.sink.Event("transfer helper done")
	}

	b.setState(StateInteractive)
}
