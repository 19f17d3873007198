// Package helper launches external rz/sz transfer processes on the
// local terminal while the session bridge is paused.
package helper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/robbinhan/rssh/internal/term"
)

// Default helper command lines. The flags select binary mode with
// escaped control characters, which survives the PTY in between; rz
// additionally overwrites existing files instead of prompting.
var (
	defaultUploadCmd   = []string{"sz", "-e", "-b"}
	defaultDownloadCmd = []string{"rz", "-e", "-b", "-y"}
)

// promptPollInterval paces the prompt's reads of the non-blocking
// terminal descriptor.
const promptPollInterval = 5 * time.Millisecond

// SubprocessError reports a transfer helper that could not be started
// or exited non-zero.
type SubprocessError struct {
	Prog string
	Err  error
}

func (e *SubprocessError) Error() string {
	return fmt.Sprintf("helper %s: %v", e.Prog, e.Err)
}

func (e *SubprocessError) Unwrap() error { return e.Err }

// ErrPromptAborted is returned when the user cancels the file prompt
// with Ctrl-C or closes stdin.
var ErrPromptAborted = errors.New("prompt aborted")

// Launcher spawns sz/rz with the process's own stdio. The bridge holds
// the terminal ownership lock for the duration of each call, so the
// helper is the terminal's sole user while it runs.
type Launcher struct {
	uploadCmd   []string
	downloadCmd []string

	// in/out serve the upload file prompt. in is expected to be the
	// same non-blocking terminal reader the bridge polls.
	in  io.Reader
	out io.Writer

	// run is the process seam, swapped by tests.
	run func(ctx context.Context, argv []string) error
}

// Option customizes a Launcher.
type Option func(*Launcher)

// WithUploadCommand overrides the sz command line. The local file path
// is appended at launch time.
func WithUploadCommand(argv []string) Option {
	return func(l *Launcher) {
		if len(argv) > 0 {
			l.uploadCmd = argv
		}
	}
}

// WithDownloadCommand overrides the rz command line.
func WithDownloadCommand(argv []string) Option {
	return func(l *Launcher) {
		if len(argv) > 0 {
			l.downloadCmd = argv
		}
	}
}

// NewLauncher builds a Launcher over the given terminal streams.
func NewLauncher(in io.Reader, out io.Writer, opts ...Option) *Launcher {
	l := &Launcher{
		uploadCmd:   defaultUploadCmd,
		downloadCmd: defaultDownloadCmd,
		in:          in,
		out:         out,
		run:         runProcess,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Upload prompts for a local file path and hands it to the sz helper.
func (l *Launcher) Upload(ctx context.Context) error {
	path, err := l.promptPath(ctx, "\r\nlocal file to send: ")
	if err != nil {
		return err
	}
	if path == "" {
		return ErrPromptAborted
	}
	argv := append(append([]string{}, l.uploadCmd...), path)
	return l.run(ctx, argv)
}

// Download launches the rz helper to receive an inbound file. name is
// advisory — rz takes the file name from the ZMODEM stream itself.
func (l *Launcher) Download(ctx context.Context, name string) error {
	if name != "" {
		fmt.Fprintf(l.out, "\r\nreceiving %s\r\n", name)
	}
	argv := append([]string{}, l.downloadCmd...)
	return l.run(ctx, argv)
}

// promptPath reads a file path from the raw-mode terminal, echoing
// manually because the line discipline is off. CR or LF submits,
// backspace erases, Ctrl-C aborts.
func (l *Launcher) promptPath(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(l.out, prompt)

	var line []byte
	buf := make([]byte, 1)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := l.in.Read(buf)
		if isWouldBlock(err) {
			time.Sleep(promptPollInterval)
			continue
		}
		if err != nil {
			return "", ErrPromptAborted
		}
		if n == 0 {
			continue
		}

		switch b := buf[0]; {
		case b == '\r' || b == '\n':
			fmt.Fprint(l.out, "\r\n")
			return string(line), nil
		case b == 0x03: // Ctrl-C
			fmt.Fprint(l.out, "\r\n")
			return "", ErrPromptAborted
		case b == 0x7f || b == 0x08:
			if len(line) > 0 {
				line = line[:len(line)-1]
				fmt.Fprint(l.out, "\b \b")
			}
		case b >= 0x20:
			line = append(line, b)
			l.out.Write(buf[:1])
		}
	}
}

// isWouldBlock matches the would-block signal from either the bridge's
// non-blocking reader or a plain *os.File on a non-blocking descriptor.
func isWouldBlock(err error) bool {
	return err == term.ErrWouldBlock || errors.Is(err, syscall.EAGAIN)
}

// runProcess executes argv with the process's own stdio so the helper
// talks to the terminal directly.
func runProcess(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return &SubprocessError{Prog: argv[0], Err: err}
	}
	return nil
}
