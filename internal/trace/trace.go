// Package trace is the bridge's diagnostic sink: timestamped,
// byte-accounted event lines appended to an external log target.
//
// The sink can be flipped on and off at runtime without restarting the
// session — the bridge wires a reserved keystroke (ESC d) to Toggle.
package trace

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Sink writes structured trace events. Safe for concurrent use; when
// disabled every method is a cheap no-op.
type Sink struct {
	enabled atomic.Bool
	log     zerolog.Logger
	f       *os.File
}

// New opens (or creates) an append-only trace log at path. The sink
// starts disabled unless enabledAtStart is set — the debug backend
// enables it from the first byte.
func New(path string, enabledAtStart bool) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", path, err)
	}
	s := &Sink{
		log: zerolog.New(f).With().Timestamp().Logger(),
		f:   f,
	}
	s.enabled.Store(enabledAtStart)
	return s, nil
}

// NewWriter builds a sink over an arbitrary writer. Used in tests.
func NewWriter(w io.Writer, enabledAtStart bool) *Sink {
	s := &Sink{log: zerolog.New(w).With().Timestamp().Logger()}
	s.enabled.Store(enabledAtStart)
	return s
}

// Nop returns a permanently disabled sink so callers need no nil checks.
func Nop() *Sink {
	return &Sink{log: zerolog.Nop()}
}

// Toggle flips the sink on or off and returns the new state.
func (s *Sink) Toggle() bool {
	for {
		old := s.enabled.Load()
		if s.enabled.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Enabled reports whether events are currently written.
func (s *Sink) Enabled() bool { return s.enabled.Load() }

// ReadLocal records bytes read from the local terminal.
func (s *Sink) ReadLocal(n int) {
	if s.enabled.Load() {
		s.log.Debug().Int("bytes", n).Msg("read from local")
	}
}

// WroteChannel records bytes written to the remote channel.
func (s *Sink) WroteChannel(n int) {
	if s.enabled.Load() {
		s.log.Debug().Int("bytes", n).Msg("wrote to channel")
	}
}

// ReadChannel records bytes read from the remote channel.
func (s *Sink) ReadChannel(n int) {
	if s.enabled.Load() {
		s.log.Debug().Int("bytes", n).Msg("read from channel")
	}
}

// WroteLocal records bytes written to the local terminal.
func (s *Sink) WroteLocal(n int) {
	if s.enabled.Load() {
		s.log.Debug().Int("bytes", n).Msg("wrote to local")
	}
}

// Keys records the key codes the user typed, rendered readable so
// control bytes show up as carets instead of corrupting the log line.
func (s *Sink) Keys(chunk []byte) {
	if s.enabled.Load() {
		s.log.Debug().Str("keys", RenderKeys(chunk)).Msg("keys typed")
	}
}

// State records a state machine transition.
func (s *Sink) State(from, to string) {
	if s.enabled.Load() {
		s.log.Info().Str("from", from).Str("to", to).Msg("state")
	}
}

// Event records a free-form session event.
func (s *Sink) Event(msg string) {
	if s.enabled.Load() {
		s.log.Info().Msg(msg)
	}
}

// Close releases the underlying file, if any.
func (s *Sink) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}
