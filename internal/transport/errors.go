package transport

import (
	"errors"
	"fmt"
)

// ErrNoIdentityAccepted is wrapped into an AuthError when an SSH agent
// holds no identity the remote side accepts.
var ErrNoIdentityAccepted = errors.New("agent has no accepted identity")

// TransportError covers connection-level failures: refused, resolve
// failure, handshake failure.
type TransportError struct {
	Op   string // "dial", "handshake"
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError covers credential rejection: password refused, key unreadable
// or unsupported, agent exhausted.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ChannelError covers PTY, shell or exec requests refused by the remote.
type ChannelError struct {
	Op  string // "open", "pty", "shell", "exec"
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }
