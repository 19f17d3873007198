package transport

import (
	"bytes"
	"errors"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// handshakeTimeout bounds the TCP dial and the SSH handshake together.
const handshakeTimeout = 30 * time.Second

// Conn is an authenticated SSH connection to one target. It serves both
// the library and async backends — the scheduling model is chosen by the
// consumer, not by the dialer.
type Conn struct {
	client *ssh.Client
	addr   string
}

// DialTCP establishes the TCP leg of the connection with a bounded
// timeout. Kept separate from Handshake so the session state machine can
// distinguish Connecting from Authenticating.
func DialTCP(target ConnectTarget) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", target.Addr(), handshakeTimeout)
	if err != nil {
		return nil, &TransportError{Op: "dial", Addr: target.Addr(), Err: err}
	}
	return conn, nil
}

// Handshake runs the SSH handshake and authentication over an existing
// connection. netConn is consumed: on success it belongs to the returned
// Conn, on failure it is closed.
func Handshake(netConn net.Conn, target ConnectTarget) (*Conn, error) {
	methods, err := buildAuthMethods(target.Credential)
	if err != nil {
		netConn.Close()
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User: target.User,
		Auth: methods,
		// Host key pinning is the configuration layer's concern; the
		// original client behaves like StrictHostKeyChecking=no.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         handshakeTimeout,
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, target.Addr(), cfg)
	if err != nil {
		netConn.Close()
		return nil, classifyHandshakeErr(err, target.Addr(), target.Credential)
	}

	return &Conn{client: ssh.NewClient(sshConn, chans, reqs), addr: target.Addr()}, nil
}

// Dial is the one-shot convenience: DialTCP followed by Handshake.
func Dial(target ConnectTarget) (*Conn, error) {
	netConn, err := DialTCP(target)
	if err != nil {
		return nil, err
	}
	return Handshake(netConn, target)
}

// OpenShell allocates a PTY of the given size on a fresh session, starts
// the remote shell and returns its Channel. The size is taken once — live
// resize is not supported.
func (c *Conn) OpenShell(termName string, width, height int) (Channel, error) {
	sess, err := c.client.NewSession()
	if err != nil {
		return nil, &ChannelError{Op: "open", Err: err}
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, &ChannelError{Op: "open", Err: err}
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, &ChannelError{Op: "open", Err: err}
	}

	if err := sess.RequestPty(termName, height, width, ssh.TerminalModes{}); err != nil {
		sess.Close()
		return nil, &ChannelError{Op: "pty", Err: err}
	}
	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, &ChannelError{Op: "shell", Err: err}
	}

	wait := func() int { return exitCode(sess.Wait()) }
	closeAll := func() error {
		sess.Close()
		return nil
	}
	return newShellChannel(stdin, stdout, wait, closeAll), nil
}

// ExecResult is the outcome of a non-interactive command execution.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Exec runs a single command on a fresh session, collecting stdout and
// stderr into buffers. No PTY, no raw mode — the reduced path.
func (c *Conn) Exec(command string) (*ExecResult, error) {
	sess, err := c.client.NewSession()
	if err != nil {
		return nil, &ChannelError{Op: "open", Err: err}
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	runErr := sess.Run(command)
	if runErr != nil {
		var exitErr *ssh.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, &ChannelError{Op: "exec", Err: runErr}
		}
	}

	return &ExecResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode(runErr),
	}, nil
}

// Close terminates the SSH connection. Sessions opened on it are closed
// as a side effect.
func (c *Conn) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Addr returns the target address this connection is bound to.
func (c *Conn) Addr() string { return c.addr }

// exitCode maps a session Wait/Run error to a numeric exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus()
	}
	return -1
}
