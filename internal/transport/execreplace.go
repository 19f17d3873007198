//go:build unix

package transport

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"
)

// ExecReplace replaces the current process image with the system ssh
// client, sharing the real stdio directly. Delegated mode: the session
// bridge, OOB detection and raw-mode management do not apply — the OS
// takes over entirely.
//
// On success this function never returns. A returned error means the
// replacement itself failed and the calling process is still intact.
func ExecReplace(target ConnectTarget) error {
	if err := Validate(target, BackendExec); err != nil {
		return err
	}

	path, err := exec.LookPath("ssh")
	if err != nil {
		return &TransportError{Op: "dial", Addr: target.Addr(), Err: fmt.Errorf("system ssh not found: %w", err)}
	}

	argv := systemSSHArgs(path, target)
	if err := unix.Exec(path, argv, os.Environ()); err != nil {
		return &TransportError{Op: "exec", Addr: target.Addr(), Err: err}
	}
	return nil // unreachable
}

// systemSSHArgs builds the argv for the system ssh client, mirroring the
// options an interactive session wants: no host key prompt, keepalives.
func systemSSHArgs(path string, target ConnectTarget) []string {
	argv := []string{path}

	if target.Port != 0 && target.Port != 22 {
		argv = append(argv, "-p", strconv.Itoa(target.Port))
	}
	if target.Credential.Kind == CredKeyFile {
		argv = append(argv, "-i", target.Credential.KeyPath)
	}

	argv = append(argv,
		"-o", "StrictHostKeyChecking=no",
		"-o", "HashKnownHosts=no",
		"-o", "ServerAliveInterval=60",
	)

	return append(argv, target.User+"@"+target.Host)
}
