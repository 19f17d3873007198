// Package transport establishes authenticated connections to a remote
// host and exposes each shell or command execution as a Channel.
package transport

import (
	"fmt"
	"net"
	"strconv"
)

// CredentialKind tags the Credential variant.
type CredentialKind int

const (
	// CredPassword authenticates with a plain password exchange.
	CredPassword CredentialKind = iota

	// CredKeyFile loads a private key from a file path, optionally
	// falling back to a password when the key is rejected.
	CredKeyFile

	// CredAgent enumerates identities from a running SSH agent and
	// tries each until one is accepted.
	CredAgent
)

// Credential is a tagged union consumed once per session at
// authentication time. It is never persisted by this package.
type Credential struct {
	Kind CredentialKind

	// Secret is the password for CredPassword, or the fallback password
	// for CredKeyFile (empty means no fallback).
	Secret string

	// KeyPath is the private key location for CredKeyFile. Tilde
	// expansion is the caller's concern (see config.ExpandTilde).
	KeyPath string
}

// PasswordCredential builds a password credential.
func PasswordCredential(secret string) Credential {
	return Credential{Kind: CredPassword, Secret: secret}
}

// KeyFileCredential builds a key-file credential. fallback may be empty.
func KeyFileCredential(path, fallback string) Credential {
	return Credential{Kind: CredKeyFile, KeyPath: path, Secret: fallback}
}

// AgentCredential builds an agent credential.
func AgentCredential() Credential {
	return Credential{Kind: CredAgent}
}

// ConnectTarget identifies one remote endpoint. Immutable for the
// session lifetime.
type ConnectTarget struct {
	Host       string
	Port       int
	User       string
	Credential Credential
}

// Addr returns the host:port dial address.
func (t ConnectTarget) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// Backend selects the transport implementation.
type Backend int

const (
	// BackendLibrary dials with the in-process SSH library; the channel
	// is consumed by a polling loop.
	BackendLibrary Backend = iota

	// BackendAsync dials the same way but the channel is consumed by a
	// select-based loop — no busy polling.
	BackendAsync

	// BackendExec replaces the process image with the system ssh client.
	// Delegated mode: no channel, no bridge, the OS takes over.
	BackendExec

	// BackendDebug is BackendLibrary with the diagnostic trace sink
	// enabled from the start.
	BackendDebug
)

// String returns the config/CLI spelling of the backend.
func (b Backend) String() string {
	switch b {
	case BackendLibrary:
		return "library"
	case BackendAsync:
		return "async"
	case BackendExec:
		return "exec"
	case BackendDebug:
		return "debug"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// ParseBackend maps a config/CLI string to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "library", "":
		return BackendLibrary, nil
	case "async":
		return BackendAsync, nil
	case "exec", "system":
		return BackendExec, nil
	case "debug":
		return BackendDebug, nil
	default:
		return 0, fmt.Errorf("unknown backend %q (want library, async, exec or debug)", s)
	}
}

// Validate rejects credential+backend combinations that cannot work,
// before any connection attempt is made.
//
// The exec backend hands everything to the system ssh client, which has
// no way to receive a password or a fallback secret from us.
func Validate(t ConnectTarget, b Backend) error {
	if t.Host == "" {
		return fmt.Errorf("connect target has no host")
	}
	if t.User == "" {
		return fmt.Errorf("connect target has no username")
	}
	if b == BackendExec {
		switch t.Credential.Kind {
		case CredPassword:
			return fmt.Errorf("password authentication is not supported by the exec backend; use a key file or agent")
		case CredKeyFile:
			if t.Credential.Secret != "" {
				return fmt.Errorf("key-file password fallback is not supported by the exec backend")
			}
		}
	}
	return nil
}
