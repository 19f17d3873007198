package transport

import (
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// buildAuthMethods constructs the SSH auth method list for a credential.
// Order matters — the client tries each method in sequence until one
// succeeds, which is how the key-file→password fallback is expressed.
func buildAuthMethods(cred Credential) ([]ssh.AuthMethod, error) {
	switch cred.Kind {

	case CredPassword:
		return []ssh.AuthMethod{ssh.Password(cred.Secret)}, nil

	case CredKeyFile:
		data, err := os.ReadFile(cred.KeyPath)
		if err != nil {
			return nil, &AuthError{Reason: fmt.Sprintf("read key %s", cred.KeyPath), Err: err}
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, &AuthError{Reason: fmt.Sprintf("parse key %s", cred.KeyPath), Err: err}
		}
		methods := []ssh.AuthMethod{ssh.PublicKeys(signer)}
		// Fallback password, tried only after the key is rejected.
		if cred.Secret != "" {
			methods = append(methods, ssh.Password(cred.Secret))
		}
		return methods, nil

	case CredAgent:
		ag, err := dialAgent()
		if err != nil {
			return nil, err
		}
		signers, err := ag.Signers()
		if err != nil {
			return nil, &AuthError{Reason: "list agent identities", Err: err}
		}
		if len(signers) == 0 {
			return nil, &AuthError{Reason: "agent", Err: ErrNoIdentityAccepted}
		}
		// The library walks the signer list, trying each identity in
		// turn until the remote accepts one or all are exhausted.
		return []ssh.AuthMethod{ssh.PublicKeysCallback(ag.Signers)}, nil

	default:
		return nil, &AuthError{Reason: fmt.Sprintf("unknown credential kind %d", cred.Kind)}
	}
}

// dialAgent connects to the agent named by SSH_AUTH_SOCK.
func dialAgent() (agent.ExtendedAgent, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, &AuthError{Reason: "no SSH agent running (SSH_AUTH_SOCK unset)"}
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, &AuthError{Reason: "connect to SSH agent", Err: err}
	}
	return agent.NewClient(conn), nil
}

// classifyHandshakeErr maps a NewClientConn failure to the error
// taxonomy. The library reports every authentication failure through one
// opaque message, so string matching is the only discriminator available.
func classifyHandshakeErr(err error, addr string, cred Credential) error {
	if err == nil {
		return nil
	}
	if isAuthFailure(err) {
		if cred.Kind == CredAgent {
			return &AuthError{Reason: "agent", Err: ErrNoIdentityAccepted}
		}
		return &AuthError{Reason: "credentials rejected by " + addr, Err: err}
	}
	return &TransportError{Op: "handshake", Addr: addr, Err: err}
}

func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}
