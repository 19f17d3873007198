//go:build unix

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemSSHArgs(t *testing.T) {
	t.Run("agent credential, default port", func(t *testing.T) {
		target := ConnectTarget{Host: "example.com", User: "alice", Credential: AgentCredential()}
		argv := systemSSHArgs("/usr/bin/ssh", target)

		assert.Equal(t, "/usr/bin/ssh", argv[0])
		assert.NotContains(t, argv, "-p")
		assert.NotContains(t, argv, "-i")
		assert.Equal(t, "alice@example.com", argv[len(argv)-1])
		assert.Contains(t, argv, "StrictHostKeyChecking=no")
		assert.Contains(t, argv, "ServerAliveInterval=60")
	})

	t.Run("key credential and custom port", func(t *testing.T) {
		target := ConnectTarget{
			Host:       "example.com",
			Port:       2222,
			User:       "bob",
			Credential: KeyFileCredential("/keys/id_ed25519", ""),
		}
		argv := systemSSHArgs("/usr/bin/ssh", target)

		assert.Contains(t, argv, "-p")
		assert.Contains(t, argv, "2222")
		assert.Contains(t, argv, "-i")
		assert.Contains(t, argv, "/keys/id_ed25519")
		assert.Equal(t, "bob@example.com", argv[len(argv)-1])
	})
}

func TestExecReplaceValidatesBeforeExec(t *testing.T) {
	// Password auth cannot be delegated; the call must fail before any
	// process replacement is attempted.
	target := ConnectTarget{Host: "h", User: "u", Credential: PasswordCredential("pw")}
	err := ExecReplace(target)
	assert.Error(t, err)
}
