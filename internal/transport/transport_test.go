package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ConnectTarget
// =============================================================================

func TestAddrDefaultsPort22(t *testing.T) {
	target := ConnectTarget{Host: "example.com"}
	assert.Equal(t, "example.com:22", target.Addr())

	target.Port = 2222
	assert.Equal(t, "example.com:2222", target.Addr())
}

func TestAddrWrapsIPv6(t *testing.T) {
	target := ConnectTarget{Host: "::1", Port: 22}
	assert.Equal(t, "[::1]:22", target.Addr())
}

// =============================================================================
// Backend parsing
// =============================================================================

func TestParseBackend(t *testing.T) {
	cases := []struct {
		in   string
		want Backend
	}{
		{"library", BackendLibrary},
		{"", BackendLibrary},
		{"async", BackendAsync},
		{"exec", BackendExec},
		{"system", BackendExec}, // legacy spelling
		{"debug", BackendDebug},
	}
	for _, tc := range cases {
		got, err := ParseBackend(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}

	_, err := ParseBackend("telnet")
	assert.Error(t, err)
}

func TestBackendStringRoundTrips(t *testing.T) {
	for _, b := range []Backend{BackendLibrary, BackendAsync, BackendExec, BackendDebug} {
		got, err := ParseBackend(b.String())
		require.NoError(t, err)
		assert.Equal(t, b, got)
	}
}

// =============================================================================
// Validate
// =============================================================================

func TestValidate(t *testing.T) {
	base := ConnectTarget{Host: "h", User: "u"}

	t.Run("requires host and user", func(t *testing.T) {
		assert.Error(t, Validate(ConnectTarget{User: "u"}, BackendLibrary))
		assert.Error(t, Validate(ConnectTarget{Host: "h"}, BackendLibrary))
		assert.NoError(t, Validate(base, BackendLibrary))
	})

	t.Run("rejects password with exec backend", func(t *testing.T) {
		target := base
		target.Credential = PasswordCredential("secret")

		assert.NoError(t, Validate(target, BackendLibrary))
		assert.NoError(t, Validate(target, BackendAsync))
		assert.Error(t, Validate(target, BackendExec))
	})

	t.Run("rejects key fallback with exec backend", func(t *testing.T) {
		target := base
		target.Credential = KeyFileCredential("/k", "fallback")
		assert.Error(t, Validate(target, BackendExec))

		target.Credential = KeyFileCredential("/k", "")
		assert.NoError(t, Validate(target, BackendExec))
	})

	t.Run("accepts agent with every backend", func(t *testing.T) {
		target := base
		target.Credential = AgentCredential()
		for _, b := range []Backend{BackendLibrary, BackendAsync, BackendExec, BackendDebug} {
			assert.NoError(t, Validate(target, b))
		}
	})
}
