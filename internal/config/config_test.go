package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robbinhan/rssh/internal/transport"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Run("loads default values when file does not exist", func(t *testing.T) {
		os.Clearenv()

		cfg, err := Load(filepath.Join(tmpDir, "missing.yaml"))

		require.NoError(t, err)
		assert.Equal(t, "library", cfg.Session.Backend)
		assert.Equal(t, 5, cfg.Session.PollIntervalMs)
		assert.Equal(t, "xterm-256color", cfg.Session.TermName)
		assert.False(t, cfg.Trace.Enabled)
		assert.False(t, cfg.Record.Enabled)
	})

	t.Run("loads servers from YAML file", func(t *testing.T) {
		os.Clearenv()

		yamlContent := `
servers:
  - name: web
    host: web.internal
    port: 2222
    user: deploy
    auth:
      type: key
      key_path: /home/deploy/.ssh/id_ed25519
  - name: db
    host: db.internal
    user: admin
    auth:
      type: password
      secret: hunter2
session:
  backend: async
  poll_interval_ms: 10
`
		err := os.WriteFile(configPath, []byte(yamlContent), 0644)
		require.NoError(t, err)

		cfg, err := Load(configPath)

		require.NoError(t, err)
		require.Len(t, cfg.Servers, 2)
		assert.Equal(t, "web", cfg.Servers[0].Name)
		assert.Equal(t, 2222, cfg.Servers[0].Port)
		assert.Equal(t, "async", cfg.Session.Backend)
		assert.Equal(t, 10, cfg.Session.PollIntervalMs)
	})

	t.Run("environment variables override file values", func(t *testing.T) {
		os.Clearenv()

		yamlContent := `
session:
  backend: library
`
		err := os.WriteFile(configPath, []byte(yamlContent), 0644)
		require.NoError(t, err)

		os.Setenv("RSSH_BACKEND", "debug")
		os.Setenv("RSSH_TERM", "vt100")

		cfg, err := Load(configPath)

		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Session.Backend)
		assert.Equal(t, "vt100", cfg.Session.TermName)
	})

	t.Run("returns error on invalid YAML", func(t *testing.T) {
		os.Clearenv()

		err := os.WriteFile(configPath, []byte("servers: host: [invalid yaml"), 0644)
		require.NoError(t, err)

		_, err = Load(configPath)
		assert.Error(t, err)
	})
}

func TestResolve(t *testing.T) {
	cfg := &Config{
		Servers: []ServerProfile{
			{
				Name: "web",
				Host: "web.internal",
				Port: 2222,
				User: "deploy",
				Auth: Auth{Type: "password", Secret: "s3cret"},
			},
		},
	}

	t.Run("resolves a named profile", func(t *testing.T) {
		os.Clearenv()

		target, err := cfg.Resolve("web")
		require.NoError(t, err)
		assert.Equal(t, "web.internal:2222", target.Addr())
		assert.Equal(t, "deploy", target.User)
		assert.Equal(t, transport.CredPassword, target.Credential.Kind)
		assert.Equal(t, "s3cret", target.Credential.Secret)
	})

	t.Run("unknown name lists configured servers", func(t *testing.T) {
		os.Clearenv()

		_, err := cfg.Resolve("nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "web")
	})

	t.Run("empty name falls back to environment", func(t *testing.T) {
		os.Clearenv()
		os.Setenv("RSSH_HOST", "env.example.com")
		os.Setenv("RSSH_PORT", "2200")
		os.Setenv("RSSH_USER", "envuser")

		target, err := cfg.Resolve("")
		require.NoError(t, err)
		assert.Equal(t, "env.example.com:2200", target.Addr())
		assert.Equal(t, "envuser", target.User)
		assert.Equal(t, transport.CredAgent, target.Credential.Kind)
	})

	t.Run("RSSH_KEY selects a key credential", func(t *testing.T) {
		os.Clearenv()
		os.Setenv("RSSH_HOST", "env.example.com")
		os.Setenv("RSSH_USER", "envuser")
		os.Setenv("RSSH_KEY", "/keys/id_rsa")

		target, err := cfg.Resolve("env")
		require.NoError(t, err)
		assert.Equal(t, transport.CredKeyFile, target.Credential.Kind)
		assert.Equal(t, "/keys/id_rsa", target.Credential.KeyPath)
	})

	t.Run("empty name without environment fails", func(t *testing.T) {
		os.Clearenv()

		_, err := cfg.Resolve("")
		assert.Error(t, err)
	})
}

func TestProfileTarget(t *testing.T) {
	t.Run("requires host and user", func(t *testing.T) {
		_, err := ServerProfile{Name: "x", User: "u"}.Target()
		assert.Error(t, err)

		_, err = ServerProfile{Name: "x", Host: "h"}.Target()
		assert.Error(t, err)
	})

	t.Run("key auth with fallback", func(t *testing.T) {
		p := ServerProfile{
			Name: "x", Host: "h", User: "u",
			Auth: Auth{Type: "key", KeyPath: "/k", Fallback: "pw"},
		}
		target, err := p.Target()
		require.NoError(t, err)
		assert.Equal(t, transport.CredKeyFile, target.Credential.Kind)
		assert.Equal(t, "/k", target.Credential.KeyPath)
		assert.Equal(t, "pw", target.Credential.Secret)
	})

	t.Run("missing auth block defaults to agent", func(t *testing.T) {
		target, err := ServerProfile{Name: "x", Host: "h", User: "u"}.Target()
		require.NoError(t, err)
		assert.Equal(t, transport.CredAgent, target.Credential.Kind)
	})

	t.Run("password auth requires a secret", func(t *testing.T) {
		p := ServerProfile{Name: "x", Host: "h", User: "u", Auth: Auth{Type: "password"}}
		_, err := p.Target()
		assert.Error(t, err)
	})

	t.Run("unknown auth type fails", func(t *testing.T) {
		p := ServerProfile{Name: "x", Host: "h", User: "u", Auth: Auth{Type: "kerberos"}}
		_, err := p.Target()
		assert.Error(t, err)
	})
}

func TestExpandTilde(t *testing.T) {
	// Earlier subtests clear the environment; pin HOME so the expansion
	// has something to resolve against.
	t.Setenv("HOME", filepath.Join(t.TempDir(), "home"))

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".ssh", "id_rsa"), ExpandTilde("~/.ssh/id_rsa"))
	assert.Equal(t, home, ExpandTilde("~"))
	assert.Equal(t, "/abs/path", ExpandTilde("/abs/path"))
	assert.Equal(t, "rel/path", ExpandTilde("rel/path"))
	assert.Equal(t, "~user/x", ExpandTilde("~user/x"))
}
