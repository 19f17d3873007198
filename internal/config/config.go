// Package config loads client settings from a YAML file and the
// RSSH_* environment, and resolves named server profiles into dialable
// targets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/robbinhan/rssh/internal/transport"
)

// Config holds all application settings loaded from file and environment
// variables. Struct tags are used by the Viper mapstructure decoder.
type Config struct {
	Servers []ServerProfile `mapstructure:"servers"`
	Session Session         `mapstructure:"session"`
	Helper  Helper          `mapstructure:"helper"`
	Trace   Trace           `mapstructure:"trace"`
	Record  Record          `mapstructure:"record"`
}

// ServerProfile is one named connection entry.
type ServerProfile struct {
	Name string `mapstructure:"name"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	User string `mapstructure:"user"`
	Auth Auth   `mapstructure:"auth"`
}

// Auth selects the credential for a profile.
//
//	type: "password" | "key" | "agent"
type Auth struct {
	Type    string `mapstructure:"type"`
	Secret  string `mapstructure:"secret"`
	KeyPath string `mapstructure:"key_path"`

	// Fallback enables password retry after a rejected key.
	Fallback string `mapstructure:"fallback"`
}

// Session controls the bridge loop.
type Session struct {
	Backend        string `mapstructure:"backend"`
	PollIntervalMs int    `mapstructure:"poll_interval_ms"`
	TermName       string `mapstructure:"term_name"`
}

// Helper overrides the external transfer commands.
type Helper struct {
	UploadCmd   []string `mapstructure:"upload_cmd"`
	DownloadCmd []string `mapstructure:"download_cmd"`
}

// Trace controls the diagnostic sink.
type Trace struct {
	Path    string `mapstructure:"path"`
	Enabled bool   `mapstructure:"enabled"`
}

// Record controls asciinema session recording.
type Record struct {
	Dir     string `mapstructure:"dir"`
	Enabled bool   `mapstructure:"enabled"`
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "rssh.yaml"
	}
	return filepath.Join(home, ".config", "rssh", "config.yaml")
}

// Load reads configuration from a file and lets RSSH_* environment
// variables override session settings. A missing file is not an error —
// targets can come entirely from the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("session.backend", "RSSH_BACKEND")
	v.BindEnv("session.poll_interval_ms", "RSSH_POLL_INTERVAL_MS")
	v.BindEnv("session.term_name", "RSSH_TERM")
	v.BindEnv("trace.path", "RSSH_TRACE_PATH")
	v.BindEnv("record.dir", "RSSH_RECORD_DIR")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// isNotFound returns true when err indicates the config file does not exist.
func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	var pathErr *os.PathError
	return errors.As(err, &pathErr) && os.IsNotExist(pathErr)
}

// setDefaults defines baseline values for all configuration parameters.
func setDefaults(v *viper.Viper) {
	v.SetDefault("session.backend", "library")
	v.SetDefault("session.poll_interval_ms", 5)
	v.SetDefault("session.term_name", "xterm-256color")
	v.SetDefault("trace.path", "rssh-trace.log")
	v.SetDefault("trace.enabled", false)
	v.SetDefault("record.dir", "")
	v.SetDefault("record.enabled", false)
}

// Resolve maps a server name to a dialable target.
//
// Lookup order: a profile with a matching name, then the RSSH_HOST
// family of environment variables when name is empty or "env". A name
// that matches neither is an error listing what is available.
func (c *Config) Resolve(name string) (transport.ConnectTarget, error) {
	for _, p := range c.Servers {
		if p.Name == name {
			return p.Target()
		}
	}

	if name == "" || name == "env" {
		if t, ok := targetFromEnv(); ok {
			return t, nil
		}
		return transport.ConnectTarget{}, fmt.Errorf("no server named and RSSH_HOST is not set")
	}

	names := make([]string, 0, len(c.Servers))
	for _, p := range c.Servers {
		names = append(names, p.Name)
	}
	return transport.ConnectTarget{}, fmt.Errorf("unknown server %q (configured: %s)", name, strings.Join(names, ", "))
}

// Target converts a profile into a ConnectTarget, expanding ~ in key
// paths and validating the credential shape.
func (p ServerProfile) Target() (transport.ConnectTarget, error) {
	if p.Host == "" {
		return transport.ConnectTarget{}, fmt.Errorf("server %q: host is required", p.Name)
	}
	if p.User == "" {
		return transport.ConnectTarget{}, fmt.Errorf("server %q: user is required", p.Name)
	}

	cred, err := p.Auth.credential()
	if err != nil {
		return transport.ConnectTarget{}, fmt.Errorf("server %q: %w", p.Name, err)
	}

	return transport.ConnectTarget{
		Host:       p.Host,
		Port:       p.Port,
		User:       p.User,
		Credential: cred,
	}, nil
}

func (a Auth) credential() (transport.Credential, error) {
	switch a.Type {
	case "password":
		if a.Secret == "" {
			return transport.Credential{}, fmt.Errorf("auth type password needs a secret")
		}
		return transport.PasswordCredential(a.Secret), nil
	case "key", "":
		if a.KeyPath == "" {
			if a.Type == "" {
				// No auth block at all: try the agent.
				return transport.AgentCredential(), nil
			}
			return transport.Credential{}, fmt.Errorf("auth type key needs key_path")
		}
		return transport.KeyFileCredential(ExpandTilde(a.KeyPath), a.Fallback), nil
	case "agent":
		return transport.AgentCredential(), nil
	default:
		return transport.Credential{}, fmt.Errorf("unknown auth type %q", a.Type)
	}
}

// targetFromEnv builds a target from RSSH_HOST, RSSH_PORT, RSSH_USER
// and RSSH_KEY. RSSH_HOST is the trigger; the rest have defaults.
func targetFromEnv() (transport.ConnectTarget, bool) {
	host := os.Getenv("RSSH_HOST")
	if host == "" {
		return transport.ConnectTarget{}, false
	}

	port := 22
	if s := os.Getenv("RSSH_PORT"); s != "" {
		if p, err := strconv.Atoi(s); err == nil && p > 0 {
			port = p
		}
	}

	user := os.Getenv("RSSH_USER")
	if user == "" {
		user = os.Getenv("USER")
	}

	cred := transport.AgentCredential()
	if key := os.Getenv("RSSH_KEY"); key != "" {
		cred = transport.KeyFileCredential(ExpandTilde(key), "")
	}

	return transport.ConnectTarget{
		Host:       host,
		Port:       port,
		User:       user,
		Credential: cred,
	}, true
}

// ExpandTilde rewrites a leading "~/" to the user's home directory.
func ExpandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
