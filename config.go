package sshclient

import (
	"fmt"
	"log"
	"time"
)

// Config holds SSH connection configuration.
type Config struct {
	// Host is the target SSH server hostname or IP address.
	Host string

	// Port is the SSH port (default 22). Must be greater than zero.
	Port int

	// User is the SSH username.
	User string

	// Password is the SSH password for password authentication.
	// Exactly one of Password or a private key must be provided.
	Password string

	// PrivateKey is the SSH private key content (PEM encoded).
	// Mutually exclusive with KeyPath.
	PrivateKey string

	// KeyPath is the path to the SSH private key file.
	// Mutually exclusive with PrivateKey.
	KeyPath string

	// Timeout is the connect and session timeout (default 30s).
	Timeout time.Duration

	// KnownHostsFile is the path to a known_hosts file for host key
	// verification. If not set, defaults to ~/.ssh/known_hosts if it exists.
	KnownHostsFile string

	// InsecureIgnoreHostKey skips host key verification.
	// WARNING: This is insecure and should only be used for testing.
	InsecureIgnoreHostKey bool

	// Retry configures the retry behavior shared by all acquisitions.
	Retry RetryPolicy

	// Backoff configures the delay between retry attempts.
	Backoff BackoffPolicy

	// Logger receives attempt traces and retry warnings. Defaults to the
	// standard logger.
	Logger *log.Logger
}

// WithDefaults returns a copy of the config with default values applied.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	c.Retry = c.Retry.WithDefaults()
	c.Backoff = c.Backoff.WithDefaults()
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Validate checks the construction-time invariants: a host, a positive
// port, a user, and at least one credential.
func (c Config) Validate() error {
	if c.Host == "" {
		return &ArgError{Msg: "ssh host must be set"}
	}
	if c.Port <= 0 {
		return &ArgError{Msg: fmt.Sprintf("ssh port must be greater than zero: %d", c.Port)}
	}
	if c.User == "" {
		return &ArgError{Msg: "ssh user must be set"}
	}
	if c.Password == "" && c.PrivateKey == "" && c.KeyPath == "" {
		return &ArgError{Msg: "you must specify a password or a key"}
	}
	if c.PrivateKey != "" && c.KeyPath != "" {
		return &ArgError{Msg: "private_key and key_path are mutually exclusive"}
	}
	return nil
}
