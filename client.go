package sshclient

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/ssh"
)

// Client is a resilient SSH client bound to a single endpoint and
// credential. It owns exactly one transport session at a time.
//
// A Client is not safe for concurrent use by multiple callers issuing
// operations simultaneously; use one Client per worker (see ClientPool).
type Client struct {
	config    Config
	transport Transport
	retry     RetryPolicy
	backoff   BackoffPolicy
	logger    logPrinter
	sessions  *sessionManager
	identity  string
}

// New creates a client for the given endpoint and credentials. The
// connection is not dialed until Connect or the first operation that
// needs it.
func New(config Config) (*Client, error) {
	return NewWithTransport(config, NewSSHTransport())
}

// NewWithTransport creates a client on a custom transport. This is
// primarily used for testing with mock transports.
func NewWithTransport(config Config, transport Transport) (*Client, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	identity, err := identityString(config)
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:    config,
		transport: transport,
		retry:     config.Retry,
		backoff:   config.Backoff,
		logger:    config.Logger,
		identity:  identity,
	}
	c.sessions = &sessionManager{client: c, transport: transport}
	return c, nil
}

// identityString derives the diagnostic identity once at construction:
// the user, a credential fingerprint, and the endpoint. It is used in
// every error message and log line, never for equality or auth decisions.
func identityString(config Config) (string, error) {
	if config.Password != "" {
		return fmt.Sprintf("%s:pw[%x]@%s:%d",
			config.User, md5.Sum([]byte(config.Password)), config.Host, config.Port), nil
	}

	keyData := []byte(config.PrivateKey)
	if config.KeyPath != "" {
		var err error
		keyData, err = os.ReadFile(ExpandPath(config.KeyPath))
		if err != nil {
			return "", &ArgError{Msg: fmt.Sprintf("failed to read SSH key file: %v", err)}
		}
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return "", &ArgError{Msg: fmt.Sprintf("failed to parse SSH private key: %v", err)}
	}
	fingerprint := ssh.FingerprintSHA256(signer.PublicKey())
	return fmt.Sprintf("%s:key[%s]@%s:%d", config.User, fingerprint, config.Host, config.Port), nil
}

// Connect establishes the transport session, retrying transient failures.
// Calling Connect on an already-connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	if c.sessions.connected() {
		return nil
	}
	_, err := acquire(ctx, c, c.sessions)
	return err
}

// Disconnect releases the session. Safe to call when already disconnected.
func (c *Client) Disconnect() error {
	c.sessions.Clear()
	return nil
}

// Connected reports whether the client holds a live session.
func (c *Client) Connected() bool {
	return c.sessions.connected()
}

// Get opens a remote file for reading. Closing the returned stream also
// releases the underlying SFTP channel, even after a partial read.
func (c *Client) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	return acquire(ctx, c, &getConnection{client: c, path: path})
}

// Put writes a payload to a remote path. The payload must be repeatable so
// failed attempts can re-read it from the start; a non-repeatable payload
// fails immediately without any connection attempt.
func (c *Client) Put(ctx context.Context, path string, contents Payload) error {
	if contents == nil {
		return &ArgError{Msg: fmt.Sprintf("(%s) contents must be set for put %s", c, path)}
	}
	if !contents.Repeatable() {
		return &ArgError{Msg: fmt.Sprintf("(%s) put %s requires a repeatable payload", c, path)}
	}
	_, err := acquire(ctx, c, &putConnection{client: c, path: path, contents: contents})
	return err
}

// PutString writes string contents to a remote path.
func (c *Client) PutString(ctx context.Context, path, contents string) error {
	return c.Put(ctx, path, StringPayload(contents))
}

// Exec runs a command on a pseudo-terminal over the shared session and
// blocks until it completes, returning the captured output and exit code.
// Stderr capture is disabled; see ExecResponse.
func (c *Client) Exec(ctx context.Context, command string) (ExecResponse, error) {
	if command == "" {
		return ExecResponse{}, &ArgError{Msg: fmt.Sprintf("(%s) command must be set", c)}
	}
	return acquire(ctx, c, &execConnection{client: c, command: command})
}

// ExecStream starts a command on a dedicated session and returns live
// handles to its streams. The caller must Close the returned stream to
// release the channel and its session.
func (c *Client) ExecStream(ctx context.Context, command string) (*ExecStream, error) {
	if command == "" {
		return nil, &ArgError{Msg: fmt.Sprintf("(%s) command must be set", c)}
	}
	return acquire(ctx, c, &execStreamConnection{client: c, command: command})
}

// HostAddress returns the configured endpoint host.
func (c *Client) HostAddress() string { return c.config.Host }

// Username returns the configured user.
func (c *Client) Username() string { return c.config.User }

// String returns the diagnostic identity string.
func (c *Client) String() string { return c.identity }
