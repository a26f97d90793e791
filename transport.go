package sshclient

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Transport is the secure-transport primitive the client orchestrates. The
// production implementation dials SSH; tests substitute a mock.
type Transport interface {
	Connect(ctx context.Context, config Config) (Session, error)
}

// Session is a single authenticated transport connection. Channels are
// multiplexed over it; each operation opens its own and never reuses one.
type Session interface {
	// OpenSFTP opens a new file-transfer channel.
	OpenSFTP() (SFTPChannel, error)
	// OpenExec opens a new command-execution channel.
	OpenExec() (ExecChannel, error)
	// Connected reports whether the session is still usable.
	Connected() bool
	// Close releases the session.
	Close() error
}

// SFTPChannel is a file-transfer sub-channel.
type SFTPChannel interface {
	Open(path string) (io.ReadCloser, error)
	Create(path string) (io.WriteCloser, error)
	Close() error
}

// ExecChannel is a command-execution sub-channel.
type ExecChannel interface {
	StdinPipe() (io.WriteCloser, error)
	StdoutPipe() (io.Reader, error)
	StderrPipe() (io.Reader, error)
	// RequestPty allocates a pseudo-terminal before the command starts.
	RequestPty() error
	// Start runs the command without waiting for it to finish.
	Start(command string) error
	// ExitStatus reports the remote exit code without blocking. ok is
	// false while the status is not yet readable.
	ExitStatus() (status int, ok bool)
	Close() error
}

// sshTransport is the production Transport on golang.org/x/crypto/ssh.
type sshTransport struct{}

// NewSSHTransport returns the default SSH transport.
func NewSSHTransport() Transport {
	return sshTransport{}
}

func (sshTransport) Connect(ctx context.Context, config Config) (Session, error) {
	authMethods, err := buildAuthMethods(config)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := buildHostKeyCallback(config)
	if err != nil {
		return nil, fmt.Errorf("failed to configure host key verification: %w", err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            config.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.Timeout,
	}

	addr := net.JoinHostPort(config.Host, fmt.Sprint(config.Port))

	dialer := net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	ncc, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	return &sshSession{client: ssh.NewClient(ncc, chans, reqs)}, nil
}

// sshSession adapts *ssh.Client to the Session interface.
type sshSession struct {
	client *ssh.Client
}

func (s *sshSession) OpenSFTP() (SFTPChannel, error) {
	c, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to open sftp channel: %w", err)
	}
	return &sftpChannel{client: c}, nil
}

func (s *sshSession) OpenExec() (ExecChannel, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open exec channel: %w", err)
	}
	return &execChannel{sess: sess}, nil
}

func (s *sshSession) Connected() bool {
	_, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

func (s *sshSession) Close() error {
	return s.client.Close()
}

// sftpChannel adapts *sftp.Client to the SFTPChannel interface.
type sftpChannel struct {
	client *sftp.Client
}

func (c *sftpChannel) Open(path string) (io.ReadCloser, error) {
	return c.client.Open(path)
}

func (c *sftpChannel) Create(path string) (io.WriteCloser, error) {
	dir := filepath.ToSlash(filepath.Dir(path))
	if dir != "" && dir != "/" && dir != "." {
		if err := c.client.MkdirAll(dir); err != nil {
			return nil, fmt.Errorf("failed to create remote directory %s: %w", dir, err)
		}
	}
	return c.client.Create(path)
}

func (c *sftpChannel) Close() error {
	return c.client.Close()
}

// execChannel adapts *ssh.Session to the ExecChannel interface. The exit
// status is collected by a background wait so ExitStatus never blocks.
type execChannel struct {
	sess *ssh.Session

	mu     sync.Mutex
	status int
	exited bool
}

func (c *execChannel) StdinPipe() (io.WriteCloser, error) { return c.sess.StdinPipe() }
func (c *execChannel) StdoutPipe() (io.Reader, error)     { return c.sess.StdoutPipe() }
func (c *execChannel) StderrPipe() (io.Reader, error)     { return c.sess.StderrPipe() }

func (c *execChannel) RequestPty() error {
	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	return c.sess.RequestPty("xterm", 80, 40, modes)
}

func (c *execChannel) Start(command string) error {
	if err := c.sess.Start(command); err != nil {
		return err
	}
	go c.wait()
	return nil
}

func (c *execChannel) wait() {
	err := c.sess.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	switch werr := err.(type) {
	case nil:
		c.status, c.exited = 0, true
	case *ssh.ExitError:
		c.status, c.exited = werr.ExitStatus(), true
	default:
		// The status never became readable (e.g. the remote closed the
		// channel without sending one). Leave it unresolved so callers
		// observe a bounded poll failure instead of a bogus zero.
	}
}

func (c *execChannel) ExitStatus() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.exited
}

func (c *execChannel) Close() error {
	return c.sess.Close()
}

func buildAuthMethods(config Config) ([]ssh.AuthMethod, error) {
	if config.Password != "" {
		return []ssh.AuthMethod{ssh.Password(config.Password)}, nil
	}

	var keyData []byte
	var err error
	if config.PrivateKey != "" {
		keyData = []byte(config.PrivateKey)
	} else if config.KeyPath != "" {
		keyData, err = os.ReadFile(ExpandPath(config.KeyPath))
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key file: %w", err)
		}
	} else {
		return nil, &ArgError{Msg: "no SSH credential provided (set password, private_key or key_path)"}
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH private key: %w", err)
	}

	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

func buildHostKeyCallback(config Config) (ssh.HostKeyCallback, error) {
	if config.InsecureIgnoreHostKey {
		log.Printf("[WARN] SSH host key verification disabled for %s:%d - this is insecure!", config.Host, config.Port)
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if config.KnownHostsFile != "" {
		expandedPath := ExpandPath(config.KnownHostsFile)
		callback, err := knownhosts.New(expandedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts file %s: %w", expandedPath, err)
		}
		return callback, nil
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		defaultKnownHosts := filepath.Join(homeDir, ".ssh", "known_hosts")
		if _, err := os.Stat(defaultKnownHosts); err == nil {
			callback, err := knownhosts.New(defaultKnownHosts)
			if err == nil {
				return callback, nil
			}
			log.Printf("[WARN] Could not parse known_hosts file %s: %v", defaultKnownHosts, err)
		}
	}

	log.Printf("[WARN] No known_hosts file found for %s:%d - host key verification disabled.", config.Host, config.Port)
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		return nil
	}, nil
}

// ExpandPath expands ~ to home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
