package sshclient

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
)

// mockTransport implements Transport for testing. Connect returns scripted
// errors first, then hands out fresh mock sessions.
type mockTransport struct {
	mu          sync.Mutex
	connectErrs []error
	connects    int
	sessions    []*mockSession

	// execFactory builds the exec channel handed out by new sessions.
	execFactory func() *mockExecChannel
	// files is the shared remote filesystem seen by all sessions.
	files map[string][]byte
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		files: make(map[string][]byte),
		execFactory: func() *mockExecChannel {
			return &mockExecChannel{}
		},
	}
}

func (t *mockTransport) Connect(_ context.Context, _ Config) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connects++
	if len(t.connectErrs) > 0 {
		err := t.connectErrs[0]
		t.connectErrs = t.connectErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	s := &mockSession{transport: t, connected: true}
	t.sessions = append(t.sessions, s)
	return s, nil
}

func (t *mockTransport) connectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// mockSession implements Session.
type mockSession struct {
	transport *mockTransport

	mu           sync.Mutex
	connected    bool
	closed       int
	sftpErrs     []error
	execErrs     []error
	sftpChannels []*mockSFTPChannel
	execChannels []*mockExecChannel
}

func (s *mockSession) OpenSFTP() (SFTPChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sftpErrs) > 0 {
		err := s.sftpErrs[0]
		s.sftpErrs = s.sftpErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	ch := &mockSFTPChannel{transport: s.transport}
	s.sftpChannels = append(s.sftpChannels, ch)
	return ch, nil
}

func (s *mockSession) OpenExec() (ExecChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.execErrs) > 0 {
		err := s.execErrs[0]
		s.execErrs = s.execErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	ch := s.transport.execFactory()
	s.execChannels = append(s.execChannels, ch)
	return ch, nil
}

func (s *mockSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *mockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.closed++
	return nil
}

func (s *mockSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// mockSFTPChannel implements SFTPChannel over the transport's shared file
// map.
type mockSFTPChannel struct {
	transport *mockTransport

	mu       sync.Mutex
	closed   int
	openErrs []error
}

func (c *mockSFTPChannel) Open(path string) (io.ReadCloser, error) {
	c.mu.Lock()
	if len(c.openErrs) > 0 {
		err := c.openErrs[0]
		c.openErrs = c.openErrs[1:]
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
	} else {
		c.mu.Unlock()
	}

	c.transport.mu.Lock()
	content, ok := c.transport.files[path]
	c.transport.mu.Unlock()
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (c *mockSFTPChannel) Create(path string) (io.WriteCloser, error) {
	return &mockRemoteFile{transport: c.transport, path: path}, nil
}

func (c *mockSFTPChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *mockSFTPChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// mockRemoteFile buffers writes and commits them to the transport's file
// map on Close.
type mockRemoteFile struct {
	transport *mockTransport
	path      string
	buf       bytes.Buffer
}

func (f *mockRemoteFile) Write(p []byte) (int, error) {
	return f.buf.Write(p)
}

func (f *mockRemoteFile) Close() error {
	f.transport.mu.Lock()
	defer f.transport.mu.Unlock()
	f.transport.files[f.path] = f.buf.Bytes()
	return nil
}

// mockExecChannel implements ExecChannel with a scripted command result.
type mockExecChannel struct {
	mu sync.Mutex

	stdout string
	stderr string
	status int

	// statusAfterPolls is how many ExitStatus calls return "not ready"
	// before the status resolves. Negative means it never resolves.
	statusAfterPolls int
	polls            int

	ptyRequested bool
	started      string
	startErr     error
	stdin        bytes.Buffer
	closed       int
}

func (c *mockExecChannel) StdinPipe() (io.WriteCloser, error) {
	return nopWriteCloser{&c.stdin}, nil
}

func (c *mockExecChannel) StdoutPipe() (io.Reader, error) {
	return strings.NewReader(c.stdout), nil
}

func (c *mockExecChannel) StderrPipe() (io.Reader, error) {
	return strings.NewReader(c.stderr), nil
}

func (c *mockExecChannel) RequestPty() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ptyRequested = true
	return nil
}

func (c *mockExecChannel) Start(command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.started = command
	return nil
}

func (c *mockExecChannel) ExitStatus() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusAfterPolls < 0 {
		return 0, false
	}
	if c.polls < c.statusAfterPolls {
		c.polls++
		return 0, false
	}
	return c.status, true
}

func (c *mockExecChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *mockExecChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type nopWriteCloser struct {
	w io.Writer
}

func (n nopWriteCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (n nopWriteCloser) Close() error                { return nil }
