package sshclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// sftpConn acquires a fresh file-transfer channel over the shared session.
type sftpConn struct {
	client *Client
	sftp   SFTPChannel
}

func (s *sftpConn) Clear() {
	if s.sftp != nil {
		s.sftp.Close()
		s.sftp = nil
	}
}

func (s *sftpConn) Create(ctx context.Context) (SFTPChannel, error) {
	sess, err := s.client.sessions.require()
	if err != nil {
		return nil, err
	}
	ch, err := sess.OpenSFTP()
	if err != nil {
		return nil, err
	}
	s.sftp = ch
	return ch, nil
}

func (s *sftpConn) String() string { return "ChannelSftp()" }

// getConnection produces a lazily-read byte stream for a remote path.
// Ownership of the SFTP channel transfers to the returned stream: closing
// the stream also disconnects the channel, exactly once.
type getConnection struct {
	client *Client
	path   string
	sftp   SFTPChannel
}

func (g *getConnection) Clear() {
	if g.sftp != nil {
		g.sftp.Close()
		g.sftp = nil
	}
}

func (g *getConnection) Create(ctx context.Context) (io.ReadCloser, error) {
	sftp, err := acquire(ctx, g.client, &sftpConn{client: g.client})
	if err != nil {
		return nil, err
	}
	g.sftp = sftp
	r, err := sftp.Open(g.path)
	if err != nil {
		return nil, err
	}
	return &channelReadCloser{r: r, channel: sftp}, nil
}

func (g *getConnection) String() string {
	return fmt.Sprintf("Payload(path=[%s])", g.path)
}

// channelReadCloser closes the owning SFTP channel together with the
// stream. Close is safe to call more than once and mid-read.
type channelReadCloser struct {
	r       io.ReadCloser
	channel SFTPChannel
	once    sync.Once
	err     error
}

func (c *channelReadCloser) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *channelReadCloser) Close() error {
	c.once.Do(func() {
		c.err = c.r.Close()
		if cerr := c.channel.Close(); c.err == nil {
			c.err = cerr
		}
	})
	return c.err
}

// putConnection writes a repeatable payload to a remote path. The payload
// is re-opened on every attempt; the SFTP channel is released
// unconditionally before the attempt returns.
type putConnection struct {
	client   *Client
	path     string
	contents Payload
	sftp     SFTPChannel
}

func (p *putConnection) Clear() {
	if p.sftp != nil {
		p.sftp.Close()
		p.sftp = nil
	}
}

func (p *putConnection) Create(ctx context.Context) (struct{}, error) {
	var done struct{}

	sftp, err := acquire(ctx, p.client, &sftpConn{client: p.client})
	if err != nil {
		return done, err
	}
	p.sftp = sftp
	defer p.Clear()

	src, err := p.contents.Open()
	if err != nil {
		return done, err
	}
	defer src.Close()

	dst, err := sftp.Create(p.path)
	if err != nil {
		return done, err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return done, err
	}
	return done, dst.Close()
}

func (p *putConnection) String() string {
	return fmt.Sprintf("Put(path=[%s])", p.path)
}

// startedExec is an exec channel whose command is already running, with
// the stdout pipe attached before start.
type startedExec struct {
	channel ExecChannel
	stdout  io.Reader
}

// execOpen acquires an exec channel over the shared session and starts the
// command on it.
type execOpen struct {
	client  *Client
	command string
	pty     bool
	channel ExecChannel
}

func (e *execOpen) Clear() {
	if e.channel != nil {
		e.channel.Close()
		e.channel = nil
	}
}

func (e *execOpen) Create(ctx context.Context) (startedExec, error) {
	sess, err := e.client.sessions.require()
	if err != nil {
		return startedExec{}, err
	}
	ch, err := sess.OpenExec()
	if err != nil {
		return startedExec{}, err
	}
	e.channel = ch
	if e.pty {
		if err := ch.RequestPty(); err != nil {
			return startedExec{}, err
		}
	}
	stdout, err := ch.StdoutPipe()
	if err != nil {
		return startedExec{}, err
	}
	if err := ch.Start(e.command); err != nil {
		return startedExec{}, err
	}
	return startedExec{channel: ch, stdout: stdout}, nil
}

func (e *execOpen) String() string { return "ChannelExec()" }

// ExecResponse is the captured result of a blocking Exec.
type ExecResponse struct {
	// Stdout is the full standard output of the remote command.
	Stdout string
	// Stderr is always empty: reading the error stream can hang on slow
	// connections, so its capture is disabled. This is a deliberate,
	// documented limitation. The pseudo-terminal merges most command
	// error output into Stdout anyway.
	Stderr string
	// ExitStatus is the remote exit code.
	ExitStatus int
}

// execConnection runs a command on a pseudo-terminal over the shared
// session, captures stdout fully, and polls the exit status under the
// retry budget. The channel is released whether or not the attempt
// succeeds.
type execConnection struct {
	client  *Client
	command string
	open    *execOpen
}

func (e *execConnection) Clear() {
	if e.open != nil {
		e.open.Clear()
		e.open = nil
	}
}

func (e *execConnection) Create(ctx context.Context) (ExecResponse, error) {
	defer e.Clear()

	e.open = &execOpen{client: e.client, command: e.command, pty: true}
	started, err := acquire(ctx, e.client, e.open)
	if err != nil {
		return ExecResponse{}, err
	}

	out, err := io.ReadAll(started.stdout)
	if err != nil {
		return ExecResponse{}, err
	}

	status, err := acquire(ctx, e.client, &exitStatusConn{channel: started.channel, command: e.command})
	if err != nil {
		return ExecResponse{}, err
	}

	return ExecResponse{Stdout: string(out), Stderr: "", ExitStatus: status}, nil
}

func (e *execConnection) String() string {
	return fmt.Sprintf("ExecResponse(command=[%s])", e.command)
}

// errExitStatusNotReady marks the transient "exited status not readable
// yet" condition. The classifier always treats it as retryable so the poll
// shares the common acquisition loop.
var errExitStatusNotReady = errors.New("exit status not yet available")

// exitStatusConn expresses exit-status readiness as a retryable
// acquisition: each attempt re-polls, and exhaustion of the budget is the
// "status never resolved" fatal error.
type exitStatusConn struct {
	channel ExecChannel
	command string
}

func (s *exitStatusConn) Clear() {}

func (s *exitStatusConn) Create(ctx context.Context) (int, error) {
	if status, ok := s.channel.ExitStatus(); ok {
		return status, nil
	}
	return 0, errExitStatusNotReady
}

func (s *exitStatusConn) String() string {
	return fmt.Sprintf("ExitStatus(command=[%s])", s.command)
}

// ExecStream holds the live handles of a streaming command execution. The
// remote process runs on a dedicated session so the caller can keep the
// streams open indefinitely.
type ExecStream struct {
	// Stdin feeds the remote process's standard input.
	Stdin io.WriteCloser
	// Stdout is the remote process's standard output.
	Stdout io.Reader
	// Stderr is the remote process's standard error.
	Stderr io.Reader

	exitStatus func() (int, bool)
	cleanup    func()
	once       sync.Once
}

// ExitStatus reports the remote exit code without blocking. ok is false
// while the process has not yet exited.
func (s *ExecStream) ExitStatus() (status int, ok bool) {
	return s.exitStatus()
}

// Close disconnects the exec channel and its dedicated session. Safe to
// call more than once.
func (s *ExecStream) Close() error {
	s.once.Do(s.cleanup)
	return nil
}

// execStreamConnection starts a command on its own dedicated session,
// without a pseudo-terminal, and hands the live streams to the caller.
type execStreamConnection struct {
	client  *Client
	command string
	private *privateSession
	channel ExecChannel
}

func (e *execStreamConnection) Clear() {
	if e.channel != nil {
		e.channel.Close()
		e.channel = nil
	}
	if e.private != nil {
		e.private.Clear()
		e.private = nil
	}
}

func (e *execStreamConnection) Create(ctx context.Context) (*ExecStream, error) {
	e.private = &privateSession{client: e.client}
	sess, err := acquire(ctx, e.client, e.private)
	if err != nil {
		return nil, err
	}

	ch, err := sess.OpenExec()
	if err != nil {
		return nil, err
	}
	e.channel = ch

	stdin, err := ch.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := ch.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := ch.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := ch.Start(e.command); err != nil {
		return nil, err
	}

	private := e.private
	return &ExecStream{
		Stdin:      stdin,
		Stdout:     stdout,
		Stderr:     stderr,
		exitStatus: ch.ExitStatus,
		cleanup: func() {
			ch.Close()
			private.Clear()
		},
	}, nil
}

func (e *execStreamConnection) String() string {
	return fmt.Sprintf("ExecChannel(command=[%s])", e.command)
}
