package sshclient

import (
	"context"
	"fmt"
)

// sessionManager owns the single live transport session of a client. It is
// itself a connection managed by the acquisition loop: Create dials the
// endpoint under the configured timeout, Clear disconnects any partially
// open session. At most one session exists at a time; a reconnect closes
// the prior session before dialing.
type sessionManager struct {
	client    *Client
	transport Transport
	session   Session
}

func (m *sessionManager) Clear() {
	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
}

func (m *sessionManager) Create(ctx context.Context) (Session, error) {
	s, err := m.transport.Connect(ctx, m.client.config)
	if err != nil {
		return nil, err
	}
	m.session = s
	return s, nil
}

func (m *sessionManager) String() string {
	return fmt.Sprintf("Session(%s:%d)", m.client.config.Host, m.client.config.Port)
}

// connected reports whether a live session is held.
func (m *sessionManager) connected() bool {
	return m.session != nil && m.session.Connected()
}

// require returns the live session, failing fast when there is none.
// Channel opens on a disconnected session are never retried.
func (m *sessionManager) require() (Session, error) {
	if !m.connected() {
		return nil, &StateError{Msg: fmt.Sprintf("(%s) session not connected", m.client)}
	}
	return m.session, nil
}

// privateSession dials a dedicated session independent of the shared one.
// Streaming exec uses it so the caller can hold the streams open for as
// long as it likes without a session deadline.
type privateSession struct {
	client  *Client
	session Session
}

func (p *privateSession) Clear() {
	if p.session != nil {
		p.session.Close()
		p.session = nil
	}
}

func (p *privateSession) Create(ctx context.Context) (Session, error) {
	config := p.client.config
	// No session deadline on the dedicated connection; only the dial is
	// bounded by the configured timeout.
	s, err := p.client.transport.Connect(ctx, config)
	if err != nil {
		return nil, err
	}
	p.session = s
	return s, nil
}

func (p *privateSession) String() string {
	return fmt.Sprintf("PrivateSession(%s:%d)", p.client.config.Host, p.client.config.Port)
}
