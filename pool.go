package sshclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// ClientPool coordinates one client per logical worker with checkout and
// return semantics. A Client is single-session by design; the pool is how
// concurrent callers each get their own.
type ClientPool struct {
	mu        sync.Mutex
	idle      map[string][]*pooledClient
	checked   int
	maxIdle   time.Duration
	transport Transport
	done      chan struct{}
	closeOnce sync.Once
}

type pooledClient struct {
	client   *Client
	key      string
	lastUsed time.Time
}

// NewClientPool creates a pool. maxIdle specifies how long idle clients
// are kept connected before being closed.
func NewClientPool(maxIdle time.Duration) *ClientPool {
	return NewClientPoolWithTransport(maxIdle, NewSSHTransport())
}

// NewClientPoolWithTransport creates a pool on a custom transport,
// primarily for testing.
func NewClientPoolWithTransport(maxIdle time.Duration, transport Transport) *ClientPool {
	pool := &ClientPool{
		idle:      make(map[string][]*pooledClient),
		maxIdle:   maxIdle,
		transport: transport,
		done:      make(chan struct{}),
	}
	go pool.cleanupLoop()
	return pool
}

// Checkout returns a connected client for exclusive use by the caller. An
// idle client for the same endpoint and credential is reused when still
// healthy; otherwise a new one is created and connected, with the connect
// going through the normal retry loop.
func (p *ClientPool) Checkout(ctx context.Context, config Config) (*Client, error) {
	key := poolKey(config)

	p.mu.Lock()
	for len(p.idle[key]) > 0 {
		n := len(p.idle[key]) - 1
		pc := p.idle[key][n]
		p.idle[key] = p.idle[key][:n]
		if pc.client.Connected() {
			p.checked++
			p.mu.Unlock()
			return pc.client, nil
		}
		pc.client.Disconnect()
	}
	p.mu.Unlock()

	client, err := NewWithTransport(config, p.transport)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.checked++
	p.mu.Unlock()
	return client, nil
}

// Return puts a checked-out client back into the idle set for reuse.
func (p *ClientPool) Return(client *Client) {
	if client == nil {
		return
	}
	key := poolKey(client.config)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.checked > 0 {
		p.checked--
	}
	p.idle[key] = append(p.idle[key], &pooledClient{
		client:   client,
		key:      key,
		lastUsed: time.Now(),
	})
}

// Close disconnects all idle clients and stops the cleanup goroutine.
// Checked-out clients are the caller's to disconnect.
func (p *ClientPool) Close() {
	p.closeOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	defer p.mu.Unlock()
	for key, clients := range p.idle {
		for _, pc := range clients {
			pc.client.Disconnect()
		}
		delete(p.idle, key)
	}
}

// CloseIdle disconnects clients that have been idle for longer than
// maxIdle.
func (p *ClientPool) CloseIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for key, clients := range p.idle {
		kept := clients[:0]
		for _, pc := range clients {
			if now.Sub(pc.lastUsed) > p.maxIdle {
				pc.client.Disconnect()
			} else {
				kept = append(kept, pc)
			}
		}
		if len(kept) == 0 {
			delete(p.idle, key)
		} else {
			p.idle[key] = kept
		}
	}
}

// Stats returns current pool statistics.
func (p *ClientPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	idle := 0
	for _, clients := range p.idle {
		idle += len(clients)
	}
	return PoolStats{
		Idle:       idle,
		CheckedOut: p.checked,
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Idle       int
	CheckedOut int
}

// poolKey derives the cache key from the endpoint and credential, hashed
// so credentials never appear in diagnostics.
func poolKey(config Config) string {
	h := sha256.New()
	h.Write([]byte(config.Host))
	fmt.Fprintf(h, ":%d:", config.Port)
	h.Write([]byte(config.User))

	if config.Password != "" {
		h.Write([]byte(":password:"))
		h.Write([]byte(config.Password))
	}
	if config.PrivateKey != "" {
		h.Write([]byte(":key:"))
		h.Write([]byte(config.PrivateKey))
	}
	if config.KeyPath != "" {
		h.Write([]byte(":keypath:"))
		h.Write([]byte(config.KeyPath))
	}

	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (p *ClientPool) cleanupLoop() {
	interval := p.maxIdle / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.CloseIdle()
		case <-p.done:
			return
		}
	}
}
