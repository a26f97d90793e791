package sshclient

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"
)

// generateTestRSAKey creates a test RSA private key and returns both
// PEM-encoded key content and a path to a temp file containing the key.
func generateTestRSAKey(t *testing.T) (string, string) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}

	privateKeyBytes := x509.MarshalPKCS1PrivateKey(privateKey)
	privateKeyPEM := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: privateKeyBytes,
	}))

	tmpDir := t.TempDir()
	keyPath := filepath.Join(tmpDir, "test_key")
	if err := os.WriteFile(keyPath, []byte(privateKeyPEM), 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	return privateKeyPEM, keyPath
}

// newTestConfig creates a Config with sensible defaults for testing:
// password auth, small fast backoff, quiet logger.
func newTestConfig(t *testing.T) Config {
	t.Helper()

	return Config{
		Host:     "localhost",
		Port:     22,
		User:     "testuser",
		Password: "hunter2",
		Timeout:  time.Second,
		Backoff: BackoffPolicy{
			Base:       time.Millisecond,
			Multiplier: 2.0,
			MaxDelay:   50 * time.Millisecond,
		},
		Logger: log.New(io.Discard, "", 0),
	}
}

// newTestClient creates a client on a fresh mock transport.
func newTestClient(t *testing.T) (*Client, *mockTransport) {
	t.Helper()

	transport := newMockTransport()
	client, err := NewWithTransport(newTestConfig(t), transport)
	if err != nil {
		t.Fatalf("NewWithTransport() error = %v", err)
	}
	return client, transport
}

// newRecordingClient creates a client whose log lines are captured, for
// asserting backoff invocations.
func newRecordingClient(t *testing.T) (*Client, *mockTransport, *recordingLogger) {
	t.Helper()

	rec := &recordingLogger{}
	config := newTestConfig(t)
	config.Logger = nil // replaced below; Validate needs nothing here

	transport := newMockTransport()
	client, err := NewWithTransport(config, transport)
	if err != nil {
		t.Fatalf("NewWithTransport() error = %v", err)
	}
	client.logger = rec
	return client, transport, rec
}

// recordingLogger captures formatted log lines.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func (l *recordingLogger) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

var retryLinePattern = regexp.MustCompile(`retry (\d+)/(\d+)`)

// backoffAttempts extracts the attempt indices of every backoff wait that
// was logged, in order.
func (l *recordingLogger) backoffAttempts() []int {
	var attempts []int
	for _, line := range l.all() {
		m := retryLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		attempts = append(attempts, n)
	}
	return attempts
}

// connectTestClient connects the client, failing the test on error.
func connectTestClient(t *testing.T, client *Client) {
	t.Helper()
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
}
