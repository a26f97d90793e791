package sshclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// DefaultRetryableMessages are message fragments known to indicate
// transient protocol or network noise rather than a permanent failure.
var DefaultRetryableMessages = []string{
	"failed to send channel request",
	"channel is not opened",
	"invalid data",
	"End of IO Stream Read",
	"Connection reset",
	"connection is closed by foreign host",
	"socket is not established",
}

// RetryPolicy configures how acquisition failures are classified and how
// many attempts are made. The zero value is usable; WithDefaults fills in
// the documented defaults. A policy is immutable once handed to New.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first
	// (default 5).
	MaxAttempts int

	// RetryAuth treats authentication failures as retryable. Some
	// environments transiently mis-report auth failures; default off.
	RetryAuth bool

	// RetryableMessages is the list of message fragments that mark a
	// failure as transient. Defaults to DefaultRetryableMessages.
	RetryableMessages []string

	// Retryable classifies an error (or anything in its cause chain) as a
	// transient connectivity failure. Defaults to connection-refused and
	// I/O-class errors.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the documented default retry configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{}.WithDefaults()
}

// WithDefaults returns a copy of the policy with default values applied.
func (p RetryPolicy) WithDefaults() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 5
	}
	if p.RetryableMessages == nil {
		p.RetryableMessages = DefaultRetryableMessages
	}
	if p.Retryable == nil {
		p.Retryable = IsConnectivityError
	}
	return p
}

// IsConnectivityError is the default retryable-error predicate: connection
// refused, network errors, and unexpected stream ends.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe)
}

// ShouldRetry reports whether a failure is transient. A failure is
// retryable if the predicate matches it, if any error in its cause chain
// carries one of the configured retryable messages, or, when RetryAuth is
// set, if it is an authentication failure. An "Auth fail" message never
// makes a failure retryable by message match alone.
func (p RetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if isAuthFailure(err) {
		return p.RetryAuth
	}
	if errors.Is(err, errExitStatusNotReady) {
		return true
	}
	if p.Retryable != nil && p.Retryable(err) {
		return true
	}
	for _, msg := range p.RetryableMessages {
		if chainContains(err, msg) {
			return true
		}
	}
	return false
}

// connection is the uniform contract managed by acquire: Clear releases
// any partial resource, Create attempts to establish it. String describes
// the resource for diagnostics.
type connection[T any] interface {
	Clear()
	Create(ctx context.Context) (T, error)
	String() string
}

// acquire is the generic acquisition loop shared by every stateful
// resource: the session, SFTP channels, and exec channels. It retries
// transient failures with exponential backoff up to the configured attempt
// bound and wraps the final failure with full diagnostic context.
func acquire[T any](ctx context.Context, c *Client, conn connection[T]) (T, error) {
	var zero T
	conn.Clear()

	policy := c.retry
	errorMsg := "(" + c.String() + ") error acquiring " + conn.String()

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, &SSHError{Msg: errorMsg, Err: err}
		}

		c.logger.Printf("[DEBUG] >> (%s) acquiring %s", c, conn)
		val, err := conn.Create(ctx)
		if err == nil {
			c.logger.Printf("[DEBUG] << (%s) acquired %s", c, conn)
			return val, nil
		}

		conn.Clear()

		if attempt == policy.MaxAttempts {
			return zero, c.propagate(err, fmt.Sprintf("%s after %d attempts", errorMsg, attempt))
		}
		if !policy.ShouldRetry(err) {
			return zero, c.propagate(err, errorMsg)
		}

		c.logger.Printf("[WARN] << %s: %v", errorMsg, err)
		if werr := c.backoff.Delay(ctx, c.logger, attempt, policy.MaxAttempts, errorMsg+": "+err.Error()); werr != nil {
			return zero, &SSHError{Msg: errorMsg, Err: werr}
		}
	}

	// Unreachable: the loop always returns or propagates.
	return zero, &SSHError{Msg: errorMsg + ": retry loop exited without result"}
}

// propagate wraps err into the error taxonomy before it crosses the public
// boundary. Authentication failures become *AuthError; existing *SSHError
// and *AuthError values pass through unwrapped; everything else becomes an
// *SSHError carrying the diagnostic message.
func (c *Client) propagate(err error, msg string) error {
	if isAuthFailure(err) {
		var ae *AuthError
		if errors.As(err, &ae) {
			return ae
		}
		return &AuthError{Msg: msg, Err: err}
	}
	var se *SSHError
	if errors.As(err, &se) {
		return se
	}
	var ste *StateError
	if errors.As(err, &ste) {
		return ste
	}
	var arg *ArgError
	if errors.As(err, &arg) {
		return arg
	}
	return &SSHError{Msg: msg, Err: err}
}
