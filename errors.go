package sshclient

import (
	"errors"
	"strings"
)

// ArgError reports an invalid argument: a bad constructor input or a
// non-repeatable payload passed to Put. Never retried.
type ArgError struct {
	Msg string
}

func (e *ArgError) Error() string { return e.Msg }

// StateError reports an operation attempted in an illegal state, such as
// opening a channel on a disconnected session. Never retried.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string { return e.Msg }

// AuthError reports an authentication failure. It is fatal unless
// RetryPolicy.RetryAuth is set.
type AuthError struct {
	Msg string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// SSHError is the terminal error for a failed operation: a transient
// failure that persisted past the final retry attempt, or any transport
// failure that could not be classified further. The message carries the
// client identity string and the failing operation's description.
type SSHError struct {
	Msg string
	Err error
}

func (e *SSHError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *SSHError) Unwrap() error { return e.Err }

// authFailureMarkers are message fragments that always indicate bad
// credentials rather than transience, regardless of the configured
// retryable-message list.
var authFailureMarkers = []string{
	"Auth fail",
	"ssh: unable to authenticate",
	"ssh: handshake failed: ssh: unable to authenticate",
}

// isAuthFailure reports whether err or anything in its cause chain carries
// an authentication-failure message or is already an *AuthError.
func isAuthFailure(err error) bool {
	var ae *AuthError
	if errors.As(err, &ae) {
		return true
	}
	for _, marker := range authFailureMarkers {
		if chainContains(err, marker) {
			return true
		}
	}
	return false
}

// chainContains reports whether any error in the cause chain of err has a
// message containing substr.
func chainContains(err error, substr string) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if strings.Contains(e.Error(), substr) {
			return true
		}
	}
	return false
}
