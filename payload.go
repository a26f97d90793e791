package sshclient

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
)

// Payload is a re-readable content source for Put. Repeatable payloads can
// be opened once per retry attempt; a non-repeatable payload is rejected by
// Put before any connection attempt is made.
type Payload interface {
	// Open returns a fresh reader over the content.
	Open() (io.ReadCloser, error)
	// Repeatable reports whether Open can be called more than once.
	Repeatable() bool
}

// BytesPayload returns a repeatable payload over a byte slice.
func BytesPayload(content []byte) Payload {
	return bytesPayload(content)
}

// StringPayload returns a repeatable payload over a string.
func StringPayload(content string) Payload {
	return bytesPayload(content)
}

type bytesPayload []byte

func (p bytesPayload) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(p)), nil
}

func (p bytesPayload) Repeatable() bool { return true }

func (p bytesPayload) String() string {
	return fmt.Sprintf("BytesPayload(%d bytes)", len(p))
}

// FilePayload returns a repeatable payload that re-opens the local file on
// every attempt.
func FilePayload(path string) Payload {
	return filePayload(path)
}

type filePayload string

func (p filePayload) Open() (io.ReadCloser, error) {
	return os.Open(string(p))
}

func (p filePayload) Repeatable() bool { return true }

func (p filePayload) String() string {
	return fmt.Sprintf("FilePayload(path=[%s])", string(p))
}

// ReaderPayload wraps a one-shot reader. It is not repeatable: Put rejects
// it, since a failed attempt could not re-read the content. It exists so
// callers holding a stream can stage it through a repeatable form
// explicitly, or consume it elsewhere.
func ReaderPayload(r io.Reader) Payload {
	return &readerPayload{r: r}
}

type readerPayload struct {
	r    io.Reader
	once sync.Once
}

func (p *readerPayload) Open() (io.ReadCloser, error) {
	var rc io.ReadCloser
	opened := false
	p.once.Do(func() {
		rc = io.NopCloser(p.r)
		opened = true
	})
	if !opened {
		return nil, &StateError{Msg: "reader payload already consumed"}
	}
	return rc, nil
}

func (p *readerPayload) Repeatable() bool { return false }

func (p *readerPayload) String() string { return "ReaderPayload()" }
