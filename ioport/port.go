// Package ioport defines the pluggable byte-oriented transport the UART
// reader and shell sit on top of: a real terminal in raw mode, an
// in-memory pipe for tests, or a call-counting mock.
package ioport

import "errors"

// ErrNoInput is returned by MockPort.Read when its queued input is
// exhausted.
var ErrNoInput = errors.New("ioport: no queued input")

// Port is a single full-duplex byte stream. Write is a blocking
// TX-empty poll in spirit — implementations may buffer internally, but
// Write must not return until the byte has been accepted. Read blocks
// until a byte is available.
type Port interface {
	Write(b byte) error
	Read(p *byte) error
	Close() error
}
