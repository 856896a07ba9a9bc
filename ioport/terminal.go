package ioport

import (
	"bufio"
	"io"
	"os"

	"golang.org/x/term"
)

// Terminal is a Port backed by a real interactive terminal put into raw
// mode, so individual keystrokes (and escape sequences) reach the shell
// a byte at a time instead of being line-buffered by the tty driver.
type Terminal struct {
	fd       int
	oldState *term.State
	in       *bufio.Reader
	out      io.Writer
}

// NewTerminal puts the file (expected to be a terminal, typically
// os.Stdin/os.Stdout) into raw mode and returns a Port over it. Close
// must be called to return the terminal to its previous mode.
func NewTerminal(in *os.File, out io.Writer) (*Terminal, error) {
	fd := int(in.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &Terminal{fd: fd, oldState: oldState, in: bufio.NewReader(in), out: out}, nil
}

// Write sends b, translating a bare '\n' to "\r\n" since raw mode
// disables the terminal driver's own translation.
func (t *Terminal) Write(b byte) error {
	if b == '\n' {
		if _, err := t.out.Write([]byte{'\r', '\n'}); err != nil {
			return err
		}
		return nil
	}
	_, err := t.out.Write([]byte{b})
	return err
}

// Read blocks for the next raw input byte.
func (t *Terminal) Read(p *byte) error {
	b, err := t.in.ReadByte()
	if err != nil {
		return err
	}
	*p = b
	return nil
}

// Close restores the terminal's original mode.
func (t *Terminal) Close() error {
	if t.oldState == nil {
		return nil
	}
	return term.Restore(t.fd, t.oldState)
}

var _ Port = (*Terminal)(nil)
