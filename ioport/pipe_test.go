package ioport_test

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-rtos/microkernel/ioport"
)

func TestPipeWriteThenReadRoundTrips(t *testing.T) {
	p := ioport.NewPipe(4)
	require.NoError(t, p.Write('a'))
	require.NoError(t, p.Write('b'))

	var b byte
	require.NoError(t, p.Read(&b))
	require.Equal(t, byte('a'), b)
	require.NoError(t, p.Read(&b))
	require.Equal(t, byte('b'), b)
}

func TestPipeReadBlocksUntilWrite(t *testing.T) {
	p := ioport.NewPipe(4)
	got := make(chan byte, 1)

	go func() {
		var b byte
		if err := p.Read(&b); err == nil {
			got <- b
		}
	}()

	select {
	case <-got:
		t.Fatal("Read returned before any Write")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, p.Write('z'))

	select {
	case b := <-got:
		require.Equal(t, byte('z'), b)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestPipeWriteBlocksUntilRoom(t *testing.T) {
	p := ioport.NewPipe(2)
	require.NoError(t, p.Write('1'))
	require.NoError(t, p.Write('2'))

	done := make(chan struct{})
	go func() {
		require.NoError(t, p.Write('3'))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Write returned before room was freed")
	case <-time.After(50 * time.Millisecond):
	}

	var b byte
	require.NoError(t, p.Read(&b))
	require.Equal(t, byte('1'), b)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Write to unblock")
	}
}

func TestPipeCloseUnblocksBlockedReader(t *testing.T) {
	p := ioport.NewPipe(2)

	readErr := make(chan error, 1)
	go func() {
		var b byte
		readErr <- p.Read(&b)
	}()

	select {
	case <-readErr:
		t.Fatal("Read returned before Close")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, p.Close())

	select {
	case err := <-readErr:
		require.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for blocked Read")
	}
}

func TestPipeCloseUnblocksBlockedWriter(t *testing.T) {
	p := ioport.NewPipe(1)
	require.NoError(t, p.Write('x'))

	writeErr := make(chan error, 1)
	go func() { writeErr <- p.Write('y') }()

	select {
	case <-writeErr:
		t.Fatal("Write returned before Close")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, p.Close())

	select {
	case err := <-writeErr:
		require.ErrorIs(t, err, io.ErrClosedPipe)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for blocked Write")
	}
}
