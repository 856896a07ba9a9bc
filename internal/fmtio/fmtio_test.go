package fmtio_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-rtos/microkernel/internal/fmtio"
	"github.com/go-rtos/microkernel/internal/kiface"
	"github.com/go-rtos/microkernel/internal/platform"
	"github.com/go-rtos/microkernel/internal/sched"
	"github.com/go-rtos/microkernel/ioport"
)

func TestSnprintfTruncates(t *testing.T) {
	require.Equal(t, "hello", fmtio.Snprintf(5, "hello, world"))
	require.Equal(t, "hi", fmtio.Snprintf(10, "hi"))
}

func TestSscanfParsesFields(t *testing.T) {
	var a int
	var b string
	n, err := fmtio.Sscanf("42 foo", "%d %s", &a, &b)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 42, a)
	require.Equal(t, "foo", b)
}

func TestSscanfOverflowReturnsError(t *testing.T) {
	var v int8
	_, err := fmtio.Sscanf("1000", "%d", &v)
	require.Error(t, err)
}

func TestWriterPrintfWritesFormattedBytes(t *testing.T) {
	bridge := platform.New(nil)
	s := sched.New(bridge, nil, kiface.NoOpObserver{})
	port := ioport.NewMockPort()
	w := fmtio.NewWriter(s, bridge, port)

	done := make(chan struct{})
	_, err := s.Spawn("writer", sched.MinPriority, sched.MinStackSize, func(any) {
		defer close(done)
		w.Printf("count=%d name=%s", 3, "x")
	}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	<-done
	require.Equal(t, "count=3 name=x", string(port.Written()))
}
