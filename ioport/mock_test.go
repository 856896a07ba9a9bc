package ioport_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-rtos/microkernel/ioport"
)

func TestMockPortRecordsWrites(t *testing.T) {
	m := ioport.NewMockPort()
	require.NoError(t, m.Write('a'))
	require.NoError(t, m.Write('b'))

	require.Equal(t, []byte{'a', 'b'}, m.Written())
	require.Equal(t, 2, m.CallCounts()["write"])
}

func TestMockPortReturnsQueuedReads(t *testing.T) {
	m := ioport.NewMockPort()
	m.QueueRead('x', 'y')

	var b byte
	require.NoError(t, m.Read(&b))
	require.Equal(t, byte('x'), b)
	require.NoError(t, m.Read(&b))
	require.Equal(t, byte('y'), b)

	require.ErrorIs(t, m.Read(&b), ioport.ErrNoInput)
	require.Equal(t, 3, m.CallCounts()["read"])
}

func TestMockPortClose(t *testing.T) {
	m := ioport.NewMockPort()
	require.False(t, m.IsClosed())
	require.NoError(t, m.Close())
	require.True(t, m.IsClosed())
	require.Equal(t, 1, m.CallCounts()["close"])
}
